package store_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sightwear/sightwear/internal/store"
	"github.com/sightwear/sightwear/pkg/phonetic"
)

// testBackend exercises the behaviour every backend shares.
func testBackend(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("preferences", func(t *testing.T) {
		p, err := s.Preferences(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if p != (store.Preferences{}) {
			t.Errorf("fresh preferences = %+v, want zero", p)
		}
		if err := store.UpdatePreferences(ctx, s, func(p *store.Preferences) { p.Language = "tw" }); err != nil {
			t.Fatal(err)
		}
		if err := store.UpdatePreferences(ctx, s, func(p *store.Preferences) { p.LastMode = "reading" }); err != nil {
			t.Fatal(err)
		}
		p, _ = s.Preferences(ctx)
		if p.Language != "tw" || p.LastMode != "reading" {
			t.Errorf("preferences = %+v", p)
		}
	})

	t.Run("device id", func(t *testing.T) {
		id, err := store.EnsureDeviceID(ctx, s)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := uuid.Parse(id); err != nil {
			t.Errorf("device id %q is not a uuid: %v", id, err)
		}
		again, _ := store.EnsureDeviceID(ctx, s)
		if again != id {
			t.Errorf("device id changed from %q to %q", id, again)
		}
		if p, _ := s.Preferences(ctx); p.Language != "tw" {
			t.Error("EnsureDeviceID clobbered other preferences")
		}
	})

	t.Run("contacts", func(t *testing.T) {
		for _, c := range []store.Contact{
			{Name: "Kwame Mensah", Phone: "0241234567"},
			{Name: "Ama", Phone: "0209876543"},
			{Name: "kwame mensah", Phone: "0551112222"},
		} {
			if err := s.SaveContact(ctx, c); err != nil {
				t.Fatal(err)
			}
		}
		cs, err := s.Contacts(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(cs) != 2 {
			t.Fatalf("contacts = %+v, want 2 after a case-insensitive replace", cs)
		}

		m := phonetic.New()
		c, err := store.FindContact(ctx, s, m, "kwame mensa")
		if err != nil {
			t.Fatal(err)
		}
		if c.Phone != "0551112222" {
			t.Errorf("found %+v, want the replaced number", c)
		}
		if _, err := store.FindContact(ctx, s, m, "Zebedee"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("transactions", func(t *testing.T) {
		tx := store.Transaction{ID: uuid.NewString(), Recipient: "Ama", Phone: "0209876543", Amount: 50, Status: store.StatusSent}
		if err := s.RecordTransaction(ctx, tx); err != nil {
			t.Fatal(err)
		}
		ts, err := s.Transactions(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(ts) != 1 || ts[0].ID != tx.ID || ts[0].Amount != 50 || ts[0].CreatedAt.IsZero() {
			t.Errorf("transactions = %+v", ts)
		}
	})

	t.Run("bookmarks", func(t *testing.T) {
		if err := s.SaveBookmark(ctx, store.Bookmark{Name: "Home", Lat: 5.6037, Lng: -0.187}); err != nil {
			t.Fatal(err)
		}
		if err := s.SaveBookmark(ctx, store.Bookmark{Name: "home", Lat: 5.61, Lng: -0.19}); err != nil {
			t.Fatal(err)
		}
		b, err := store.FindBookmark(ctx, s, " HOME ")
		if err != nil {
			t.Fatal(err)
		}
		if b.Lat != 5.61 {
			t.Errorf("bookmark = %+v, want the replacement", b)
		}
		if _, err := store.FindBookmark(ctx, s, "office"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "data", "store.yaml")
	s, err := store.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	testBackend(t, s)

	reopened, err := store.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	cs, _ := reopened.Contacts(context.Background())
	p, _ := reopened.Preferences(context.Background())
	if len(cs) != 2 || p.Language != "tw" || p.DeviceID == "" {
		t.Errorf("reopened store lost data: contacts=%d prefs=%+v", len(cs), p)
	}
}

func TestFile_Corrupt(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "store.yaml")
	if err := os.WriteFile(path, []byte("contacts: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := store.OpenFile(path); err == nil {
		t.Error("OpenFile accepted a corrupt document")
	}
}

func TestFile_FailedWriteKeepsState(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s, err := store.OpenFile(filepath.Join(dir, "store.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := s.SaveContact(ctx, store.Contact{Name: "Ama", Phone: "1"}); err != nil {
		t.Fatal(err)
	}
	// A directory in place of the temp file makes the write fail.
	if err := os.Mkdir(filepath.Join(dir, "store.yaml.tmp"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveContact(ctx, store.Contact{Name: "Kofi", Phone: "2"}); err == nil {
		t.Fatal("SaveContact succeeded without a writable file")
	}
	if cs, _ := s.Contacts(ctx); len(cs) != 1 {
		t.Errorf("contacts = %+v, want the failed write discarded", cs)
	}
}

func TestNormaliseName(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"  kwame   MENSAH ": "Kwame Mensah",
		"ama":               "Ama",
		"":                  "",
		"éfua":              "Éfua",
	}
	for in, want := range tests {
		if got := store.NormaliseName(in); got != want {
			t.Errorf("NormaliseName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPostgres(t *testing.T) {
	dsn := os.Getenv("SIGHTWEAR_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SIGHTWEAR_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := store.OpenPool(ctx, dsn)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Close)
	for _, table := range []string{"preferences", "contacts", "transactions", "bookmarks"} {
		if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			t.Fatalf("drop %s: %v", table, err)
		}
	}
	s, err := store.NewPostgres(ctx, pool)
	if err != nil {
		t.Fatal(err)
	}
	testBackend(t, s)
}
