// Package store persists the device's user data: preferences (output
// language, device identifier, last mode), contacts, money transfers and
// bookmarked locations.
//
// Two backends implement [Store]: a YAML file for standalone devices and
// PostgreSQL for fleets that share a database.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/sightwear/sightwear/pkg/phonetic"
)

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = errors.New("store: not found")

// Preferences are the per-device settings that survive restarts.
type Preferences struct {
	Language string `yaml:"language"`
	DeviceID string `yaml:"device_id"`
	LastMode string `yaml:"last_mode"`
}

// Contact is a saved phone contact. Names are unique case-insensitively.
type Contact struct {
	Name      string    `yaml:"name"`
	Phone     string    `yaml:"phone"`
	CreatedAt time.Time `yaml:"created_at"`
}

// Transaction is one money transfer requested by voice.
type Transaction struct {
	ID        string    `yaml:"id"`
	Recipient string    `yaml:"recipient"`
	Phone     string    `yaml:"phone"`
	Amount    float64   `yaml:"amount"`
	Status    string    `yaml:"status"`
	CreatedAt time.Time `yaml:"created_at"`
}

// Transaction states.
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// Bookmark is a named position.
type Bookmark struct {
	Name      string    `yaml:"name"`
	Lat       float64   `yaml:"lat"`
	Lng       float64   `yaml:"lng"`
	CreatedAt time.Time `yaml:"created_at"`
}

// Store is implemented by every backend. All methods are safe for
// concurrent use.
type Store interface {
	Preferences(ctx context.Context) (Preferences, error)
	SavePreferences(ctx context.Context, p Preferences) error

	// SaveContact inserts c or replaces the contact with the same name.
	SaveContact(ctx context.Context, c Contact) error
	Contacts(ctx context.Context) ([]Contact, error)

	RecordTransaction(ctx context.Context, t Transaction) error
	Transactions(ctx context.Context) ([]Transaction, error)

	// SaveBookmark inserts b or replaces the bookmark with the same name.
	SaveBookmark(ctx context.Context, b Bookmark) error
	Bookmarks(ctx context.Context) ([]Bookmark, error)

	Close() error
}

// EnsureDeviceID returns the persisted device identifier, generating and
// saving a random one on first use.
func EnsureDeviceID(ctx context.Context, s Store) (string, error) {
	p, err := s.Preferences(ctx)
	if err != nil {
		return "", err
	}
	if p.DeviceID != "" {
		return p.DeviceID, nil
	}
	p.DeviceID = uuid.NewString()
	if err := s.SavePreferences(ctx, p); err != nil {
		return "", fmt.Errorf("store: save device id: %w", err)
	}
	return p.DeviceID, nil
}

// UpdatePreferences applies fn to the stored preferences and saves them.
func UpdatePreferences(ctx context.Context, s Store, fn func(*Preferences)) error {
	p, err := s.Preferences(ctx)
	if err != nil {
		return err
	}
	fn(&p)
	return s.SavePreferences(ctx, p)
}

// FindContact resolves a spoken name against the saved contacts.
func FindContact(ctx context.Context, s Store, m *phonetic.Matcher, spoken string) (Contact, error) {
	contacts, err := s.Contacts(ctx)
	if err != nil {
		return Contact{}, err
	}
	names := make([]string, len(contacts))
	for i, c := range contacts {
		names[i] = c.Name
	}
	best, ok := m.Best(spoken, names)
	if !ok {
		return Contact{}, fmt.Errorf("%w: contact %q", ErrNotFound, spoken)
	}
	for _, c := range contacts {
		if c.Name == best.Value {
			return c, nil
		}
	}
	return Contact{}, fmt.Errorf("%w: contact %q", ErrNotFound, spoken)
}

// FindBookmark returns the bookmark named name, case-insensitively.
func FindBookmark(ctx context.Context, s Store, name string) (Bookmark, error) {
	bs, err := s.Bookmarks(ctx)
	if err != nil {
		return Bookmark{}, err
	}
	for _, b := range bs {
		if strings.EqualFold(b.Name, strings.TrimSpace(name)) {
			return b, nil
		}
	}
	return Bookmark{}, fmt.Errorf("%w: bookmark %q", ErrNotFound, name)
}

// NormaliseName trims and title-cases a spoken name.
func NormaliseName(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + strings.ToLower(w[size:])
	}
	return strings.Join(words, " ")
}
