package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDescribe(t *testing.T) {
	t.Parallel()
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, ":generateContent") {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"A **crosswalk** with a green light 🚦."}]}}]}`))
	}))
	defer srv.Close()

	p, err := New(context.Background(), "key", "gemini-2.0-flash", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	got, err := p.Describe(context.Background(), []byte{0xff, 0xd8, 0xff}, "")
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if got != "A crosswalk with a green light." {
		t.Errorf("Describe() = %q", got)
	}
	if body["contents"] == nil {
		t.Error("request carried no contents")
	}
}

func TestDescribe_EmptyImage(t *testing.T) {
	t.Parallel()
	p, err := New(context.Background(), "key", "m", WithBaseURL("http://127.0.0.1:1"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Describe(context.Background(), nil, "x"); err == nil {
		t.Error("expected error for empty image")
	}
}
