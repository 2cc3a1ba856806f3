package coqui

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sightwear/sightwear/pkg/audio"
)

func testWAV(t *testing.T) []byte {
	t.Helper()
	b, err := audio.EncodeWAV(audio.Clip{Samples: []int16{1, 2, 3}, SampleRate: 22050})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestSynthesize_Standard(t *testing.T) {
	t.Parallel()
	wav := testWAV(t)
	var gotText, gotLang, gotSpeaker string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != apiTTSEndpoint {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		gotText, gotLang, gotSpeaker = q.Get("text"), q.Get("language_id"), q.Get("speaker_id")
		_, _ = w.Write(wav)
	}))
	defer srv.Close()

	p, err := New(srv.URL, WithSpeaker("p225"))
	if err != nil {
		t.Fatal(err)
	}
	got, err := p.Synthesize(context.Background(), " Reading mode activated. ", "en")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(got) != len(wav) {
		t.Errorf("got %d bytes, want %d", len(got), len(wav))
	}
	if gotText != "Reading mode activated." || gotLang != "en" || gotSpeaker != "p225" {
		t.Errorf("query text=%q lang=%q speaker=%q", gotText, gotLang, gotSpeaker)
	}
}

func TestSynthesize_XTTS(t *testing.T) {
	t.Parallel()
	wav := testWAV(t)
	var body map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != xttsTTSEndpoint {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = w.Write(wav)
	}))
	defer srv.Close()

	p, err := New(srv.URL, WithAPIMode(APIModeXTTS), WithSpeaker("guide.wav"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Synthesize(context.Background(), "Turning off", "en"); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if body["text"] != "Turning off" || body["speaker_wav"] != "guide.wav" || body["language"] != "en" {
		t.Errorf("body = %v", body)
	}
}

func TestSynthesize_Errors(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("text") == "garbage" {
			_, _ = w.Write([]byte("<html>oops</html>"))
			return
		}
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, _ := New(srv.URL)
	for _, text := range []string{"hello", "garbage", "   "} {
		if _, err := p.Synthesize(context.Background(), text, "en"); err == nil {
			t.Errorf("Synthesize(%q) succeeded, want error", text)
		}
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	if _, err := New(""); err == nil {
		t.Error("empty URL accepted")
	}
	if _, err := New("http://x", WithAPIMode(APIModeXTTS)); err == nil {
		t.Error("XTTS without speaker accepted")
	}
}
