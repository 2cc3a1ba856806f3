package speech_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sightwear/sightwear/internal/resilience"
	"github.com/sightwear/sightwear/internal/speech"
	"github.com/sightwear/sightwear/pkg/audio"
	"github.com/sightwear/sightwear/pkg/provider/stt"
	sttmock "github.com/sightwear/sightwear/pkg/provider/stt/mock"
	trmock "github.com/sightwear/sightwear/pkg/provider/translate/mock"
	ttsmock "github.com/sightwear/sightwear/pkg/provider/tts/mock"
)

type playCall struct {
	wav    string
	volume float64
}

type fakePlayer struct {
	mu    sync.Mutex
	calls []playCall
	err   error
}

func (p *fakePlayer) Play(_ context.Context, wav []byte, volume float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, playCall{wav: string(wav), volume: volume})
	return p.err
}

func testLanguages() *speech.Languages {
	return speech.NewLanguages("en", []speech.Language{
		{Code: "en", Name: "English"},
		{Code: "tw", Name: "Twi", Aliases: []string{"asante", "akan"}, Translate: true},
	})
}

func echoTTS(prefix string) *ttsmock.Provider {
	return &ttsmock.Provider{SynthesizeFunc: func(_ context.Context, text, lang string) ([]byte, error) {
		return []byte(prefix + lang + ":" + text), nil
	}}
}

func TestLanguages(t *testing.T) {
	t.Parallel()
	l := testLanguages()

	if got := l.Default().Code; got != "en" {
		t.Errorf("Default = %q, want en", got)
	}
	if !l.Translated("TW") || l.Translated("en") || l.Translated("fr") {
		t.Error("Translated reports the wrong languages")
	}

	tests := []struct {
		utterance string
		want      string
		ok        bool
	}{
		{"I want Twi", "tw", true},
		{"english please", "en", true},
		{"speak akan", "tw", true},
		{"", "", false},
		{"klingon", "", false},
	}
	for _, tt := range tests {
		got, ok := l.Match(tt.utterance)
		if ok != tt.ok || got.Code != tt.want {
			t.Errorf("Match(%q) = %q, %v; want %q, %v", tt.utterance, got.Code, ok, tt.want, tt.ok)
		}
	}
}

func TestNewLanguages_UnknownDefault(t *testing.T) {
	t.Parallel()
	l := speech.NewLanguages("fr", []speech.Language{{Code: "tw", Name: "Twi"}})
	if got := l.Default().Code; got != "tw" {
		t.Errorf("Default = %q, want first entry tw", got)
	}
	if got := speech.NewLanguages("", nil).Default().Code; got != "en" {
		t.Errorf("empty set default = %q, want en", got)
	}
}

func TestSpeaker_DirectLanguage(t *testing.T) {
	t.Parallel()
	direct, regional := echoTTS("d/"), echoTTS("r/")
	tr := &trmock.Provider{Prefix: "tw!"}
	p := &fakePlayer{}
	s := speech.NewSpeaker(testLanguages(), direct, p, speech.SpeakerConfig{Regional: regional, Translator: tr})

	if err := s.Speak(context.Background(), "Time mode activated.", "en", 0.5); err != nil {
		t.Fatal(err)
	}
	if len(p.calls) != 1 || p.calls[0].wav != "d/en:Time mode activated." || p.calls[0].volume != 0.5 {
		t.Errorf("played %+v", p.calls)
	}
	if len(tr.TranslateCalls) != 0 || len(regional.Texts()) != 0 {
		t.Error("English speech went through translation")
	}
}

func TestSpeaker_TranslatedLanguage(t *testing.T) {
	t.Parallel()
	direct, regional := echoTTS("d/"), echoTTS("r/")
	tr := &trmock.Provider{Prefix: "tw!"}
	p := &fakePlayer{}
	s := speech.NewSpeaker(testLanguages(), direct, p, speech.SpeakerConfig{Regional: regional, Translator: tr})

	if err := s.Speak(context.Background(), "No text found.", "tw", 1); err != nil {
		t.Fatal(err)
	}
	if got := p.calls[0].wav; got != "r/tw:tw!No text found." {
		t.Errorf("played %q", got)
	}
	if c := tr.TranslateCalls[0]; c.From != "en" || c.To != "tw" {
		t.Errorf("translate call = %+v", c)
	}
}

func TestSpeaker_TranslationFailureFallsBackToEnglish(t *testing.T) {
	t.Parallel()
	direct, regional := echoTTS("d/"), echoTTS("r/")
	tr := &trmock.Provider{Err: errors.New("quota")}
	p := &fakePlayer{}
	s := speech.NewSpeaker(testLanguages(), direct, p, speech.SpeakerConfig{Regional: regional, Translator: tr})

	if err := s.Speak(context.Background(), "Done reading text.", "tw", 1); err != nil {
		t.Fatal(err)
	}
	if got := p.calls[0].wav; got != "d/en:Done reading text." {
		t.Errorf("played %q, want English fallback", got)
	}
}

func TestSpeaker_CachesClips(t *testing.T) {
	t.Parallel()
	direct := echoTTS("d/")
	s := speech.NewSpeaker(testLanguages(), direct, &fakePlayer{}, speech.SpeakerConfig{CacheSize: 2})
	ctx := context.Background()

	for _, text := range []string{"a", "a", "b", "c", "a"} {
		if err := s.Speak(ctx, text, "en", 1); err != nil {
			t.Fatal(err)
		}
	}
	// "a" is evicted by "c" and synthesised again.
	want := []string{"a", "b", "c", "a"}
	got := direct.Texts()
	if len(got) != len(want) {
		t.Fatalf("synthesised %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("synthesised %v, want %v", got, want)
		}
	}
}

func TestSpeaker_Errors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := speech.NewSpeaker(testLanguages(), &ttsmock.Provider{Err: errors.New("down")}, &fakePlayer{}, speech.SpeakerConfig{})
	if err := s.Speak(ctx, "hello", "en", 1); err == nil {
		t.Error("synthesis failure not reported")
	}

	s = speech.NewSpeaker(testLanguages(), &ttsmock.Provider{}, &fakePlayer{}, speech.SpeakerConfig{})
	if err := s.Speak(ctx, "hello", "en", 1); err == nil {
		t.Error("empty clip not reported")
	}

	boom := errors.New("no device")
	s = speech.NewSpeaker(testLanguages(), echoTTS(""), &fakePlayer{err: boom}, speech.SpeakerConfig{})
	if err := s.Speak(ctx, "hello", "en", 1); !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
	if err := s.Speak(ctx, "", "en", 1); err != nil {
		t.Errorf("empty text err = %v", err)
	}
}

func clip() audio.Clip {
	return audio.Clip{Samples: make([]int16, 1600), SampleRate: 16000}
}

func TestTranscriber_English(t *testing.T) {
	t.Parallel()
	primary := &sttmock.Provider{Text: "  read this page "}
	group := resilience.NewFallbackGroup[stt.Provider](primary, "whisper", resilience.FallbackConfig{})
	tr := speech.NewTranscriber(testLanguages(), group, speech.TranscriberConfig{})

	got, err := tr.Transcribe(context.Background(), clip(), "en")
	if err != nil || got != "read this page" {
		t.Errorf("Transcribe = %q, %v", got, err)
	}
	if primary.TranscribeCalls[0].Language != "en" {
		t.Errorf("language = %q", primary.TranscribeCalls[0].Language)
	}
}

func TestTranscriber_FallsBackToSecondProvider(t *testing.T) {
	t.Parallel()
	primary := &sttmock.Provider{Err: errors.New("model missing")}
	backup := &sttmock.Provider{Text: "what time is it"}
	group := resilience.NewFallbackGroup[stt.Provider](primary, "whisper", resilience.FallbackConfig{})
	group.AddFallback("openai", backup)
	tr := speech.NewTranscriber(testLanguages(), group, speech.TranscriberConfig{})

	got, err := tr.Transcribe(context.Background(), clip(), "en")
	if err != nil || got != "what time is it" {
		t.Errorf("Transcribe = %q, %v", got, err)
	}

	backup.Err = errors.New("offline")
	if _, err := tr.Transcribe(context.Background(), clip(), "en"); !errors.Is(err, resilience.ErrAllFailed) {
		t.Errorf("err = %v, want ErrAllFailed", err)
	}
}

func TestTranscriber_RegionalTranslatesBack(t *testing.T) {
	t.Parallel()
	direct := &sttmock.Provider{Text: "english"}
	regional := &sttmock.Provider{Text: "bere ben ni"}
	trans := &trmock.Provider{Prefix: "en:"}
	group := resilience.NewFallbackGroup[stt.Provider](direct, "whisper", resilience.FallbackConfig{})
	tr := speech.NewTranscriber(testLanguages(), group, speech.TranscriberConfig{Regional: regional, Translator: trans})

	got, err := tr.Transcribe(context.Background(), clip(), "tw")
	if err != nil || got != "en:bere ben ni" {
		t.Errorf("Transcribe = %q, %v", got, err)
	}
	if c := trans.TranslateCalls[0]; c.From != "tw" || c.To != "en" {
		t.Errorf("translate call = %+v", c)
	}
	if direct.CallCount() != 0 {
		t.Error("direct recogniser used for a regional language")
	}

	regional.Err = errors.New("down")
	if got, _ := tr.Transcribe(context.Background(), clip(), "tw"); got != "english" {
		t.Errorf("fallback transcript = %q, want english", got)
	}
}

func TestTranscriber_EmptyClip(t *testing.T) {
	t.Parallel()
	primary := &sttmock.Provider{Text: "ghost"}
	group := resilience.NewFallbackGroup[stt.Provider](primary, "whisper", resilience.FallbackConfig{})
	tr := speech.NewTranscriber(testLanguages(), group, speech.TranscriberConfig{})

	got, err := tr.Transcribe(context.Background(), audio.Clip{}, "en")
	if err != nil || got != "" || primary.CallCount() != 0 {
		t.Errorf("Transcribe(empty) = %q, %v after %d calls", got, err, primary.CallCount())
	}
}
