package energy

import (
	"errors"
	"testing"

	"github.com/sightwear/sightwear/pkg/provider/vad"
)

func frame(n int, amp int16) []int16 {
	f := make([]int16, n)
	for i := range f {
		if i%2 == 0 {
			f[i] = amp
		} else {
			f[i] = -amp
		}
	}
	return f
}

func newSession(t *testing.T) vad.Session {
	t.Helper()
	s, err := Engine{}.NewSession(vad.Config{
		SampleRate:       16000,
		FrameSizeMs:      20,
		SpeechThreshold:  0.015,
		SilenceThreshold: 0.01,
		HangoverMs:       60,
	})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSession_Segment(t *testing.T) {
	t.Parallel()
	s := newSession(t)
	loud, quiet := frame(320, 3000), frame(320, 10)

	want := []struct {
		in   []int16
		want vad.EventType
	}{
		{quiet, vad.Silence},
		{loud, vad.SpeechStart},
		{loud, vad.SpeechContinue},
		{quiet, vad.SpeechContinue},
		{quiet, vad.SpeechContinue},
		{quiet, vad.SpeechEnd},
		{quiet, vad.Silence},
	}
	for i, step := range want {
		ev, err := s.Process(step.in)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if ev.Type != step.want {
			t.Errorf("step %d: got %v, want %v", i, ev.Type, step.want)
		}
	}
}

func TestSession_LoudFrameResetsHangover(t *testing.T) {
	t.Parallel()
	s := newSession(t)
	loud, quiet := frame(320, 3000), frame(320, 10)
	for _, f := range [][]int16{loud, quiet, quiet, loud, quiet, quiet} {
		ev, _ := s.Process(f)
		if ev.Type == vad.SpeechEnd {
			t.Fatal("segment ended before hangover elapsed")
		}
	}
}

func TestSession_FrameSize(t *testing.T) {
	t.Parallel()
	s := newSession(t)
	if _, err := s.Process(make([]int16, 100)); !errors.Is(err, vad.ErrFrameSize) {
		t.Errorf("err = %v, want ErrFrameSize", err)
	}
}

func TestNewSession_Invalid(t *testing.T) {
	t.Parallel()
	if _, err := (Engine{}).NewSession(vad.Config{SampleRate: 16000, SpeechThreshold: 0.1, SilenceThreshold: 0.2}); err == nil {
		t.Error("expected error for inverted thresholds")
	}
}

func TestSession_Closed(t *testing.T) {
	t.Parallel()
	s := newSession(t)
	_ = s.Close()
	_ = s.Close()
	if _, err := s.Process(frame(320, 0)); err == nil {
		t.Error("expected error after Close")
	}
}
