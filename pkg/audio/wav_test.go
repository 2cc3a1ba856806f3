package audio

import (
	"bytes"
	"errors"
	"testing"
)

func TestWAVRoundTrip(t *testing.T) {
	t.Parallel()
	in := Clip{Samples: []int16{0, 1000, -1000, 32767, -32768}, SampleRate: 16000}
	data, err := EncodeWAV(in)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("RIFF")) || !bytes.Equal(data[8:12], []byte("WAVE")) {
		t.Fatalf("header = %q, want RIFF....WAVE", data[:12])
	}
	out, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if out.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", out.SampleRate)
	}
	if len(out.Samples) != len(in.Samples) {
		t.Fatalf("decoded %d samples, want %d", len(out.Samples), len(in.Samples))
	}
	for i := range in.Samples {
		if out.Samples[i] != in.Samples[i] {
			t.Errorf("sample %d = %d, want %d", i, out.Samples[i], in.Samples[i])
		}
	}
}

func TestDecodeWAV_Invalid(t *testing.T) {
	t.Parallel()
	if _, err := DecodeWAV([]byte("not a wav file at all")); !errors.Is(err, ErrInvalidWAV) {
		t.Errorf("DecodeWAV() = %v, want ErrInvalidWAV", err)
	}
}

func TestSeekBuffer(t *testing.T) {
	t.Parallel()
	var s seekBuffer
	_, _ = s.Write([]byte("hello world"))
	if _, err := s.Seek(0, 0); err != nil {
		t.Fatal(err)
	}
	_, _ = s.Write([]byte("J"))
	if got := string(s.buf); got != "Jello world" {
		t.Errorf("buf = %q", got)
	}
	if _, err := s.Seek(-1, 0); err == nil {
		t.Error("negative seek succeeded")
	}
}
