package capture_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sightwear/sightwear/internal/capture"
	"github.com/sightwear/sightwear/internal/peripheral"
	"github.com/sightwear/sightwear/pkg/audio"
	"github.com/sightwear/sightwear/pkg/provider/vad/energy"
)

// scriptStream replays frames of a fixed amplitude, then silence.
type scriptStream struct {
	amps   []int16
	i      int
	closed bool
	err    error
}

func (s *scriptStream) Read(frame []int16) error {
	if s.err != nil {
		return s.err
	}
	var amp int16
	if s.i < len(s.amps) {
		amp = s.amps[s.i]
	}
	s.i++
	for j := range frame {
		if j%2 == 0 {
			frame[j] = amp
		} else {
			frame[j] = -amp
		}
	}
	return nil
}

func (s *scriptStream) Close() error {
	s.closed = true
	return nil
}

func opener(s *scriptStream) capture.StreamOpener {
	return func(int, int) (capture.Stream, error) { return s, nil }
}

func micConfig() capture.MicrophoneConfig {
	return capture.MicrophoneConfig{
		SampleRate:       16000,
		FrameSize:        320,
		SpeechThreshold:  0.015,
		SilenceThreshold: 0.01,
		Hangover:         60 * time.Millisecond,
		MaxDuration:      time.Second,
	}
}

func TestMicrophone_CapturesUntilSilence(t *testing.T) {
	t.Parallel()
	loud := int16(8000)
	// two silent frames, four loud, then silence for the 60ms hangover.
	s := &scriptStream{amps: []int16{0, 0, loud, loud, loud, loud}}
	m := capture.NewMicrophone(opener(s), energy.Engine{}, micConfig())

	clip, err := m.Capture(context.Background(), "voice", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	// 4 loud frames + 3 hangover frames of 20ms.
	if got, want := len(clip.Samples), 7*320; got != want {
		t.Errorf("captured %d samples, want %d", got, want)
	}
	if clip.SampleRate != 16000 {
		t.Errorf("SampleRate = %d", clip.SampleRate)
	}
	if !s.closed {
		t.Error("stream not closed")
	}
}

func TestMicrophone_TimeoutWithoutSpeech(t *testing.T) {
	t.Parallel()
	m := capture.NewMicrophone(opener(&scriptStream{}), energy.Engine{}, micConfig())

	_, err := m.Capture(context.Background(), "voice", 200*time.Millisecond)
	if !errors.Is(err, capture.ErrNothingCaptured) {
		t.Errorf("err = %v, want ErrNothingCaptured", err)
	}
}

func TestMicrophone_MaxDuration(t *testing.T) {
	t.Parallel()
	amps := make([]int16, 500)
	for i := range amps {
		amps[i] = 9000
	}
	m := capture.NewMicrophone(opener(&scriptStream{amps: amps}), energy.Engine{}, micConfig())

	clip, err := m.Capture(context.Background(), "voice", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if got := clip.Duration(); got != time.Second {
		t.Errorf("clip length = %v, want 1s cap", got)
	}
}

func TestMicrophone_ReadError(t *testing.T) {
	t.Parallel()
	boom := errors.New("device unplugged")
	m := capture.NewMicrophone(opener(&scriptStream{err: boom}), energy.Engine{}, micConfig())
	if _, err := m.Capture(context.Background(), "voice", time.Second); !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}

func TestPeripheral_Capture(t *testing.T) {
	t.Parallel()
	var mb peripheral.Mailbox
	src := capture.NewPeripheral(&mb)
	clip := audio.Clip{Samples: []int16{1, 2, 3}, SampleRate: 16000}

	mb.Deliver(peripheral.Payload{Context: "voice", Clip: audio.Clip{Samples: []int16{9}, SampleRate: 16000}})
	src.Forget("voice")
	go func() {
		time.Sleep(10 * time.Millisecond)
		mb.Deliver(peripheral.Payload{Context: "voice", Clip: clip})
	}()

	got, err := src.Capture(context.Background(), "voice", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Samples) != 3 {
		t.Errorf("captured %v, want the fresh upload", got.Samples)
	}

	if _, err := src.Capture(context.Background(), "language", 20*time.Millisecond); !errors.Is(err, capture.ErrNothingCaptured) {
		t.Errorf("err = %v, want ErrNothingCaptured", err)
	}
}

type fixedSource struct {
	name  string
	calls int
}

func (f *fixedSource) Capture(context.Context, string, time.Duration) (audio.Clip, error) {
	f.calls++
	return audio.Clip{}, errors.New(f.name)
}

func TestAuto_PicksPeripheralWhenConnected(t *testing.T) {
	t.Parallel()
	var mb peripheral.Mailbox
	mb.Deliver(peripheral.Payload{Context: "voice", Clip: audio.Clip{Samples: []int16{5}, SampleRate: 16000}})
	mic := &fixedSource{name: "mic"}
	connected := 1
	a := capture.NewAuto(capture.NewPeripheral(&mb), mic, func() int { return connected })

	if _, err := a.Capture(context.Background(), "voice", time.Second); err != nil {
		t.Fatalf("peripheral capture: %v", err)
	}
	if mic.calls != 0 {
		t.Error("microphone used while a peripheral is connected")
	}

	connected = 0
	if _, err := a.Capture(context.Background(), "voice", time.Second); err == nil || err.Error() != "mic" {
		t.Errorf("err = %v, want the microphone's", err)
	}
}

func TestAuto_NoSources(t *testing.T) {
	t.Parallel()
	a := capture.NewAuto(nil, nil, nil)
	if _, err := a.Capture(context.Background(), "voice", time.Second); err == nil {
		t.Error("capture without sources succeeded")
	}
}
