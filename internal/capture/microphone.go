package capture

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/sightwear/sightwear/pkg/audio"
	"github.com/sightwear/sightwear/pkg/provider/vad"
)

// Stream yields fixed-size frames of mono 16-bit PCM.
type Stream interface {
	Read(frame []int16) error
	Close() error
}

// StreamOpener opens a capture stream.
type StreamOpener func(sampleRate, frameSize int) (Stream, error)

// MicrophoneConfig configures a [Microphone].
type MicrophoneConfig struct {
	SampleRate int
	FrameSize  int

	SpeechThreshold  float64
	SilenceThreshold float64
	Hangover         time.Duration

	// MaxDuration caps one utterance. Default: 10s.
	MaxDuration time.Duration
}

// Microphone records from a local input device and ends the utterance when
// the voice activity detector reports the end of speech.
type Microphone struct {
	open   StreamOpener
	engine vad.Engine
	cfg    MicrophoneConfig
}

// NewMicrophone returns a microphone source.
func NewMicrophone(open StreamOpener, engine vad.Engine, cfg MicrophoneConfig) *Microphone {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = cfg.SampleRate / 50
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = 10 * time.Second
	}
	return &Microphone{open: open, engine: engine, cfg: cfg}
}

// Capture implements [Source]. timeout bounds the wait for speech to start;
// once speech started, recording continues until it ends or MaxDuration.
func (m *Microphone) Capture(ctx context.Context, _ string, timeout time.Duration) (audio.Clip, error) {
	sess, err := m.engine.NewSession(vad.Config{
		SampleRate:       m.cfg.SampleRate,
		SpeechThreshold:  m.cfg.SpeechThreshold,
		SilenceThreshold: m.cfg.SilenceThreshold,
		HangoverMs:       int(m.cfg.Hangover / time.Millisecond),
	})
	if err != nil {
		return audio.Clip{}, fmt.Errorf("capture: vad: %w", err)
	}
	defer sess.Close()

	stream, err := m.open(m.cfg.SampleRate, m.cfg.FrameSize)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("capture: open microphone: %w", err)
	}
	defer stream.Close()

	frameDur := time.Duration(m.cfg.FrameSize) * time.Second / time.Duration(m.cfg.SampleRate)
	waitFrames := int(timeout / frameDur)
	maxFrames := int(m.cfg.MaxDuration / frameDur)

	buf := make([]int16, m.cfg.FrameSize)
	var (
		out      []int16
		speaking bool
	)
	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return audio.Clip{}, err
		}
		if !speaking && timeout > 0 && i >= waitFrames {
			return audio.Clip{}, ErrNothingCaptured
		}
		if speaking && len(out) >= maxFrames*m.cfg.FrameSize {
			break
		}
		if err := stream.Read(buf); err != nil {
			return audio.Clip{}, fmt.Errorf("capture: read microphone: %w", err)
		}
		ev, err := sess.Process(buf)
		if err != nil {
			return audio.Clip{}, fmt.Errorf("capture: vad: %w", err)
		}
		switch ev.Type {
		case vad.SpeechStart:
			speaking = true
			out = append(out, buf...)
		case vad.SpeechContinue:
			out = append(out, buf...)
		case vad.SpeechEnd:
			out = append(out, buf...)
			return audio.Clip{Samples: out, SampleRate: m.cfg.SampleRate}, nil
		}
	}
	return audio.Clip{Samples: out, SampleRate: m.cfg.SampleRate}, nil
}

var (
	paOnce sync.Once
	paErr  error
	paUp   atomic.Bool
)

func paInit() error {
	paOnce.Do(func() {
		paErr = portaudio.Initialize()
		paUp.Store(paErr == nil)
	})
	return paErr
}

// OpenPortAudio opens the default input device through PortAudio.
func OpenPortAudio(sampleRate, frameSize int) (Stream, error) {
	if err := paInit(); err != nil {
		return nil, err
	}
	s := &paStream{buf: make([]int16, frameSize)}
	st, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), frameSize, s.buf)
	if err != nil {
		return nil, err
	}
	if err := st.Start(); err != nil {
		st.Close()
		return nil, err
	}
	s.st = st
	return s, nil
}

// TerminatePortAudio releases PortAudio. Call once at shutdown.
func TerminatePortAudio() error {
	if !paUp.Load() {
		return nil
	}
	return portaudio.Terminate()
}

type paStream struct {
	st  *portaudio.Stream
	buf []int16
}

func (s *paStream) Read(frame []int16) error {
	if err := s.st.Read(); err != nil {
		return err
	}
	copy(frame, s.buf)
	return nil
}

func (s *paStream) Close() error {
	_ = s.st.Stop()
	return s.st.Close()
}
