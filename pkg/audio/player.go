package audio

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/speaker"
	beepwav "github.com/faiface/beep/wav"
)

// Player plays WAV clips through the default output device. Playback volume is
// the product of the master gain and the per-call volume.
//
// Play calls are not mixed: callers serialise them (the arbiter does).
type Player struct {
	rate beep.SampleRate

	initOnce sync.Once
	initErr  error

	mu     sync.Mutex
	master float64
}

// NewPlayer returns a Player whose speaker runs at sampleRate. The device is
// opened lazily on the first Play.
func NewPlayer(sampleRate int) *Player {
	if sampleRate <= 0 {
		sampleRate = 22050
	}
	return &Player{rate: beep.SampleRate(sampleRate), master: 1}
}

// Master returns the master gain in [0, 1].
func (p *Player) Master() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.master
}

// SetMaster sets the master gain, clamped to [0, 1], and returns the value
// applied.
func (p *Player) SetMaster(g float64) float64 {
	g = math.Max(0, math.Min(1, g))
	p.mu.Lock()
	p.master = g
	p.mu.Unlock()
	return g
}

// Play decodes a WAV clip and blocks until it has finished playing or ctx is
// done. volume is clamped to [0, 1].
func (p *Player) Play(ctx context.Context, wavData []byte, volume float64) error {
	p.initOnce.Do(func() {
		p.initErr = speaker.Init(p.rate, p.rate.N(time.Second/10))
	})
	if p.initErr != nil {
		return fmt.Errorf("audio: init speaker: %w", p.initErr)
	}

	stream, format, err := beepwav.Decode(bytes.NewReader(wavData))
	if err != nil {
		return fmt.Errorf("audio: decode clip: %w", err)
	}
	defer stream.Close()

	var s beep.Streamer = stream
	if format.SampleRate != p.rate {
		s = beep.Resample(4, format.SampleRate, p.rate, s)
	}
	s = gain(s, p.Master()*math.Max(0, math.Min(1, volume)))

	done := make(chan struct{})
	speaker.Play(beep.Seq(s, beep.Callback(func() { close(done) })))
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Clear()
		return ctx.Err()
	}
}

// gain wraps s in a volume effect. effects.Volume works in log2 steps, so a
// linear gain g maps to Volume = log2(g).
func gain(s beep.Streamer, g float64) beep.Streamer {
	if g >= 1 {
		return s
	}
	if g <= 0 {
		return &effects.Volume{Streamer: s, Base: 2, Silent: true}
	}
	return &effects.Volume{Streamer: s, Base: 2, Volume: math.Log2(g)}
}
