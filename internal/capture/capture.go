// Package capture records one spoken utterance for the voice flow, either
// from a connected sensor unit or from the local microphone.
package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sightwear/sightwear/internal/peripheral"
	"github.com/sightwear/sightwear/pkg/audio"
)

// ErrNothingCaptured is returned when no speech arrived before the timeout.
var ErrNothingCaptured = errors.New("capture: nothing captured")

// Source records one utterance. purpose names the recording context
// ("voice", "language") so that a peripheral can tag its upload.
type Source interface {
	Capture(ctx context.Context, purpose string, timeout time.Duration) (audio.Clip, error)
}

// Mailbox is the part of the peripheral link a [Peripheral] source reads.
type Mailbox interface {
	Wait(ctx context.Context, name string, timeout time.Duration) (peripheral.Payload, error)
	Discard(name string)
}

// Peripheral waits for a framed audio upload from a sensor unit.
type Peripheral struct {
	mb Mailbox
}

// NewPeripheral returns a source reading mb.
func NewPeripheral(mb Mailbox) *Peripheral { return &Peripheral{mb: mb} }

// Capture implements [Source].
func (p *Peripheral) Capture(ctx context.Context, purpose string, timeout time.Duration) (audio.Clip, error) {
	payload, err := p.mb.Wait(ctx, purpose, timeout)
	if errors.Is(err, peripheral.ErrTimeout) {
		return audio.Clip{}, fmt.Errorf("%w: %w", ErrNothingCaptured, err)
	}
	if err != nil {
		return audio.Clip{}, err
	}
	if payload.Clip.Empty() {
		return audio.Clip{}, ErrNothingCaptured
	}
	return payload.Clip, nil
}

// Forget drops a stale upload for purpose, so the next capture only sees
// audio recorded after the prompt.
func (p *Peripheral) Forget(purpose string) { p.mb.Discard(purpose) }

// Auto captures from the peripheral while one is connected and from the
// local microphone otherwise.
type Auto struct {
	peripheral *Peripheral
	mic        Source
	connected  func() int
}

// NewAuto returns an automatic source. Either source may be nil.
func NewAuto(p *Peripheral, mic Source, connected func() int) *Auto {
	return &Auto{peripheral: p, mic: mic, connected: connected}
}

// Capture implements [Source].
func (a *Auto) Capture(ctx context.Context, purpose string, timeout time.Duration) (audio.Clip, error) {
	src, err := a.pick()
	if err != nil {
		return audio.Clip{}, err
	}
	return src.Capture(ctx, purpose, timeout)
}

// Forget discards stale peripheral audio when a peripheral is in use.
func (a *Auto) Forget(purpose string) {
	if a.peripheral != nil {
		a.peripheral.Forget(purpose)
	}
}

func (a *Auto) pick() (Source, error) {
	usePeripheral := a.peripheral != nil && (a.mic == nil || (a.connected != nil && a.connected() > 0))
	switch {
	case usePeripheral:
		return a.peripheral, nil
	case a.mic != nil:
		return a.mic, nil
	}
	return nil, errors.New("capture: no audio source configured")
}
