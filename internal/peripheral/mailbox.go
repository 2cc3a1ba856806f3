package peripheral

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sightwear/sightwear/pkg/audio"
)

// ErrTimeout is returned by [Mailbox.Wait] when no payload arrived in time.
var ErrTimeout = errors.New("peripheral: no audio before timeout")

// Payload is one framed audio stream received from a sensor unit.
type Payload struct {
	// Context is the recording purpose announced with RECORD_TYPE.
	Context string
	Clip    audio.Clip
	From    string
	At      time.Time
}

// Mailbox holds at most one undelivered payload per recording context. A new
// payload replaces an unread one. The zero value is ready to use.
type Mailbox struct {
	mu    sync.Mutex
	slots map[string]chan Payload
}

func (m *Mailbox) slot(name string) chan Payload {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.slots == nil {
		m.slots = make(map[string]chan Payload)
	}
	ch, ok := m.slots[name]
	if !ok {
		ch = make(chan Payload, 1)
		m.slots[name] = ch
	}
	return ch
}

// Deliver stores p under p.Context, replacing any unread payload.
func (m *Mailbox) Deliver(p Payload) {
	ch := m.slot(p.Context)
	m.mu.Lock()
	defer m.mu.Unlock()
	select {
	case <-ch:
	default:
	}
	ch <- p
}

// Take returns the unread payload for name without waiting.
func (m *Mailbox) Take(name string) (Payload, bool) {
	select {
	case p := <-m.slot(name):
		return p, true
	default:
		return Payload{}, false
	}
}

// Discard drops any unread payload for name.
func (m *Mailbox) Discard(name string) { m.Take(name) }

// Wait returns the next payload for name, waiting up to timeout. An unread
// payload is returned immediately.
func (m *Mailbox) Wait(ctx context.Context, name string, timeout time.Duration) (Payload, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case p := <-m.slot(name):
		return p, nil
	case <-ctx.Done():
		return Payload{}, ctx.Err()
	case <-t.C:
		return Payload{}, ErrTimeout
	}
}
