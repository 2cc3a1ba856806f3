package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBackoff_DoublesAndCaps(t *testing.T) {
	t.Parallel()
	b := NewBackoff(500*time.Millisecond, 3*time.Second)
	want := []time.Duration{
		500 * time.Millisecond, time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second,
	}
	for i, w := range want {
		if got := b.Next(); got != w {
			t.Errorf("Next() #%d = %v, want %v", i, got, w)
		}
	}
	b.Reset()
	if got := b.Next(); got != 500*time.Millisecond {
		t.Errorf("Next() after Reset = %v", got)
	}
}

func TestBackoff_Defaults(t *testing.T) {
	t.Parallel()
	b := NewBackoff(0, 0)
	if b.initial != 500*time.Millisecond || b.max != 10*time.Second {
		t.Errorf("defaults = %v..%v", b.initial, b.max)
	}
}

func TestBackoff_WaitCancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := NewBackoff(time.Hour, time.Hour)
	if err := b.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() = %v, want context.Canceled", err)
	}
}
