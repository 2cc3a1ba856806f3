package arbiter_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sightwear/sightwear/internal/arbiter"
)

// recordingSpeaker counts calls and tracks how many run at once. When gate is
// non-nil every call blocks until it receives from gate.
type recordingSpeaker struct {
	gate    chan struct{}
	started chan string
	err     error
	delay   time.Duration

	active    atomic.Int32
	maxActive atomic.Int32

	mu    sync.Mutex
	texts []string
	vols  []float64
}

func (s *recordingSpeaker) Speak(ctx context.Context, text, language string, volume float64) error {
	n := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		cur := s.maxActive.Load()
		if n <= cur || s.maxActive.CompareAndSwap(cur, n) {
			break
		}
	}
	if s.started != nil {
		s.started <- text
	}
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	s.texts = append(s.texts, text)
	s.vols = append(s.vols, volume)
	s.mu.Unlock()
	return s.err
}

func (s *recordingSpeaker) played() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.texts))
	copy(out, s.texts)
	return out
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 15, 4, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 2s")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSpeak_BlockingPlaysAndStamps(t *testing.T) {
	t.Parallel()
	spk := &recordingSpeaker{}
	clk := newFakeClock()
	a := arbiter.New(spk, arbiter.WithClock(clk.Now))
	defer a.Close()

	ok, err := a.Speak(context.Background(), arbiter.Request{Text: "hello", Blocking: true})
	if err != nil || !ok {
		t.Fatalf("Speak = %v, %v; want true, nil", ok, err)
	}
	if got := spk.played(); len(got) != 1 || got[0] != "hello" {
		t.Fatalf("played = %v", got)
	}
	if !a.LastPlayed().Equal(clk.Now()) {
		t.Errorf("LastPlayed = %v, want %v", a.LastPlayed(), clk.Now())
	}
	if spk.vols[0] != 1 {
		t.Errorf("volume = %v, want 1 for unset volume", spk.vols[0])
	}
}

func TestSpeak_RoutineDroppedWhileBusy(t *testing.T) {
	t.Parallel()
	spk := &recordingSpeaker{gate: make(chan struct{}), started: make(chan string, 4)}
	a := arbiter.New(spk, arbiter.WithMinInterval(0))
	defer a.Close()

	ok, err := a.Speak(context.Background(), arbiter.Request{Text: "first"})
	if err != nil || !ok {
		t.Fatalf("first Speak = %v, %v", ok, err)
	}
	<-spk.started
	if !a.Busy() {
		t.Fatal("Busy() = false during playback")
	}

	ok, err = a.Speak(context.Background(), arbiter.Request{Text: "second"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("routine request accepted while busy")
	}

	spk.gate <- struct{}{}
	waitFor(t, func() bool { return !a.Busy() && len(spk.played()) == 1 })
	if got := spk.played(); got[0] != "first" {
		t.Errorf("played = %v, want [first]", got)
	}
}

func TestSpeak_UrgentWaitsForDevice(t *testing.T) {
	t.Parallel()
	spk := &recordingSpeaker{gate: make(chan struct{}), started: make(chan string, 4)}
	a := arbiter.New(spk)
	defer a.Close()

	if _, err := a.Speak(context.Background(), arbiter.Request{Text: "narration"}); err != nil {
		t.Fatal(err)
	}
	<-spk.started

	done := make(chan error, 1)
	go func() {
		_, err := a.Speak(context.Background(), arbiter.Request{Text: "urgent", Priority: 1, Blocking: true})
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("urgent request returned while the device was busy")
	case <-time.After(50 * time.Millisecond):
	}

	spk.gate <- struct{}{}
	if text := <-spk.started; text != "urgent" {
		t.Fatalf("second playback = %q, want urgent", text)
	}
	spk.gate <- struct{}{}
	if err := <-done; err != nil {
		t.Fatalf("urgent Speak: %v", err)
	}
	if got := spk.played(); len(got) != 2 || got[1] != "urgent" {
		t.Errorf("played = %v", got)
	}
}

func TestSpeak_UrgentBypassesRateLimit(t *testing.T) {
	t.Parallel()
	spk := &recordingSpeaker{}
	clk := newFakeClock()
	a := arbiter.New(spk, arbiter.WithClock(clk.Now))
	defer a.Close()

	ctx := context.Background()
	a.Speak(ctx, arbiter.Request{Text: "a", Blocking: true})
	ok, err := a.Speak(ctx, arbiter.Request{Text: "b", Priority: 1, Blocking: true})
	if !ok || err != nil {
		t.Fatalf("urgent Speak = %v, %v", ok, err)
	}
	if n := len(spk.played()); n != 2 {
		t.Errorf("played %d utterances, want 2", n)
	}
}

func TestSpeak_RateLimit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		advance time.Duration
		want    int
	}{
		{name: "back to back", advance: 0, want: 1},
		{name: "within interval", advance: 1400 * time.Millisecond, want: 1},
		{name: "after interval", advance: 1500 * time.Millisecond, want: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			spk := &recordingSpeaker{}
			clk := newFakeClock()
			a := arbiter.New(spk, arbiter.WithClock(clk.Now), arbiter.WithMinInterval(1500*time.Millisecond))
			defer a.Close()

			ctx := context.Background()
			a.Speak(ctx, arbiter.Request{Text: "A", Blocking: true})
			clk.Advance(tt.advance)
			a.Speak(ctx, arbiter.Request{Text: "A", Blocking: true})

			if got := len(spk.played()); got != tt.want {
				t.Errorf("played %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSpeak_MutualExclusion(t *testing.T) {
	t.Parallel()
	spk := &recordingSpeaker{delay: 2 * time.Millisecond}
	a := arbiter.New(spk, arbiter.WithMinInterval(0))
	defer a.Close()

	var wg sync.WaitGroup
	for i := range 40 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a.Speak(context.Background(), arbiter.Request{
				Text:     "x",
				Priority: i % 2,
				Blocking: i%3 == 0,
			})
		}(i)
	}
	wg.Wait()
	waitFor(t, func() bool { return !a.Busy() })

	if m := spk.maxActive.Load(); m != 1 {
		t.Errorf("max concurrent playbacks = %d, want 1", m)
	}
	if len(spk.played()) == 0 {
		t.Error("nothing played")
	}
}

func TestSpeak_ErrorReleasesDevice(t *testing.T) {
	t.Parallel()
	boom := errors.New("synth down")
	spk := &recordingSpeaker{err: boom}
	a := arbiter.New(spk, arbiter.WithMinInterval(0))
	defer a.Close()

	ctx := context.Background()
	_, err := a.Speak(ctx, arbiter.Request{Text: "one", Priority: 1, Blocking: true})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if !a.LastPlayed().IsZero() {
		t.Error("failed playback stamped LastPlayed")
	}

	spk.err = nil
	ok, err := a.Speak(ctx, arbiter.Request{Text: "two", Blocking: true})
	if !ok || err != nil {
		t.Fatalf("Speak after failure = %v, %v; device not released", ok, err)
	}
}

// panickySpeaker panics on its first call and then plays normally.
type panickySpeaker struct {
	calls atomic.Int32
	rec   recordingSpeaker
}

func (s *panickySpeaker) Speak(ctx context.Context, text, language string, volume float64) error {
	if s.calls.Add(1) == 1 {
		panic("tts backend exploded")
	}
	return s.rec.Speak(ctx, text, language, volume)
}

func TestSpeak_PanickingSpeakerIsContained(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("worker", func(t *testing.T) {
		t.Parallel()
		spk := &panickySpeaker{}
		a := arbiter.New(spk, arbiter.WithMinInterval(0))
		defer a.Close()

		if ok, err := a.Speak(ctx, arbiter.Request{Text: "boom", Priority: 1}); !ok || err != nil {
			t.Fatalf("Speak = %v, %v", ok, err)
		}
		// The worker survived and released the device.
		ok, err := a.Speak(ctx, arbiter.Request{Text: "after", Priority: 1, Blocking: true})
		if !ok || err != nil {
			t.Fatalf("Speak after panic = %v, %v", ok, err)
		}
		if got := spk.rec.played(); len(got) != 1 || got[0] != "after" {
			t.Errorf("played = %v, want [after]", got)
		}
	})

	t.Run("blocking caller", func(t *testing.T) {
		t.Parallel()
		a := arbiter.New(&panickySpeaker{}, arbiter.WithMinInterval(0))
		defer a.Close()

		if _, err := a.Speak(ctx, arbiter.Request{Text: "boom", Priority: 1, Blocking: true}); err == nil {
			t.Fatal("Speak returned nil error for a panicking speaker")
		}
		if ok, err := a.Speak(ctx, arbiter.Request{Text: "after", Blocking: true}); !ok || err != nil {
			t.Fatalf("Speak after panic = %v, %v; device not released", ok, err)
		}
	})
}

func TestSpeak_NonBlockingReturnsImmediately(t *testing.T) {
	t.Parallel()
	spk := &recordingSpeaker{gate: make(chan struct{})}
	a := arbiter.New(spk)
	defer a.Close()

	start := time.Now()
	ok, err := a.Speak(context.Background(), arbiter.Request{Text: "later", Priority: 1})
	if !ok || err != nil {
		t.Fatalf("Speak = %v, %v", ok, err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("non-blocking Speak waited for playback")
	}
	close(spk.gate)
	waitFor(t, func() bool { return len(spk.played()) == 1 })
}

func TestSpeak_UrgentHonoursContext(t *testing.T) {
	t.Parallel()
	spk := &recordingSpeaker{gate: make(chan struct{}), started: make(chan string, 1)}
	a := arbiter.New(spk)
	defer a.Close()

	a.Speak(context.Background(), arbiter.Request{Text: "hold"})
	<-spk.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	ok, err := a.Speak(ctx, arbiter.Request{Text: "urgent", Priority: 1, Blocking: true})
	if ok || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Speak = %v, %v; want false, deadline exceeded", ok, err)
	}
	close(spk.gate)
}

func TestClose(t *testing.T) {
	t.Parallel()
	spk := &recordingSpeaker{gate: make(chan struct{}), started: make(chan string, 1)}
	a := arbiter.New(spk)

	a.Speak(context.Background(), arbiter.Request{Text: "hold"})
	<-spk.started

	waiting := make(chan error, 1)
	go func() {
		_, err := a.Speak(context.Background(), arbiter.Request{Text: "urgent", Priority: 1, Blocking: true})
		waiting <- err
	}()
	time.Sleep(20 * time.Millisecond)

	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := <-waiting; !errors.Is(err, arbiter.ErrClosed) {
		t.Errorf("waiting Speak err = %v, want ErrClosed", err)
	}
	if _, err := a.Speak(context.Background(), arbiter.Request{Text: "after"}); !errors.Is(err, arbiter.ErrClosed) {
		t.Errorf("Speak after Close err = %v, want ErrClosed", err)
	}
	a.Close()
}
