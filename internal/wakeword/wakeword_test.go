package wakeword_test

import (
	"bufio"
	"context"
	"errors"
	"math"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sightwear/sightwear/internal/wakeword"
	"github.com/sightwear/sightwear/pkg/audio"
)

func TestRing_OverwritesOldest(t *testing.T) {
	t.Parallel()
	r := wakeword.NewRing(4)

	if _, ok := r.Latest(1); ok {
		t.Fatal("empty ring returned samples")
	}
	r.Write([]float32{1, 2, 3})
	r.Write([]float32{4, 5, 6})

	if r.Len() != 4 {
		t.Fatalf("Len = %d, want 4", r.Len())
	}
	got, ok := r.Latest(4)
	if !ok {
		t.Fatal("Latest(4) not ok")
	}
	want := []float32{3, 4, 5, 6}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Latest(4) = %v, want %v", got, want)
		}
	}
	if _, ok := r.Latest(5); ok {
		t.Error("Latest beyond capacity returned ok")
	}

	r.Write([]float32{7, 8, 9, 10, 11})
	got, _ = r.Latest(2)
	if got[0] != 10 || got[1] != 11 {
		t.Errorf("Latest(2) after oversize write = %v", got)
	}

	r.Reset()
	if r.Len() != 0 {
		t.Error("Reset left samples")
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
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

func constant(p float64) wakeword.Classifier {
	return wakeword.ClassifierFunc(func([]float32) (float64, error) { return p, nil })
}

func TestDetector_CooldownUnderContinuousWake(t *testing.T) {
	t.Parallel()
	clk := &fakeClock{now: time.Unix(1000, 0)}
	ring := wakeword.NewRing(100)
	d := wakeword.NewDetector(ring, constant(0.99), wakeword.Config{
		SampleRate: 10,
		Window:     2 * time.Second,
		Cooldown:   3 * time.Second,
		Threshold:  0.95,
		Now:        clk.Now,
	})

	fired, err := d.Step()
	if err != nil || fired {
		t.Fatalf("Step with no audio = %v, %v", fired, err)
	}
	if d.State() != wakeword.StateIdle {
		t.Errorf("State = %v, want idle", d.State())
	}

	ring.Write(make([]float32, 20))

	triggers := 0
	// 10s of continuous wake audio at a 0.5s stride.
	for range 20 {
		fired, err := d.Step()
		if err != nil {
			t.Fatal(err)
		}
		if fired {
			triggers++
		}
		clk.Advance(500 * time.Millisecond)
	}
	// Triggers at 0s, 3s, 6s, 9s.
	if triggers != 4 {
		t.Errorf("triggers = %d, want 4", triggers)
	}
}

func TestDetector_States(t *testing.T) {
	t.Parallel()
	clk := &fakeClock{now: time.Unix(1000, 0)}
	ring := wakeword.NewRing(100)
	var p atomic.Value
	p.Store(0.2)
	clf := wakeword.ClassifierFunc(func([]float32) (float64, error) { return p.Load().(float64), nil })
	d := wakeword.NewDetector(ring, clf, wakeword.Config{SampleRate: 10, Window: time.Second, Now: clk.Now})
	ring.Write(make([]float32, 10))

	d.Step()
	if d.State() != wakeword.StateListening {
		t.Fatalf("State = %v, want listening", d.State())
	}

	p.Store(0.97)
	if fired, _ := d.Step(); !fired {
		t.Fatal("did not fire above threshold")
	}
	if d.State() != wakeword.StateTriggered {
		t.Errorf("State = %v, want triggered", d.State())
	}

	clk.Advance(time.Second)
	d.Step()
	if d.State() != wakeword.StateCooldown {
		t.Errorf("State = %v, want cooldown", d.State())
	}

	clk.Advance(3 * time.Second)
	if d.State() != wakeword.StateListening {
		t.Errorf("State after cooldown = %v, want listening", d.State())
	}
}

func TestDetector_ThresholdIsStrict(t *testing.T) {
	t.Parallel()
	ring := wakeword.NewRing(10)
	ring.Write(make([]float32, 10))
	d := wakeword.NewDetector(ring, constant(0.95), wakeword.Config{SampleRate: 10, Window: time.Second})
	if fired, _ := d.Step(); fired {
		t.Error("fired at exactly the threshold")
	}
	d.SetThreshold(0.9)
	if fired, _ := d.Step(); !fired {
		t.Error("did not fire after lowering the threshold")
	}
}

func TestDetector_ClassifierError(t *testing.T) {
	t.Parallel()
	ring := wakeword.NewRing(10)
	ring.Write(make([]float32, 10))
	boom := errors.New("model broke")
	d := wakeword.NewDetector(ring, wakeword.ClassifierFunc(func([]float32) (float64, error) {
		return 0, boom
	}), wakeword.Config{SampleRate: 10, Window: time.Second})

	if _, err := d.Step(); !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}

func TestSignal_ClearOnRead(t *testing.T) {
	t.Parallel()
	var s wakeword.Signal

	if _, ok := s.Consume(); ok {
		t.Fatal("zero Signal was pending")
	}
	if !s.Raise("detector") {
		t.Fatal("first Raise returned false")
	}
	if s.Raise("keyboard") {
		t.Error("second Raise while pending returned true")
	}
	if !s.Pending() {
		t.Error("Pending = false after Raise")
	}
	src, ok := s.Consume()
	if !ok || src != "detector" {
		t.Errorf("Consume = %q, %v", src, ok)
	}
	if _, ok := s.Consume(); ok {
		t.Error("second Consume returned ok")
	}
}

func TestWakeProbability(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		scores []float32
		want   float64
	}{
		{"empty", nil, 0},
		{"single probability", []float32{0.8}, 0.8},
		{"single logit", []float32{2}, 0.880797},
		{"distribution", []float32{0.03, 0.97}, 0.97},
		{"logits", []float32{0, 0}, 0.5},
	}
	for _, tt := range tests {
		got := wakeword.WakeProbability(tt.scores)
		if math.Abs(got-tt.want) > 1e-5 {
			t.Errorf("%s: WakeProbability(%v) = %v, want %v", tt.name, tt.scores, got, tt.want)
		}
	}
}

func TestServer_StreamTriggersOnce(t *testing.T) {
	t.Parallel()
	var wakes atomic.Int32
	srv := wakeword.NewServer(wakeword.ServerConfig{
		ListenAddr: "127.0.0.1:0",
		Buffer:     time.Second,
		Detector: wakeword.Config{
			SampleRate: 100,
			Window:     500 * time.Millisecond,
			Stride:     10 * time.Millisecond,
			Cooldown:   time.Hour,
		},
	}, constant(0.99), func() { wakes.Add(1) })
	if err := srv.Listen(); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	// 1s of audio written with an odd split to exercise sample carry-over.
	pcm := audio.Int16ToBytes(make([]int16, 100))
	if _, err := conn.Write(pcm[:51]); err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Write(pcm[51:]); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if line != wakeword.WakeLine {
		t.Errorf("line = %q, want %q", line, wakeword.WakeLine)
	}

	time.Sleep(100 * time.Millisecond)
	if n := wakes.Load(); n != 1 {
		t.Errorf("onWake called %d times, want 1 within cooldown", n)
	}
}
