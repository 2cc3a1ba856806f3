package vision_test

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sightwear/sightwear/internal/arbiter"
	"github.com/sightwear/sightwear/internal/frame"
	"github.com/sightwear/sightwear/internal/vision"
)

type stubDetector struct {
	dets  []vision.Detection
	err   error
	calls atomic.Int32
}

func (d *stubDetector) Detect(context.Context, *frame.Frame) ([]vision.Detection, error) {
	d.calls.Add(1)
	return d.dets, d.err
}

type stubDepth struct {
	fill  float32
	err   error
	calls atomic.Int32
}

func (d *stubDepth) Estimate(_ context.Context, f *frame.Frame) (*vision.DepthMap, error) {
	d.calls.Add(1)
	if d.err != nil {
		return nil, d.err
	}
	dm := &vision.DepthMap{Width: f.Width, Height: f.Height, Values: make([]float32, f.Width*f.Height)}
	for i := range dm.Values {
		dm.Values[i] = d.fill
	}
	return dm, nil
}

type captureSpeaker struct {
	mu   sync.Mutex
	reqs []arbiter.Request
}

func (s *captureSpeaker) Speak(_ context.Context, req arbiter.Request) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	return true, nil
}

func (s *captureSpeaker) requests() []arbiter.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]arbiter.Request(nil), s.reqs...)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testFrame() *frame.Frame {
	return &frame.Frame{JPEG: []byte{0xff, 0xd8}, Width: 64, Height: 48, Seq: 1}
}

func det(class string, conf float64) vision.Detection {
	return vision.Detection{Box: image.Rect(10, 10, 20, 20), Confidence: conf, Class: class}
}

func TestDescribe(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   []string
		want string
	}{
		{nil, ""},
		{[]string{"chair"}, "1 chair in front of you"},
		{[]string{"person", "person"}, "2 persons in front of you"},
		{[]string{"person", "chair", "person"}, "2 persons, and 1 chair in front of you"},
		{[]string{"car", "dog", "bench"}, "1 car, 1 dog, and 1 bench in front of you"},
	}
	for _, tt := range tests {
		if got := vision.Describe(tt.in); got != tt.want {
			t.Errorf("Describe(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDepthMap_MinIn(t *testing.T) {
	t.Parallel()
	dm := &vision.DepthMap{Width: 4, Height: 3, Values: []float32{
		9, 9, 9, 9,
		9, 3, 7, 9,
		9, 9, 9, 1,
	}}
	if v, ok := dm.MinIn(image.Rect(1, 1, 3, 2)); !ok || v != 3 {
		t.Errorf("MinIn inner = %v, %v; want 3, true", v, ok)
	}
	if v, ok := dm.MinIn(image.Rect(2, 1, 10, 10)); !ok || v != 1 {
		t.Errorf("MinIn clipped = %v, %v; want 1, true", v, ok)
	}
	if _, ok := dm.MinIn(image.Rect(5, 5, 8, 8)); ok {
		t.Error("MinIn outside the map reported ok")
	}
}

func TestProcess_AnnouncesCloseObjects(t *testing.T) {
	t.Parallel()
	d := &stubDetector{dets: []vision.Detection{det("person", 0.9), det("chair", 0.7), det("cup", 0.3)}}
	spk := &captureSpeaker{}
	p := vision.NewPipeline(d, &stubDepth{fill: 50}, spk, vision.Config{})

	res, err := p.Process(context.Background(), testFrame(), vision.Options{Language: "en", Volume: 1})
	if err != nil {
		t.Fatal(err)
	}
	if want := "1 person, and 1 chair in front of you"; res.Sentence != want {
		t.Errorf("Sentence = %q, want %q", res.Sentence, want)
	}
	reqs := spk.requests()
	if len(reqs) != 1 {
		t.Fatalf("spoke %d times, want 1", len(reqs))
	}
	if reqs[0].Priority != 0 || reqs[0].Blocking {
		t.Errorf("request = %+v, want routine non-blocking", reqs[0])
	}
}

func TestProcess_FarObjectsStayQuiet(t *testing.T) {
	t.Parallel()
	spk := &captureSpeaker{}
	p := vision.NewPipeline(&stubDetector{dets: []vision.Detection{det("person", 0.9)}},
		&stubDepth{fill: 900}, spk, vision.Config{})

	res, err := p.Process(context.Background(), testFrame(), vision.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Close) != 0 || len(spk.requests()) != 0 {
		t.Errorf("far object announced: %+v", res)
	}
}

func TestProcess_SilentSkipsSpeech(t *testing.T) {
	t.Parallel()
	spk := &captureSpeaker{}
	p := vision.NewPipeline(&stubDetector{dets: []vision.Detection{det("dog", 0.9)}},
		&stubDepth{fill: 10}, spk, vision.Config{})

	res, err := p.Process(context.Background(), testFrame(), vision.Options{Silent: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Sentence == "" || res.Spoken || len(spk.requests()) != 0 {
		t.Errorf("silent run spoke: %+v", res)
	}
}

func TestProcess_DepthCachedWithinInterval(t *testing.T) {
	t.Parallel()
	clk := &clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	d, dep := &stubDetector{}, &stubDepth{fill: 500}
	p := vision.NewPipeline(d, dep, &captureSpeaker{}, vision.Config{DepthInterval: 2 * time.Second, Now: clk.Now})

	ctx := context.Background()
	steps := []struct {
		advance time.Duration
		refresh bool
	}{
		{0, true},
		{500 * time.Millisecond, false},
		{time.Second, false},
		{600 * time.Millisecond, true},
		{100 * time.Millisecond, false},
	}
	for i, s := range steps {
		clk.Advance(s.advance)
		res, err := p.Process(ctx, testFrame(), vision.Options{})
		if err != nil {
			t.Fatal(err)
		}
		if res.DepthRefreshed != s.refresh {
			t.Errorf("step %d: DepthRefreshed = %v, want %v", i, res.DepthRefreshed, s.refresh)
		}
	}
	if n := d.calls.Load(); n != int32(len(steps)) {
		t.Errorf("detector ran %d times, want %d", n, len(steps))
	}
	if n := dep.calls.Load(); n != 2 {
		t.Errorf("depth ran %d times, want 2", n)
	}
	st := p.State()
	if !st.LastDetection.Equal(clk.Now()) || st.Depth == nil {
		t.Errorf("state = %+v", st)
	}
}

func TestProcess_SetThresholds(t *testing.T) {
	t.Parallel()
	spk := &captureSpeaker{}
	p := vision.NewPipeline(&stubDetector{dets: []vision.Detection{det("bus", 0.7)}},
		&stubDepth{fill: 250}, spk, vision.Config{})
	ctx := context.Background()

	if res, _ := p.Process(ctx, testFrame(), vision.Options{}); len(res.Close) != 0 {
		t.Fatalf("close = %v before raising the threshold", res.Close)
	}
	p.SetThresholds(0.8, 300, 0)
	if res, _ := p.Process(ctx, testFrame(), vision.Options{}); len(res.Close) != 0 {
		t.Errorf("0.7 detection passed a 0.8 cutoff")
	}
	p.SetThresholds(0.5, 0, 0)
	if res, _ := p.Process(ctx, testFrame(), vision.Options{}); len(res.Close) != 1 {
		t.Errorf("close = %v, want [bus] at depth 250 < 300", res.Close)
	}
}

func TestProcess_Errors(t *testing.T) {
	t.Parallel()
	boom := errors.New("model crashed")
	ctx := context.Background()

	p := vision.NewPipeline(&stubDetector{err: boom}, &stubDepth{}, &captureSpeaker{}, vision.Config{})
	if _, err := p.Process(ctx, testFrame(), vision.Options{}); !errors.Is(err, boom) {
		t.Errorf("detect err = %v, want %v", err, boom)
	}
	p = vision.NewPipeline(&stubDetector{}, &stubDepth{err: boom}, &captureSpeaker{}, vision.Config{})
	if _, err := p.Process(ctx, testFrame(), vision.Options{}); !errors.Is(err, boom) {
		t.Errorf("depth err = %v, want %v", err, boom)
	}
}

func TestSupervisor_SingleTask(t *testing.T) {
	t.Parallel()
	var cell frame.Cell
	spk := &captureSpeaker{}
	p := vision.NewPipeline(&stubDetector{dets: []vision.Detection{det("person", 0.9)}},
		&stubDepth{fill: 10}, spk, vision.Config{})
	s := vision.NewSupervisor(p, &cell, vision.NarrationConfig{
		Interval: 5 * time.Millisecond,
		Language: func() string { return "tw" },
	})
	ctx := context.Background()

	if !s.Start(ctx) {
		t.Fatal("first Start returned false")
	}
	if s.Start(ctx) {
		t.Error("second Start launched another task")
	}
	cell.Store(*testFrame())

	deadline := time.Now().Add(2 * time.Second)
	for len(spk.requests()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("narration never spoke")
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()
	if s.Running() {
		t.Error("Running() after Stop")
	}

	reqs := spk.requests()
	if len(reqs) != 1 {
		t.Errorf("spoke %d times for one frame, want 1", len(reqs))
	}
	if reqs[0].Volume != 0.3 || reqs[0].Language != "tw" {
		t.Errorf("request = %+v, want volume 0.3 language tw", reqs[0])
	}
	s.Stop()
}

func TestSupervisor_SilencedWhileWakePending(t *testing.T) {
	t.Parallel()
	var cell frame.Cell
	cell.Store(*testFrame())
	d := &stubDetector{dets: []vision.Detection{det("person", 0.9)}}
	spk := &captureSpeaker{}
	p := vision.NewPipeline(d, &stubDepth{fill: 10}, spk, vision.Config{})
	s := vision.NewSupervisor(p, &cell, vision.NarrationConfig{
		Interval: 5 * time.Millisecond,
		Silenced: func() bool { return true },
	})

	s.Start(context.Background())
	deadline := time.Now().Add(2 * time.Second)
	for d.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("pipeline never ran")
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()
	if n := len(spk.requests()); n != 0 {
		t.Errorf("spoke %d times while silenced", n)
	}
}
