// Package vision turns camera frames into spoken obstacle warnings.
//
// A [Pipeline] runs object detection on every invocation and refreshes its
// cached depth map only when the depth interval has elapsed. Detections whose
// box reaches into near depth are announced through the speech arbiter. The
// same pipeline serves the active vision mode (synchronously, at full volume)
// and the background narration task managed by a [Supervisor].
package vision

import (
	"context"
	"fmt"
	"image"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/sightwear/sightwear/internal/arbiter"
	"github.com/sightwear/sightwear/internal/frame"
	"github.com/sightwear/sightwear/internal/observe"
)

// Detection is one detected object in frame pixel coordinates.
type Detection struct {
	Box        image.Rectangle
	Confidence float64
	Class      string
}

// DepthMap is a relative depth value per frame pixel, row-major.
type DepthMap struct {
	Width  int
	Height int
	Values []float32
}

// MinIn returns the smallest depth inside r, clipped to the map. ok is false
// when the clipped region is empty.
func (d *DepthMap) MinIn(r image.Rectangle) (v float32, ok bool) {
	r = r.Intersect(image.Rect(0, 0, d.Width, d.Height))
	if r.Empty() || len(d.Values) < d.Width*d.Height {
		return 0, false
	}
	v = d.Values[r.Min.Y*d.Width+r.Min.X]
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := d.Values[y*d.Width : (y+1)*d.Width]
		for x := r.Min.X; x < r.Max.X; x++ {
			v = min(v, row[x])
		}
	}
	return v, true
}

// Detector finds objects in a frame.
type Detector interface {
	Detect(ctx context.Context, f *frame.Frame) ([]Detection, error)
}

// DepthEstimator produces a relative depth map at frame resolution.
type DepthEstimator interface {
	Estimate(ctx context.Context, f *frame.Frame) (*DepthMap, error)
}

// Speaker is the part of the arbiter the pipeline needs.
type Speaker interface {
	Speak(ctx context.Context, req arbiter.Request) (bool, error)
}

// State is the pipeline's cache, written once per invocation.
type State struct {
	LastDetection time.Time
	LastDepth     time.Time
	Depth         *DepthMap
}

// Config tunes a [Pipeline]. Zero values take defaults.
type Config struct {
	// ConfidenceCutoff drops weaker detections. Default: 0.6.
	ConfidenceCutoff float64

	// CloseDepth marks an object close when any depth value inside its box
	// is below it. Default: 200.
	CloseDepth float64

	// DepthInterval is the maximum age of the cached depth map. Default: 2s.
	DepthInterval time.Duration

	Metrics *observe.Metrics

	// Now overrides time.Now. Tests only.
	Now func() time.Time
}

// Options describe one invocation.
type Options struct {
	Language string

	// Volume of the announcement in (0, 1].
	Volume float64

	// Silent suppresses the announcement, e.g. while a wake is pending.
	Silent bool

	// Path labels metrics: "active" or "passive".
	Path string
}

// Result reports one invocation.
type Result struct {
	Detections []Detection
	Close      []string
	Sentence   string
	Spoken     bool

	// DepthRefreshed is true when this invocation recomputed the depth map.
	DepthRefreshed bool
}

// Pipeline runs detection and depth over frames. Invocations are
// serialised; the vision supervisor additionally guarantees a single
// background task.
type Pipeline struct {
	det     Detector
	depth   DepthEstimator
	speaker Speaker

	mu    sync.Mutex
	cfg   Config
	state State
}

// NewPipeline returns a pipeline announcing through speaker.
func NewPipeline(det Detector, depth DepthEstimator, speaker Speaker, cfg Config) *Pipeline {
	if cfg.ConfidenceCutoff <= 0 {
		cfg.ConfidenceCutoff = 0.6
	}
	if cfg.CloseDepth <= 0 {
		cfg.CloseDepth = 200
	}
	if cfg.DepthInterval <= 0 {
		cfg.DepthInterval = 2 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Pipeline{det: det, depth: depth, speaker: speaker, cfg: cfg}
}

// SetThresholds changes the confidence cutoff, close depth and depth
// interval. Non-positive values are left unchanged.
func (p *Pipeline) SetThresholds(cutoff, closeDepth float64, depthInterval time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cutoff > 0 {
		p.cfg.ConfidenceCutoff = cutoff
	}
	if closeDepth > 0 {
		p.cfg.CloseDepth = closeDepth
	}
	if depthInterval > 0 {
		p.cfg.DepthInterval = depthInterval
	}
}

// State returns a copy of the cache.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Process runs the pipeline over f and announces close objects.
func (p *Pipeline) Process(ctx context.Context, f *frame.Frame, opts Options) (Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if opts.Path == "" {
		opts.Path = "active"
	}
	start := p.cfg.Now()
	defer func() {
		if p.cfg.Metrics != nil {
			p.cfg.Metrics.VisionDuration.Record(ctx, time.Since(start).Seconds(),
				metric.WithAttributes(observe.Attr("path", opts.Path)))
		}
	}()

	dets, err := p.det.Detect(ctx, f)
	if err != nil {
		return Result{}, fmt.Errorf("vision: detect: %w", err)
	}
	now := p.cfg.Now()
	p.state.LastDetection = now

	var res Result
	res.Detections = dets
	if p.state.Depth == nil || now.Sub(p.state.LastDepth) >= p.cfg.DepthInterval {
		dm, err := p.depth.Estimate(ctx, f)
		if err != nil {
			return res, fmt.Errorf("vision: depth: %w", err)
		}
		p.state.Depth = dm
		p.state.LastDepth = now
		res.DepthRefreshed = true
	}

	for _, d := range dets {
		if d.Confidence < p.cfg.ConfidenceCutoff {
			continue
		}
		if v, ok := p.state.Depth.MinIn(d.Box); ok && float64(v) < p.cfg.CloseDepth {
			res.Close = append(res.Close, d.Class)
		}
	}
	if len(res.Close) == 0 {
		return res, nil
	}

	res.Sentence = Describe(res.Close)
	if opts.Silent {
		return res, nil
	}
	res.Spoken, err = p.speaker.Speak(ctx, arbiter.Request{
		Text:     res.Sentence,
		Language: opts.Language,
		Volume:   opts.Volume,
	})
	if err != nil {
		return res, fmt.Errorf("vision: announce: %w", err)
	}
	return res, nil
}

// Describe phrases close objects as "2 persons, and 1 chair in front of you".
// Classes keep their first-seen order.
func Describe(classes []string) string {
	if len(classes) == 0 {
		return ""
	}
	counts := make(map[string]int, len(classes))
	var order []string
	for _, c := range classes {
		if counts[c] == 0 {
			order = append(order, c)
		}
		counts[c]++
	}
	parts := make([]string, len(order))
	for i, c := range order {
		n := counts[c]
		parts[i] = fmt.Sprintf("%d %s", n, c)
		if n > 1 {
			parts[i] += "s"
		}
	}
	sentence := parts[0]
	if len(parts) > 1 {
		sentence = strings.Join(parts[:len(parts)-1], ", ") + ", and " + parts[len(parts)-1]
	}
	return sentence + " in front of you"
}
