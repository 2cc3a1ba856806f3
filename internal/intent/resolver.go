package intent

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/sightwear/sightwear/internal/mode"
	"github.com/sightwear/sightwear/internal/observe"
	"github.com/sightwear/sightwear/internal/resilience"
	"github.com/sightwear/sightwear/pkg/provider/embeddings"
)

// Intent is a classified utterance.
type Intent struct {
	Label mode.Label

	// Confidence is the cosine similarity to the nearest example. It is zero
	// when the default label was substituted.
	Confidence float64

	// Fallback is true when classification failed and Label is the default.
	Fallback bool
}

// Config tunes a [Resolver]. Zero values take defaults.
type Config struct {
	// DefaultLabel is returned when the embedding or index fails.
	// Default: "stop".
	DefaultLabel mode.Label

	// Timeout bounds one classification. Default: 5s.
	Timeout time.Duration

	// Breaker guards the embedding service.
	Breaker resilience.CircuitBreakerConfig

	Metrics *observe.Metrics
}

// Resolver turns transcripts into command labels. It never fails: any error
// is logged and replaced with the default label.
type Resolver struct {
	emb     embeddings.Provider
	index   Index
	cfg     Config
	breaker *resilience.CircuitBreaker
}

// NewResolver returns a resolver embedding queries with emb and searching
// index.
func NewResolver(emb embeddings.Provider, index Index, cfg Config) *Resolver {
	if cfg.DefaultLabel == "" {
		cfg.DefaultLabel = mode.LabelStop
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker.Name = "intent-embeddings"
	}
	return &Resolver{
		emb:     emb,
		index:   index,
		cfg:     cfg,
		breaker: resilience.NewCircuitBreaker(cfg.Breaker),
	}
}

// Classify returns the label for text.
func (r *Resolver) Classify(ctx context.Context, text string) mode.Label {
	return r.Resolve(ctx, text).Label
}

// Resolve classifies text. Blank text yields [mode.LabelBackground].
func (r *Resolver) Resolve(ctx context.Context, text string) Intent {
	text = strings.TrimSpace(text)
	if text == "" {
		return Intent{Label: mode.LabelBackground}
	}

	ctx, span := observe.StartProviderSpan(ctx, "intent", r.emb.ModelID())
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	start := time.Now()
	label, sim, err := r.nearest(ctx, text)
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.IntentDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if r.cfg.Metrics != nil {
			r.cfg.Metrics.RecordProviderError(ctx, "intent", kind(err))
		}
		observe.Logger(ctx).Warn("intent classification failed, using default",
			"text", text, "default", r.cfg.DefaultLabel, "err", err)
		return Intent{Label: r.cfg.DefaultLabel, Fallback: true}
	}

	span.SetAttributes(attribute.String("intent.label", string(label)), attribute.Float64("intent.similarity", sim))
	observe.Logger(ctx).Debug("intent classified", "text", text, "label", label, "similarity", sim)
	return Intent{Label: label, Confidence: sim}
}

func (r *Resolver) nearest(ctx context.Context, text string) (mode.Label, float64, error) {
	vec, err := resilience.Call(r.breaker, func() ([]float32, error) {
		return r.emb.Embed(ctx, text)
	})
	if err != nil {
		return "", 0, err
	}
	if len(vec) == 0 {
		return "", 0, errEmptyEmbedding
	}
	return r.index.Nearest(ctx, vec)
}

var errEmptyEmbedding = errors.New("intent: empty embedding")

func kind(err error) string {
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, errEmptyEmbedding):
		return "empty"
	default:
		return "error"
	}
}
