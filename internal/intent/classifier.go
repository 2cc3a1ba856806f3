// Package intent maps transcribed utterances onto the command vocabulary.
//
// Every curated example phrase is embedded once; a transcript is classified
// by its single nearest example (k=1) under cosine similarity. The embedded
// examples persist as a JSON classifier file keyed by the embedding model, or
// in a PostgreSQL table searched with pgvector.
package intent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sightwear/sightwear/internal/mode"
	"github.com/sightwear/sightwear/pkg/provider/embeddings"
)

// ErrNoTrainingData is returned when no example could be embedded.
var ErrNoTrainingData = errors.New("intent: no training data")

// ErrDimensionMismatch is returned when a query vector does not match the
// classifier's dimensions.
var ErrDimensionMismatch = errors.New("intent: embedding dimension mismatch")

// Example is one labelled training phrase.
type Example struct {
	Text  string     `json:"text"`
	Label mode.Label `json:"label"`
}

// Examples flattens a label to phrases map into a stable, sorted list.
func Examples(byLabel map[string][]string) []Example {
	labels := make([]string, 0, len(byLabel))
	for l := range byLabel {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	var out []Example
	for _, l := range labels {
		for _, p := range byLabel[l] {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, Example{Text: p, Label: mode.Label(l)})
			}
		}
	}
	return out
}

// HashExamples fingerprints a training set independent of its order. A
// classifier is reused only while the hash of the configured examples
// matches the one it was trained on.
func HashExamples(examples []Example) string {
	sorted := append([]Example(nil), examples...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Label != sorted[j].Label {
			return sorted[i].Label < sorted[j].Label
		}
		return sorted[i].Text < sorted[j].Text
	})
	h := sha256.New()
	for _, e := range sorted {
		h.Write([]byte(e.Label))
		h.Write([]byte{0})
		h.Write([]byte(e.Text))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Vector is an embedded example.
type Vector struct {
	Example
	Embedding []float32 `json:"embedding"`
}

// Index answers nearest neighbour queries over embedded examples.
type Index interface {
	// Nearest returns the label of the closest example and its cosine
	// similarity to vec.
	Nearest(ctx context.Context, vec []float32) (mode.Label, float64, error)
}

// Classifier is an in-memory k=1 nearest neighbour index. It is the on-disk
// format of the classifier file.
type Classifier struct {
	ModelID      string    `json:"model_id"`
	ExamplesHash string    `json:"examples_hash"`
	Dimensions   int       `json:"dimensions"`
	TrainedAt    time.Time `json:"trained_at"`
	Vectors      []Vector  `json:"vectors"`
}

var _ Index = (*Classifier)(nil)

// Nearest implements [Index].
func (c *Classifier) Nearest(_ context.Context, vec []float32) (mode.Label, float64, error) {
	if len(c.Vectors) == 0 {
		return "", 0, ErrNoTrainingData
	}
	if len(vec) != c.Dimensions {
		return "", 0, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), c.Dimensions)
	}
	best, bestSim := -1, math.Inf(-1)
	for i, v := range c.Vectors {
		if s := Cosine(vec, v.Embedding); s > bestSim {
			best, bestSim = i, s
		}
	}
	return c.Vectors[best].Label, bestSim, nil
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a
// zero vector or their lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Train embeds every example with emb. Examples whose embedding is empty or
// whose length differs from the first valid one are skipped.
func Train(ctx context.Context, emb embeddings.Provider, examples []Example) (*Classifier, error) {
	if len(examples) == 0 {
		return nil, ErrNoTrainingData
	}
	texts := make([]string, len(examples))
	for i, e := range examples {
		texts[i] = e.Text
	}
	vecs, err := emb.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("intent: embed training data: %w", err)
	}

	c := &Classifier{ModelID: emb.ModelID(), ExamplesHash: HashExamples(examples), TrainedAt: time.Now().UTC()}
	for i, v := range vecs {
		if i >= len(examples) || len(v) == 0 {
			continue
		}
		if c.Dimensions == 0 {
			c.Dimensions = len(v)
		}
		if len(v) != c.Dimensions {
			continue
		}
		c.Vectors = append(c.Vectors, Vector{Example: examples[i], Embedding: v})
	}
	if len(c.Vectors) == 0 {
		return nil, ErrNoTrainingData
	}
	return c, nil
}

// Save writes c to path as JSON, creating parent directories.
func (c *Classifier) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("intent: save classifier: %w", err)
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("intent: save classifier: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("intent: save classifier: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("intent: save classifier: %w", err)
	}
	return nil
}

// LoadFile reads a classifier written by [Classifier.Save].
func LoadFile(path string) (*Classifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Classifier
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("intent: parse classifier %s: %w", path, err)
	}
	if len(c.Vectors) == 0 {
		return nil, fmt.Errorf("intent: classifier %s: %w", path, ErrNoTrainingData)
	}
	return &c, nil
}

// LoadOrTrain returns the classifier stored at path when it was built with
// emb's model from the same examples, and otherwise trains a new one and
// persists it.
func LoadOrTrain(ctx context.Context, path string, emb embeddings.Provider, examples []Example) (*Classifier, error) {
	c, err := LoadFile(path)
	switch {
	case err == nil && c.ModelID == emb.ModelID() && c.ExamplesHash == HashExamples(examples):
		return c, nil
	case err == nil && c.ModelID == emb.ModelID():
		slog.Info("intent training examples changed, retraining", "path", path, "examples", len(examples))
	case err == nil:
		slog.Info("intent classifier built with another model, retraining",
			"path", path, "stored", c.ModelID, "current", emb.ModelID())
	case !errors.Is(err, os.ErrNotExist):
		slog.Warn("intent classifier unreadable, retraining", "path", path, "err", err)
	}

	c, err = Train(ctx, emb, examples)
	if err != nil {
		return nil, err
	}
	if err := c.Save(path); err != nil {
		return nil, err
	}
	return c, nil
}
