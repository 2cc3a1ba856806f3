package wakeword

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// ONNXClassifier runs a wake word model exported to ONNX. The model takes a
// 1xN float32 waveform window and outputs either one wake probability or
// per-class scores where index 1 is the wake class.
type ONNXClassifier struct {
	mu  sync.Mutex
	net gocv.Net
}

// NewONNXClassifier loads the model at path.
func NewONNXClassifier(path string) (*ONNXClassifier, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("wakeword: model file: %w", err)
	}
	net := gocv.ReadNetFromONNX(path)
	if net.Empty() {
		return nil, fmt.Errorf("wakeword: failed to load model from %s", path)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)
	return &ONNXClassifier{net: net}, nil
}

// Classify implements [Classifier].
func (c *ONNXClassifier) Classify(window []float32) (float64, error) {
	if len(window) == 0 {
		return 0, errors.New("wakeword: empty window")
	}
	raw := make([]byte, 4*len(window))
	for i, v := range window {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(v))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	input, err := gocv.NewMatFromBytes(1, len(window), gocv.MatTypeCV32F, raw)
	if err != nil {
		return 0, fmt.Errorf("wakeword: input tensor: %w", err)
	}
	defer input.Close()

	c.net.SetInput(input, "")
	out := c.net.Forward("")
	defer out.Close()

	scores, err := out.DataPtrFloat32()
	if err != nil {
		return 0, fmt.Errorf("wakeword: read output: %w", err)
	}
	return WakeProbability(scores), nil
}

// Close releases the network.
func (c *ONNXClassifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.net.Close()
}

// WakeProbability interprets model output. A single value is a wake
// probability (squashed with a sigmoid if it is a logit). Several values are
// class scores, normalised with softmax unless they already form a
// distribution; index 1 is the wake class.
func WakeProbability(scores []float32) float64 {
	switch len(scores) {
	case 0:
		return 0
	case 1:
		v := float64(scores[0])
		if v < 0 || v > 1 {
			return 1 / (1 + math.Exp(-v))
		}
		return v
	}

	sum := 0.0
	isDist := true
	for _, s := range scores {
		if s < 0 || s > 1 {
			isDist = false
		}
		sum += float64(s)
	}
	if isDist && math.Abs(sum-1) < 1e-3 {
		return float64(scores[1])
	}

	peak := float64(scores[0])
	for _, s := range scores[1:] {
		peak = math.Max(peak, float64(s))
	}
	total := 0.0
	for _, s := range scores {
		total += math.Exp(float64(s) - peak)
	}
	return math.Exp(float64(scores[1])-peak) / total
}
