package onnx

import (
	"context"
	"encoding/binary"
	"fmt"
	"image"
	"math"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/sightwear/sightwear/internal/frame"
	"github.com/sightwear/sightwear/internal/vision"
)

// MiDaSInput is the square input edge of the small MiDaS model.
const MiDaSInput = 256

// MiDaS estimates relative depth with a MiDaS ONNX export.
type MiDaS struct {
	mu  sync.Mutex
	net gocv.Net
}

var _ vision.DepthEstimator = (*MiDaS)(nil)

// NewMiDaS loads the model at path.
func NewMiDaS(path string) (*MiDaS, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("onnx: depth model: %w", err)
	}
	net := gocv.ReadNetFromONNX(path)
	if net.Empty() {
		return nil, fmt.Errorf("onnx: load depth model %s", path)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)
	return &MiDaS{net: net}, nil
}

// Estimate implements [vision.DepthEstimator]. The map is resized to the
// frame so detection boxes index it directly.
func (m *MiDaS) Estimate(_ context.Context, f *frame.Frame) (*vision.DepthMap, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	img, err := gocv.IMDecode(f.JPEG, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("onnx: decode frame: %w", err)
	}
	defer img.Close()
	if img.Empty() {
		return nil, fmt.Errorf("onnx: empty frame")
	}

	blob := gocv.BlobFromImage(img, 1.0/255.0, image.Pt(MiDaSInput, MiDaSInput),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	m.net.SetInput(blob, "")
	out := m.net.Forward("")
	defer out.Close()

	raw, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("onnx: depth output: %w", err)
	}
	if len(raw) < MiDaSInput*MiDaSInput {
		return nil, fmt.Errorf("onnx: depth output has %d values", len(raw))
	}

	small, err := gocv.NewMatFromBytes(MiDaSInput, MiDaSInput, gocv.MatTypeCV32F,
		float32Bytes(raw[:MiDaSInput*MiDaSInput]))
	if err != nil {
		return nil, fmt.Errorf("onnx: depth mat: %w", err)
	}
	defer small.Close()

	full := gocv.NewMat()
	defer full.Close()
	gocv.Resize(small, &full, image.Pt(img.Cols(), img.Rows()), 0, 0, gocv.InterpolationCubic)

	vals, err := full.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("onnx: depth resize: %w", err)
	}
	dm := &vision.DepthMap{Width: img.Cols(), Height: img.Rows(), Values: make([]float32, len(vals))}
	copy(dm.Values, vals)
	return dm, nil
}

// Close releases the network.
func (m *MiDaS) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.net.Close()
}

func float32Bytes(v []float32) []byte {
	b := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(f))
	}
	return b
}
