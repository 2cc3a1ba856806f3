// Package onnx runs the vision models through OpenCV's DNN module: a YOLOv8
// object detector and a MiDaS relative depth estimator. Both take the
// JPEG-encoded frames produced by the camera poller.
package onnx

import (
	"bufio"
	"context"
	"fmt"
	"image"
	"os"
	"strings"
	"sync"

	"gocv.io/x/gocv"

	"github.com/sightwear/sightwear/internal/frame"
	"github.com/sightwear/sightwear/internal/vision"
)

// YOLOConfig configures a [YOLO] detector.
type YOLOConfig struct {
	ModelPath string

	// ClassesPath names a file with one class label per line. Empty uses
	// the COCO labels.
	ClassesPath string

	ScoreThreshold float32
	NMSThreshold   float32
	InputSize      int
}

// YOLO detects objects with a YOLOv8 ONNX export.
type YOLO struct {
	mu      sync.Mutex
	net     gocv.Net
	cfg     YOLOConfig
	classes []string
}

var _ vision.Detector = (*YOLO)(nil)

// NewYOLO loads the model and class labels.
func NewYOLO(cfg YOLOConfig) (*YOLO, error) {
	if cfg.ScoreThreshold <= 0 {
		cfg.ScoreThreshold = 0.25
	}
	if cfg.NMSThreshold <= 0 {
		cfg.NMSThreshold = 0.45
	}
	if cfg.InputSize <= 0 {
		cfg.InputSize = 640
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("onnx: yolo model: %w", err)
	}
	classes := COCOClasses
	if cfg.ClassesPath != "" {
		var err error
		if classes, err = readClasses(cfg.ClassesPath); err != nil {
			return nil, err
		}
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("onnx: load yolo model %s", cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)
	return &YOLO{net: net, cfg: cfg, classes: classes}, nil
}

// Detect implements [vision.Detector]. Boxes are in frame pixels.
func (y *YOLO) Detect(_ context.Context, f *frame.Frame) ([]vision.Detection, error) {
	y.mu.Lock()
	defer y.mu.Unlock()

	img, err := gocv.IMDecode(f.JPEG, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("onnx: decode frame: %w", err)
	}
	defer img.Close()
	if img.Empty() {
		return nil, fmt.Errorf("onnx: empty frame")
	}

	size := image.Pt(y.cfg.InputSize, y.cfg.InputSize)
	blob := gocv.BlobFromImage(img, 1.0/255.0, size, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	y.net.SetInput(blob, "")
	out := y.net.Forward("")
	defer out.Close()

	// [1, 4+classes, anchors] flattened row-major.
	dims := out.Size()
	if len(dims) != 3 || dims[1] <= 4 {
		return nil, fmt.Errorf("onnx: unexpected yolo output shape %v", dims)
	}
	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("onnx: yolo output: %w", err)
	}
	return y.parse(data, dims[1], dims[2], img.Cols(), img.Rows()), nil
}

func (y *YOLO) parse(data []float32, channels, anchors, imgW, imgH int) []vision.Detection {
	sx := float32(imgW) / float32(y.cfg.InputSize)
	sy := float32(imgH) / float32(y.cfg.InputSize)

	var (
		boxes  []image.Rectangle
		scores []float32
		ids    []int
	)
	for i := range anchors {
		best, id := float32(0), 0
		for c := 4; c < channels; c++ {
			if s := data[c*anchors+i]; s > best {
				best, id = s, c-4
			}
		}
		if best < y.cfg.ScoreThreshold {
			continue
		}
		cx, cy := data[i], data[anchors+i]
		w, h := data[2*anchors+i], data[3*anchors+i]
		boxes = append(boxes, image.Rect(
			int((cx-w/2)*sx), int((cy-h/2)*sy),
			int((cx+w/2)*sx), int((cy+h/2)*sy),
		))
		scores = append(scores, best)
		ids = append(ids, id)
	}
	if len(boxes) == 0 {
		return nil
	}

	keep := gocv.NMSBoxes(boxes, scores, y.cfg.ScoreThreshold, y.cfg.NMSThreshold)
	dets := make([]vision.Detection, 0, len(keep))
	for _, k := range keep {
		name := fmt.Sprintf("class %d", ids[k])
		if ids[k] < len(y.classes) {
			name = y.classes[ids[k]]
		}
		dets = append(dets, vision.Detection{
			Box:        boxes[k],
			Confidence: float64(scores[k]),
			Class:      name,
		})
	}
	return dets
}

// Close releases the network.
func (y *YOLO) Close() error {
	y.mu.Lock()
	defer y.mu.Unlock()
	return y.net.Close()
}

func readClasses(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("onnx: classes: %w", err)
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out = append(out, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("onnx: classes: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("onnx: classes file %s is empty", path)
	}
	return out, nil
}

// COCOClasses are the 80 labels YOLOv8 is trained on.
var COCOClasses = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat",
	"dog", "horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack",
	"umbrella", "handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball",
	"kite", "baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket",
	"bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple",
	"sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair",
	"couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink", "refrigerator",
	"book", "clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
}
