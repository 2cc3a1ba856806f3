package onnx_test

import (
	"context"
	"os"
	"testing"

	"gocv.io/x/gocv"

	"github.com/sightwear/sightwear/internal/frame"
	"github.com/sightwear/sightwear/internal/vision/onnx"
)

// Model tests need real exports; point SIGHTWEAR_TEST_YOLO_MODEL and
// SIGHTWEAR_TEST_DEPTH_MODEL at them to run.

func blankFrame(t *testing.T) *frame.Frame {
	t.Helper()
	img := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer img.Close()
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		t.Fatal(err)
	}
	defer buf.Close()
	return &frame.Frame{JPEG: append([]byte(nil), buf.GetBytes()...), Width: 640, Height: 480}
}

func TestYOLO_BlankFrame(t *testing.T) {
	path := os.Getenv("SIGHTWEAR_TEST_YOLO_MODEL")
	if path == "" {
		t.Skip("SIGHTWEAR_TEST_YOLO_MODEL not set")
	}
	y, err := onnx.NewYOLO(onnx.YOLOConfig{ModelPath: path})
	if err != nil {
		t.Fatal(err)
	}
	defer y.Close()

	dets, err := y.Detect(context.Background(), blankFrame(t))
	if err != nil {
		t.Fatal(err)
	}
	if len(dets) != 0 {
		t.Errorf("blank frame produced %d detections", len(dets))
	}
}

func TestMiDaS_MapMatchesFrame(t *testing.T) {
	path := os.Getenv("SIGHTWEAR_TEST_DEPTH_MODEL")
	if path == "" {
		t.Skip("SIGHTWEAR_TEST_DEPTH_MODEL not set")
	}
	m, err := onnx.NewMiDaS(path)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	dm, err := m.Estimate(context.Background(), blankFrame(t))
	if err != nil {
		t.Fatal(err)
	}
	if dm.Width != 640 || dm.Height != 480 || len(dm.Values) != 640*480 {
		t.Errorf("map = %dx%d with %d values", dm.Width, dm.Height, len(dm.Values))
	}
}

func TestNewYOLO_MissingModel(t *testing.T) {
	t.Parallel()
	if _, err := onnx.NewYOLO(onnx.YOLOConfig{ModelPath: "does-not-exist.onnx"}); err == nil {
		t.Error("NewYOLO with a missing model succeeded")
	}
}
