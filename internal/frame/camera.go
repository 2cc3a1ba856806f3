package frame

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"
)

// ErrNoDevice is returned when a capture device cannot be opened.
var ErrNoDevice = errors.New("frame: capture device unavailable")

// Device is an opened capture source. Read returns one JPEG-encoded frame.
type Device interface {
	Read() (jpeg []byte, width, height int, err error)
	Close() error
}

// Opener opens a [Device]. The poller calls it again after repeated read
// failures.
type Opener func() (Device, error)

// CameraConfig selects and shapes a local capture device.
type CameraConfig struct {
	// Device is the capture index, used when Source is empty.
	Device int

	// Source is a file path or stream URL.
	Source string

	Width       int
	Height      int
	JPEGQuality int
}

// CameraOpener returns an [Opener] backed by an OpenCV video capture.
func CameraOpener(cfg CameraConfig) Opener {
	return func() (Device, error) { return OpenCamera(cfg) }
}

// OpenCamera opens the configured capture device.
func OpenCamera(cfg CameraConfig) (Device, error) {
	var src any = cfg.Device
	if cfg.Source != "" {
		src = cfg.Source
	}
	vc, err := gocv.OpenVideoCapture(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v: %w", ErrNoDevice, src, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: %v", ErrNoDevice, src)
	}
	if cfg.Width > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	}
	if cfg.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}
	q := cfg.JPEGQuality
	if q <= 0 || q > 100 {
		q = 85
	}
	return &camera{vc: vc, mat: gocv.NewMat(), quality: q}, nil
}

type camera struct {
	vc      *gocv.VideoCapture
	mat     gocv.Mat
	quality int
}

func (c *camera) Read() ([]byte, int, int, error) {
	if ok := c.vc.Read(&c.mat); !ok || c.mat.Empty() {
		return nil, 0, 0, errors.New("frame: camera read failed")
	}
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, c.mat, []int{gocv.IMWriteJpegQuality, c.quality})
	if err != nil {
		return nil, 0, 0, fmt.Errorf("frame: encode jpeg: %w", err)
	}
	defer buf.Close()

	// GetBytes aliases native memory that Close frees.
	b := append([]byte(nil), buf.GetBytes()...)
	return b, c.mat.Cols(), c.mat.Rows(), nil
}

func (c *camera) Close() error {
	c.mat.Close()
	return c.vc.Close()
}
