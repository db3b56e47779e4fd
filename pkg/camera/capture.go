package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/linefollow/internal/log"
	"github.com/teslashibe/linefollow/pkg/vision"
)

// ErrNoFrames is returned when the device stops producing frames.
var ErrNoFrames = errors.New("camera: no frames from device")

// Capture streams frames from an OpenCV video device.
type Capture struct {
	cfg Config
	log *slog.Logger
}

// NewCapture creates a capture source. The device is opened by Stream.
func NewCapture(cfg Config, logger *slog.Logger) *Capture {
	return &Capture{cfg: cfg, log: log.Or(logger).With("device", cfg.Device)}
}

// Stream opens the device and delivers frames until ctx is cancelled or the
// device stops producing frames. Each delivered frame is freshly allocated.
func (c *Capture) Stream(ctx context.Context, onFrame func(*image.RGBA)) error {
	vc, err := gocv.OpenVideoCapture(c.cfg.Device)
	if err != nil {
		return fmt.Errorf("camera: open %q: %w", c.cfg.Device, err)
	}
	defer vc.Close()

	vc.Set(gocv.VideoCaptureFrameWidth, float64(c.cfg.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(c.cfg.Height))
	vc.Set(gocv.VideoCaptureFPS, float64(c.cfg.Framerate))

	c.log.Info("camera opened",
		"width", vc.Get(gocv.VideoCaptureFrameWidth),
		"height", vc.Get(gocv.VideoCaptureFrameHeight),
		"fps", vc.Get(gocv.VideoCaptureFPS))

	mat := gocv.NewMat()
	defer mat.Close()

	misses := 0
	for ctx.Err() == nil {
		if ok := vc.Read(&mat); !ok || mat.Empty() {
			misses++
			if misses >= c.cfg.MaxMisses {
				return ErrNoFrames
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}
		misses = 0

		img, err := mat.ToImage()
		if err != nil {
			c.log.Debug("frame conversion failed", "error", err)
			continue
		}
		onFrame(vision.ToRGBA(img))
	}
	return nil
}
