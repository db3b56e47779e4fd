// Package overlay draws the loop annotations onto frames and publishes them
// as JPEG for the dashboard camera feed.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/linefollow/internal/log"
	"github.com/teslashibe/linefollow/pkg/follower"
)

// Marker and text color
var Red = color.RGBA{R: 255, A: 255}

// Config holds the rendering parameters
type Config struct {
	Quality   int           // JPEG quality 1-100
	MinPeriod time.Duration // Frames closer together than this are not published
	FontScale float64
	Thickness int
}

// DefaultConfig returns settings suitable for a local dashboard
func DefaultConfig() Config {
	return Config{
		Quality:   80,
		MinPeriod: 66 * time.Millisecond, // ~15 fps preview
		FontScale: 1.2,
		Thickness: 1,
	}
}

// Renderer implements follower.Display.
type Renderer struct {
	cfg     Config
	publish func([]byte)
	log     *slog.Logger

	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

// NewRenderer creates a renderer that hands each encoded JPEG to publish.
func NewRenderer(cfg Config, publish func([]byte), logger *slog.Logger) *Renderer {
	return &Renderer{
		cfg:     cfg,
		publish: publish,
		log:     log.Or(logger),
		now:     time.Now,
	}
}

// Present renders and publishes the frame. Errors are logged, never returned.
func (r *Renderer) Present(frame *image.RGBA, annotations []follower.Annotation) {
	if r.publish == nil {
		return
	}

	r.mu.Lock()
	now := r.now()
	if !r.last.IsZero() && now.Sub(r.last) < r.cfg.MinPeriod {
		r.mu.Unlock()
		return
	}
	r.last = now
	r.mu.Unlock()

	jpeg, err := r.Render(frame, annotations)
	if err != nil {
		r.log.Debug("overlay render failed", "error", err)
		return
	}
	r.publish(jpeg)
}

// Render draws the annotations onto a copy of frame and encodes it as JPEG.
func (r *Renderer) Render(frame *image.RGBA, annotations []follower.Annotation) ([]byte, error) {
	mat, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		return nil, fmt.Errorf("overlay: convert frame: %w", err)
	}
	defer mat.Close()

	for _, a := range annotations {
		switch a.Kind {
		case follower.AnnotationCircle:
			gocv.Circle(&mat, image.Pt(a.X, a.Y), a.Radius, Red, r.cfg.Thickness)
		case follower.AnnotationText:
			gocv.PutText(&mat, a.Text, image.Pt(a.X, a.Y), gocv.FontHersheyPlain, r.cfg.FontScale, Red, r.cfg.Thickness)
		}
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{gocv.IMWriteJpegQuality, r.cfg.Quality})
	if err != nil {
		return nil, fmt.Errorf("overlay: encode: %w", err)
	}
	defer buf.Close()

	// The native buffer is freed on Close
	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}
