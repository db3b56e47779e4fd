package camera

import (
	"context"
	"image"
	"math"
	"time"

	"github.com/teslashibe/linefollow/pkg/vision"
)

// Synthetic renders a black line on a green floor that sweeps from side to
// side. It stands in for a camera in demos and tests.
type Synthetic struct {
	cfg Config

	LineWidth int     // Line thickness in pixels
	Amplitude float64 // Sweep amplitude as a fraction of the width
	Slant     float64 // Horizontal pixels per row, bends the line
	Period    time.Duration
}

// NewSynthetic creates a test-pattern source with cfg's size and rate.
func NewSynthetic(cfg Config) *Synthetic {
	return &Synthetic{
		cfg:       cfg,
		LineWidth: 20,
		Amplitude: 0.25,
		Slant:     0.3,
		Period:    4 * time.Second,
	}
}

// Frame renders the pattern at elapsed time t.
func (s *Synthetic) Frame(t time.Duration) *image.RGBA {
	w, h := s.cfg.Width, s.cfg.Height
	f := vision.NewFrame(w, h, vision.BackgroundColor)

	phase := 0.0
	if s.Period > 0 {
		phase = 2 * math.Pi * float64(t) / float64(s.Period)
	}
	center := float64(w)/2 + s.Amplitude*float64(w)*math.Sin(phase)

	half := s.LineWidth / 2
	for y := 0; y < h; y++ {
		x0 := int(center+s.Slant*float64(y-h/2)) - half
		for x := x0; x < x0+s.LineWidth; x++ {
			if x >= 0 && x < w {
				f.SetRGBA(x, y, vision.LineColor)
			}
		}
	}
	return f
}

// Stream delivers a frame per tick until ctx is cancelled.
func (s *Synthetic) Stream(ctx context.Context, onFrame func(*image.RGBA)) error {
	fps := s.cfg.Framerate
	if fps <= 0 {
		fps = DefaultConfig().Framerate
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			onFrame(s.Frame(now.Sub(start)))
		}
	}
}
