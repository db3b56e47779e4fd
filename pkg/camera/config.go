// Package camera provides frame sources for the control loop.
package camera

import "fmt"

// Source kinds
const (
	SourceCamera    = "camera"
	SourceSynthetic = "synthetic"
)

// Config holds the capture parameters.
type Config struct {
	Source string `json:"source"` // camera or synthetic
	Device string `json:"device"` // Device index ("0") or a path/URL OpenCV can open

	// === Resolution ===
	Width     int `json:"width"`     // Frame width in pixels
	Height    int `json:"height"`    // Frame height in pixels
	Framerate int `json:"framerate"` // Target FPS

	// MaxMisses is how many consecutive empty reads end the stream.
	MaxMisses int `json:"max_misses"`
}

// DefaultConfig returns the 640x480 preview configuration the sampling rows
// are tuned for.
func DefaultConfig() Config {
	return Config{
		Source:    SourceCamera,
		Device:    "0",
		Width:     640,
		Height:    480,
		Framerate: 30,
		MaxMisses: 100,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errs []string

	if c.Source != SourceCamera && c.Source != SourceSynthetic {
		errs = append(errs, fmt.Sprintf("source must be %s or %s", SourceCamera, SourceSynthetic))
	}
	if c.Source == SourceCamera && c.Device == "" {
		errs = append(errs, "device is required for the camera source")
	}
	if c.Width < 160 || c.Width > 4096 {
		errs = append(errs, "width must be between 160 and 4096")
	}
	if c.Height < 120 || c.Height > 2160 {
		errs = append(errs, "height must be between 120 and 2160")
	}
	if c.Framerate < 1 || c.Framerate > 120 {
		errs = append(errs, "framerate must be between 1 and 120")
	}
	if c.MaxMisses < 1 {
		errs = append(errs, "max_misses must be positive")
	}

	return errs
}
