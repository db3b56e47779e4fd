// Package steering turns two line positions into a single proportional
// command for the drive controller.
package steering

import "fmt"

// Default control law constants.
const (
	DefaultBaseline = 1000 // Straight-ahead command
	DefaultScale    = 12   // Gain applied to both correction terms
)

// Config holds the control law constants
type Config struct {
	Baseline    int // Command sent when the line is centered and straight
	Scale       int // Proportional gain
	FrameCenter int // Column the line should sit on (width/2)
}

// DefaultConfig returns the tuned constants for a frame of the given width
func DefaultConfig(width int) Config {
	return Config{
		Baseline:    DefaultBaseline,
		Scale:       DefaultScale,
		FrameCenter: width / 2,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.FrameCenter < 0 {
		return fmt.Errorf("steering: frame center %d is negative", c.FrameCenter)
	}
	return nil
}
