// Package follower runs the line-following control loop.
//
// For every frame the loop measures the line on two rows, turns the two
// positions into a steering command, writes it to the device and reports the
// result. The Session ties the loop to a serial port, a frame source and the
// shared threshold.
package follower

import (
	"fmt"
	"time"

	"github.com/teslashibe/linefollow/pkg/steering"
)

// Config holds the frame loop parameters
type Config struct {
	// Sampling
	StartY      int // Row of the first (near) sample
	RowsBetween int // Distance from the near row to the far row

	// Control law. A zero FrameCenter is replaced by width/2 of each frame.
	Steering steering.Config

	// Overlay
	MarkerRadius int // Radius of the COM markers
}

// DefaultConfig returns the tuned sampling geometry for a 640x480 preview
func DefaultConfig() Config {
	return Config{
		StartY:       150,
		RowsBetween:  150,
		Steering:     steering.Config{Baseline: steering.DefaultBaseline, Scale: steering.DefaultScale},
		MarkerRadius: 5,
	}
}

// NearRow returns the row index of the first sample
func (c Config) NearRow() int {
	return c.StartY
}

// FarRow returns the row index of the second sample
func (c Config) FarRow() int {
	return c.StartY + c.RowsBetween
}

// Validate checks the geometry against a frame height
func (c Config) Validate(height int) error {
	if c.StartY < 0 {
		return fmt.Errorf("follower: start row %d is negative", c.StartY)
	}
	if c.RowsBetween <= 0 {
		return fmt.Errorf("follower: rows between samples must be positive, got %d", c.RowsBetween)
	}
	if height > 0 && c.FarRow() >= height {
		return fmt.Errorf("follower: far row %d outside frame height %d", c.FarRow(), height)
	}
	return c.Steering.Validate()
}

// SessionConfig holds everything a Session needs besides its collaborators
type SessionConfig struct {
	Loop            Config
	Threshold       int           // Initial threshold (0-255)
	WriteTimeout    time.Duration // Bound for each command write
	ConsoleCapacity int           // Scroll-back entries kept
	SendBaseline    bool          // Send the straight-ahead command when the port opens
}

// DefaultSessionConfig returns the standard session settings
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Loop:            DefaultConfig(),
		Threshold:       DefaultThreshold,
		WriteTimeout:    10 * time.Millisecond,
		ConsoleCapacity: 500,
		SendBaseline:    true,
	}
}
