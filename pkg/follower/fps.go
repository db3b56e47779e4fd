package follower

import (
	"sync"
	"time"
)

// FPSMeter measures frame rate from consecutive frame timestamps.
type FPSMeter struct {
	mu   sync.Mutex
	prev time.Time
	fps  float64
}

// Tick records a frame at now and returns the instantaneous rate.
// The first tick, and any tick not later than the previous one, leaves the
// rate unchanged.
func (m *FPSMeter) Tick(now time.Time) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.prev.IsZero() {
		if dt := now.Sub(m.prev); dt > 0 {
			m.fps = float64(time.Second) / float64(dt)
		}
	}
	m.prev = now
	return m.fps
}

// FPS returns the last measured rate.
func (m *FPSMeter) FPS() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fps
}
