package follower

import "sync/atomic"

// Threshold range
const (
	MinThreshold     = 0
	MaxThreshold     = 255
	DefaultThreshold = 127
)

// Threshold is the darkness cutoff shared between the control surface and the
// frame loop. Writers and the loop may race; the loop sees some recent value.
type Threshold struct {
	v atomic.Int32
}

// NewThreshold creates a threshold holding v (clamped to 0-255).
func NewThreshold(v int) *Threshold {
	t := &Threshold{}
	t.Set(v)
	return t
}

// Value returns the current threshold in 0-255.
func (t *Threshold) Value() int {
	return int(t.v.Load())
}

// Set stores v clamped to 0-255 and returns the stored value.
func (t *Threshold) Set(v int) int {
	v = clampInt(v, MinThreshold, MaxThreshold)
	t.v.Store(int32(v))
	return v
}

// SetPercent maps a 0-100 slider position onto 0-255 (p*255/100) and stores it.
func (t *Threshold) SetPercent(p int) int {
	p = clampInt(p, 0, 100)
	return t.Set(p * MaxThreshold / 100)
}

// Percent returns the threshold as a 0-100 slider position, rounded so that
// Percent after SetPercent(p) reports p.
func (t *Threshold) Percent() int {
	return (t.Value()*100 + MaxThreshold/2) / MaxThreshold
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
