// Package console keeps a scroll-back of serial traffic and status lines
// for display.
package console

import (
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultCapacity is the number of entries kept in the scroll-back.
const DefaultCapacity = 500

// Kind labels a console entry.
const (
	KindReceived = "rx"     // Bytes received from the device
	KindStatus   = "status" // Port and modem status
	KindCommand  = "cmd"    // Last command sent
)

// Entry is one block of console text.
type Entry struct {
	Time  time.Time `json:"time"`
	Kind  string    `json:"kind"`
	Bytes int       `json:"bytes,omitempty"`
	Text  string    `json:"text"`
}

// Console is a bounded, goroutine-safe scroll-back.
type Console struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
	onAppend func(Entry)
	now      func() time.Time
}

// New creates a console holding up to capacity entries. A non-positive
// capacity selects DefaultCapacity.
func New(capacity int) *Console {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Console{
		entries:  make([]Entry, 0, capacity),
		capacity: capacity,
		now:      time.Now,
	}
}

// OnAppend registers a callback fired for every new entry.
func (c *Console) OnAppend(fn func(Entry)) {
	c.mu.Lock()
	c.onAppend = fn
	c.mu.Unlock()
}

// Received records a chunk of bytes read from the device.
func (c *Console) Received(data []byte) Entry {
	return c.append(Entry{Kind: KindReceived, Bytes: len(data), Text: FormatChunk(data)})
}

// Status records a status line.
func (c *Console) Status(format string, args ...any) Entry {
	return c.append(Entry{Kind: KindStatus, Text: fmt.Sprintf(format, args...)})
}

// Flag records a named on/off status, e.g. "CTS - Clear To Send: enabled".
func (c *Console) Flag(label string, on bool) Entry {
	state := "disabled"
	if on {
		state = "enabled"
	}
	return c.Status("%s: %s", label, state)
}

// Command records the last command sent to the device.
func (c *Console) Command(v int) Entry {
	return c.append(Entry{Kind: KindCommand, Text: fmt.Sprintf("Proportion: %d", v)})
}

// Entries returns a copy of the scroll-back, oldest first.
func (c *Console) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Len returns the number of entries held.
func (c *Console) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Console) append(e Entry) Entry {
	c.mu.Lock()
	e.Time = c.now()
	if len(c.entries) >= c.capacity {
		copy(c.entries, c.entries[1:])
		c.entries = c.entries[:len(c.entries)-1]
	}
	c.entries = append(c.entries, e)
	fn := c.onAppend
	c.mu.Unlock()

	if fn != nil {
		fn(e)
	}
	return e
}

// FormatChunk renders a received chunk as a header line followed by a
// canonical hex dump.
func FormatChunk(data []byte) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Read %d bytes:\n", len(data))
	b.WriteString(hex.Dump(data))
	return b.String()
}
