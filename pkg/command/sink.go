package command

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/linefollow/internal/log"
)

// DefaultTimeout bounds a single command write.
const DefaultTimeout = 10 * time.Millisecond

// Channel is the write side of the link to the device.
// WriteTimeout must return within roughly timeout.
type Channel interface {
	WriteTimeout(p []byte, timeout time.Duration) error
}

// Sink writes commands to a Channel. Write failures are never returned:
// the command is dropped and the next frame carries a fresh one.
type Sink struct {
	timeout time.Duration
	log     *slog.Logger

	mu      sync.RWMutex
	channel Channel
	onDrop  func(v int, err error)

	sent    atomic.Uint64
	dropped atomic.Uint64
}

// NewSink creates a sink writing to ch with the given timeout. A nil channel
// is allowed; every command is then dropped until SetChannel is called.
// A non-positive timeout selects DefaultTimeout.
func NewSink(ch Channel, timeout time.Duration, logger *slog.Logger) *Sink {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Sink{
		channel: ch,
		timeout: timeout,
		log:     log.Or(logger),
	}
}

// SetChannel swaps the underlying channel. Pass nil to detach.
func (s *Sink) SetChannel(ch Channel) {
	s.mu.Lock()
	s.channel = ch
	s.mu.Unlock()
}

// OnDrop registers a callback invoked whenever a command is dropped.
func (s *Sink) OnDrop(fn func(v int, err error)) {
	s.mu.Lock()
	s.onDrop = fn
	s.mu.Unlock()
}

// Timeout returns the per-write timeout.
func (s *Sink) Timeout() time.Duration {
	return s.timeout
}

// Send encodes v and writes it. It reports whether the write succeeded.
func (s *Sink) Send(v int) bool {
	s.mu.RLock()
	ch, onDrop := s.channel, s.onDrop
	s.mu.RUnlock()

	if ch == nil {
		s.drop(v, ErrNoChannel, onDrop)
		return false
	}

	// A timed-out write may still own its buffer, so encode into a fresh one.
	if err := ch.WriteTimeout(Encode(v), s.timeout); err != nil {
		s.drop(v, err, onDrop)
		return false
	}
	s.sent.Add(1)
	return true
}

func (s *Sink) drop(v int, err error, onDrop func(int, error)) {
	s.dropped.Add(1)
	s.log.Debug("command dropped", "value", v, "error", err)
	if onDrop != nil {
		onDrop(v, err)
	}
}

// Sent returns the number of commands written successfully.
func (s *Sink) Sent() uint64 {
	return s.sent.Load()
}

// Dropped returns the number of commands that were dropped.
func (s *Sink) Dropped() uint64 {
	return s.dropped.Load()
}
