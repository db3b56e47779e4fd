package serialport

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/teslashibe/linefollow/internal/log"
)

// DefaultReadBufferSize is the size of a single read.
const DefaultReadBufferSize = 4096

// Reader pumps bytes from a port to a consumer on its own goroutine.
// It never writes, so it runs alongside command writes on the same port.
type Reader struct {
	src     io.Reader
	bufSize int
	log     *slog.Logger

	mu      sync.RWMutex
	onData  func([]byte)
	onError func(error)
}

// NewReader creates a reader delivering chunks from src to onData.
func NewReader(src io.Reader, onData func([]byte), logger *slog.Logger) *Reader {
	return &Reader{
		src:     src,
		bufSize: DefaultReadBufferSize,
		log:     log.Or(logger),
		onData:  onData,
	}
}

// OnError registers a callback for the error that stops the reader.
func (r *Reader) OnError(fn func(error)) {
	r.mu.Lock()
	r.onError = fn
	r.mu.Unlock()
}

// Run reads until ctx is cancelled or the source fails. Each delivered chunk
// is a fresh slice owned by the consumer. Cancellation returns nil; a closed
// port after cancellation is not an error either.
//
// src must return periodically (a read timeout) for cancellation to be
// noticed without closing the port.
func (r *Reader) Run(ctx context.Context) error {
	r.log.Info("serial reader started")
	defer r.log.Info("serial reader stopped")

	buf := make([]byte, r.bufSize)
	for {
		if ctx.Err() != nil {
			return nil
		}

		n, err := r.src.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			r.deliver(chunk)
		}
		if err == nil {
			continue
		}

		if ctx.Err() != nil {
			return nil
		}
		r.log.Warn("serial reader error", "error", err)
		r.mu.RLock()
		onError := r.onError
		r.mu.RUnlock()
		if onError != nil {
			onError(err)
		}
		return err
	}
}

func (r *Reader) deliver(chunk []byte) {
	r.mu.RLock()
	onData := r.onData
	r.mu.RUnlock()
	if onData != nil {
		onData(chunk)
	}
}
