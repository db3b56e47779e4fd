package follower

import (
	"context"
	"errors"
	"image"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/linefollow/internal/log"
	"github.com/teslashibe/linefollow/pkg/console"
	"github.com/teslashibe/linefollow/pkg/serialport"
)

// fakePort is an in-memory Port.
type fakePort struct {
	recordingChannel

	rx     chan []byte
	closed chan struct{}
	once   sync.Once

	linesMu  sync.Mutex
	dtr, rts bool
}

func newFakePort() *fakePort {
	return &fakePort{rx: make(chan []byte, 8), closed: make(chan struct{}), dtr: true, rts: true}
}

func (p *fakePort) Name() string { return "/dev/fake0" }

func (p *fakePort) Read(b []byte) (int, error) {
	select {
	case chunk := <-p.rx:
		return copy(b, chunk), nil
	case <-p.closed:
		return 0, serialport.ErrClosed
	}
}

func (p *fakePort) SetDTR(on bool) error {
	p.linesMu.Lock()
	p.dtr = on
	p.linesMu.Unlock()
	return nil
}

func (p *fakePort) SetRTS(on bool) error {
	p.linesMu.Lock()
	p.rts = on
	p.linesMu.Unlock()
	return nil
}

func (p *fakePort) ModemStatus() (serialport.ModemStatus, error) {
	p.linesMu.Lock()
	defer p.linesMu.Unlock()
	return serialport.ModemStatus{CTS: true, DTR: p.dtr, RTS: p.rts}, nil
}

func (p *fakePort) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

func (p *fakePort) IsClosed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}

// sliceSource streams a fixed list of frames then waits for cancellation.
type sliceSource struct {
	frames []*image.RGBA
	err    error
}

func (s *sliceSource) Stream(ctx context.Context, onFrame func(*image.RGBA)) error {
	for _, f := range s.frames {
		onFrame(f)
		time.Sleep(5 * time.Millisecond)
	}
	if s.err != nil {
		return s.err
	}
	<-ctx.Done()
	return nil
}

func testSessionConfig() SessionConfig {
	cfg := DefaultSessionConfig()
	cfg.Threshold = 50
	return cfg
}

func TestNewSession(t *testing.T) {
	s := NewSession(testSessionConfig(), newFakePort(), nil, log.Discard())

	if s.ID == "" {
		t.Error("Expected session ID")
	}
	if s.Threshold.Value() != 50 {
		t.Errorf("Expected threshold 50, got %d", s.Threshold.Value())
	}
	if !s.Connected() || s.PortName() != "/dev/fake0" {
		t.Errorf("Expected connected to /dev/fake0, got %v %q", s.Connected(), s.PortName())
	}

	other := NewSession(testSessionConfig(), nil, nil, log.Discard())
	if other.ID == s.ID {
		t.Error("Expected unique session IDs")
	}
}

func TestSession_Run(t *testing.T) {
	port := newFakePort()
	src := &sliceSource{frames: []*image.RGBA{lineFrame(100, 300)}}
	s := NewSession(testSessionConfig(), port, src, log.Discard())

	received := make(chan []byte, 1)
	s.OnReceive(func(b []byte) { received <- b })
	results := make(chan Result, 1)
	s.Loop.OnResult(func(r Result) { results <- r })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case r := <-results:
		if r.Command.Value != 1960 {
			t.Errorf("Expected 1960, got %d", r.Command.Value)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for frame result")
	}

	port.rx <- []byte("ACK\n")
	select {
	case b := <-received:
		if string(b) != "ACK\n" {
			t.Errorf("Expected ACK, got %q", b)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for received bytes")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected nil on cancel, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Session did not stop")
	}

	if !port.IsClosed() {
		t.Error("Expected port closed after Run")
	}
	if s.Connected() {
		t.Error("Expected session disconnected after Run")
	}

	// Baseline first, then the frame's command
	values := port.Values()
	if len(values) < 2 || values[0] != 1000 || values[1] != 1960 {
		t.Errorf("Expected [1000 1960], got %v", values)
	}

	var sawStatus, sawRx bool
	for _, e := range s.Console.Entries() {
		if e.Text == "CTS - Clear To Send: enabled" {
			sawStatus = true
		}
		if e.Kind == console.KindReceived && strings.Contains(e.Text, "Read 4 bytes") {
			sawRx = true
		}
	}
	if !sawStatus || !sawRx {
		t.Errorf("Expected modem status and received dump in console, got %+v", s.Console.Entries())
	}
}

func TestSession_RunWithoutPort(t *testing.T) {
	src := &sliceSource{frames: []*image.RGBA{lineFrame(100, 300)}}
	s := NewSession(testSessionConfig(), nil, src, log.Discard())

	results := make(chan Result, 1)
	s.Loop.OnResult(func(r Result) { results <- r })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	select {
	case r := <-results:
		if r.Delivered {
			t.Error("Expected command not delivered without a port")
		}
		if r.Command.Value != 1960 {
			t.Errorf("Expected 1960, got %d", r.Command.Value)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for frame result")
	}

	if !errors.Is(s.SetDTR(true), ErrNoPort) {
		t.Error("Expected ErrNoPort from SetDTR")
	}
	if _, err := s.ModemStatus(); !errors.Is(err, ErrNoPort) {
		t.Error("Expected ErrNoPort from ModemStatus")
	}
	if s.Sink.Dropped() == 0 {
		t.Error("Expected dropped commands without a port")
	}
}

func TestSession_SourceError(t *testing.T) {
	boom := errors.New("camera unplugged")
	s := NewSession(testSessionConfig(), newFakePort(), &sliceSource{err: boom}, log.Discard())

	err := s.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Errorf("Expected source error, got %v", err)
	}
}

func TestSession_Lines(t *testing.T) {
	port := newFakePort()
	s := NewSession(testSessionConfig(), port, nil, log.Discard())

	if err := s.SetDTR(false); err != nil {
		t.Fatalf("SetDTR failed: %v", err)
	}
	if err := s.SetRTS(false); err != nil {
		t.Fatalf("SetRTS failed: %v", err)
	}
	st, err := s.ModemStatus()
	if err != nil {
		t.Fatalf("ModemStatus failed: %v", err)
	}
	if st.DTR || st.RTS {
		t.Errorf("Expected DTR/RTS low, got %+v", st)
	}
	entries := s.Console.Entries()
	if len(entries) != 2 || entries[0].Text != "DTR - Data Terminal Ready: disabled" {
		t.Errorf("Unexpected console entries %+v", entries)
	}
}

func TestSession_State(t *testing.T) {
	port := newFakePort()
	s := NewSession(testSessionConfig(), port, nil, log.Discard())

	if _, err := s.Loop.Process(lineFrame(100, 300)); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	s.Threshold.SetPercent(40)

	st := s.State()
	if st.SessionID != s.ID || st.Port != "/dev/fake0" || !st.Connected {
		t.Errorf("Unexpected identity fields %+v", st)
	}
	if st.Threshold != 102 || st.ThresholdPercent != 40 {
		t.Errorf("Expected threshold 102 (40%%), got %d (%d%%)", st.Threshold, st.ThresholdPercent)
	}
	if st.Last.Command.Value != 1960 || st.Loop.Processed != 1 || st.CommandsSent != 1 {
		t.Errorf("Unexpected loop fields %+v", st)
	}

	s.Close()
	if s.State().Connected {
		t.Error("Expected disconnected after Close")
	}
	// Sink is detached: further sends are dropped
	if s.Sink.Send(1000) {
		t.Error("Expected send after Close to be dropped")
	}
	if !port.IsClosed() {
		t.Error("Expected port closed")
	}
}
