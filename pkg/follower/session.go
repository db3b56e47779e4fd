package follower

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/teslashibe/linefollow/internal/log"
	"github.com/teslashibe/linefollow/pkg/command"
	"github.com/teslashibe/linefollow/pkg/console"
	"github.com/teslashibe/linefollow/pkg/serialport"
)

// ErrNoPort is returned by port operations when no device is attached.
var ErrNoPort = errors.New("follower: no serial device")

// Port is the serial link to the drive controller. *serialport.Port
// satisfies it.
type Port interface {
	command.Channel
	io.Reader
	Name() string
	SetDTR(on bool) error
	SetRTS(on bool) error
	ModemStatus() (serialport.ModemStatus, error)
	Close() error
}

// Session owns one control run: the port, the shared threshold, the console
// and the frame loop. Nothing in it is global; create one per run.
type Session struct {
	ID        string
	Threshold *Threshold
	Sink      *command.Sink
	Console   *console.Console
	Loop      *Loop

	cfg    SessionConfig
	port   Port
	source FrameSource
	log    *slog.Logger

	mu        sync.RWMutex
	onReceive []func([]byte)
	connected bool

	closeOnce sync.Once
}

// NewSession wires a session. port may be nil to run without a device, in
// which case every command counts as dropped. source may be nil when frames
// are submitted directly to Loop.
func NewSession(cfg SessionConfig, port Port, source FrameSource, logger *slog.Logger) *Session {
	id := uuid.NewString()
	l := log.Or(logger).With("session", id)

	var ch command.Channel
	if port != nil {
		ch = port
	}
	threshold := NewThreshold(cfg.Threshold)
	sink := command.NewSink(ch, cfg.WriteTimeout, l)

	return &Session{
		ID:        id,
		Threshold: threshold,
		Sink:      sink,
		Console:   console.New(cfg.ConsoleCapacity),
		Loop:      NewLoop(cfg.Loop, threshold, sink, l),
		cfg:       cfg,
		port:      port,
		source:    source,
		log:       l,
		connected: port != nil,
	}
}

// OnReceive registers a consumer for bytes read from the device.
func (s *Session) OnReceive(fn func([]byte)) {
	s.mu.Lock()
	s.onReceive = append(s.onReceive, fn)
	s.mu.Unlock()
}

// PortName returns the device path, or "" without a device.
func (s *Session) PortName() string {
	if s.port == nil {
		return ""
	}
	return s.port.Name()
}

// Connected reports whether a device is attached and its reader is alive.
func (s *Session) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Run starts the serial reader, the frame loop and the frame source, and
// blocks until ctx is cancelled or the frame source fails. The port is closed
// on return.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.open()

	var wg sync.WaitGroup
	errc := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Loop.Run(ctx)
	}()

	if s.port != nil {
		reader := serialport.NewReader(s.port, s.receive, s.log)
		reader.OnError(func(err error) {
			s.mu.Lock()
			s.connected = false
			s.mu.Unlock()
			s.Console.Status("Serial reader stopped: %v", err)
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			reader.Run(ctx)
		}()
	}

	if s.source != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.source.Stream(ctx, s.Loop.Submit); err != nil && ctx.Err() == nil {
				errc <- err
				cancel()
			}
		}()
	}

	<-ctx.Done()
	s.Close()
	wg.Wait()

	select {
	case err := <-errc:
		return err
	default:
		return nil
	}
}

// open reports the device state and sends the straight-ahead command.
func (s *Session) open() {
	if s.port == nil {
		s.Console.Status("No serial device.")
		s.log.Warn("running without serial device")
		return
	}

	s.Console.Status("Serial device: %s", s.port.Name())
	s.log.Info("serial device attached", "port", s.port.Name())

	if st, err := s.port.ModemStatus(); err == nil {
		s.Console.Flag("CD  - Carrier Detect", st.CD)
		s.Console.Flag("CTS - Clear To Send", st.CTS)
		s.Console.Flag("DSR - Data Set Ready", st.DSR)
		s.Console.Flag("DTR - Data Terminal Ready", st.DTR)
		s.Console.Flag("RI  - Ring Indicator", st.RI)
		s.Console.Flag("RTS - Request To Send", st.RTS)
	} else {
		s.log.Debug("modem status unavailable", "error", err)
	}

	if s.cfg.SendBaseline {
		baseline := s.cfg.Loop.Steering.Baseline
		if s.Sink.Send(baseline) {
			s.Console.Command(baseline)
		}
	}
}

func (s *Session) receive(data []byte) {
	s.Console.Received(data)

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, fn := range s.onReceive {
		fn(data)
	}
}

// SetDTR drives the DTR line.
func (s *Session) SetDTR(on bool) error {
	if s.port == nil {
		return ErrNoPort
	}
	if err := s.port.SetDTR(on); err != nil {
		return err
	}
	s.Console.Flag("DTR - Data Terminal Ready", on)
	return nil
}

// SetRTS drives the RTS line.
func (s *Session) SetRTS(on bool) error {
	if s.port == nil {
		return ErrNoPort
	}
	if err := s.port.SetRTS(on); err != nil {
		return err
	}
	s.Console.Flag("RTS - Request To Send", on)
	return nil
}

// ModemStatus reads the modem lines.
func (s *Session) ModemStatus() (serialport.ModemStatus, error) {
	if s.port == nil {
		return serialport.ModemStatus{}, ErrNoPort
	}
	return s.port.ModemStatus()
}

// Close detaches and closes the port. Safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.Sink.SetChannel(nil)
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()
		if s.port != nil {
			err = s.port.Close()
			s.log.Info("serial device closed", "port", s.port.Name())
		}
	})
	return err
}

// State is a snapshot of the session for dashboards
type State struct {
	SessionID        string  `json:"session_id"`
	Port             string  `json:"port"`
	Connected        bool    `json:"connected"`
	Threshold        int     `json:"threshold"`
	ThresholdPercent int     `json:"threshold_percent"`
	Last             Result  `json:"last"`
	Loop             Stats   `json:"loop"`
	CommandsSent     uint64  `json:"commands_sent"`
	CommandsDropped  uint64  `json:"commands_dropped"`
	FPS              float64 `json:"fps"`
}

// State returns a snapshot of the session.
func (s *Session) State() State {
	stats := s.Loop.Stats()
	return State{
		SessionID:        s.ID,
		Port:             s.PortName(),
		Connected:        s.Connected(),
		Threshold:        s.Threshold.Value(),
		ThresholdPercent: s.Threshold.Percent(),
		Last:             s.Loop.Last(),
		Loop:             stats,
		CommandsSent:     s.Sink.Sent(),
		CommandsDropped:  s.Sink.Dropped(),
		FPS:              stats.FPS,
	}
}
