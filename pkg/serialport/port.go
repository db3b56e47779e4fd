package serialport

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"
)

var (
	// ErrClosed is returned for operations on a closed port.
	ErrClosed = errors.New("serial: port closed")

	// ErrWriteTimeout is returned when a write does not finish in time.
	ErrWriteTimeout = errors.New("serial: write timeout")

	// ErrWriteBusy is returned while an earlier timed-out write is still
	// blocked in the driver.
	ErrWriteBusy = errors.New("serial: previous write still in flight")

	// ErrUnsupported is returned when the device has no modem control lines.
	ErrUnsupported = errors.New("serial: not supported by device")
)

// Device is the byte stream behind a Port. serial.Port satisfies it.
type Device interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// lineDevice is implemented by devices with modem control lines.
type lineDevice interface {
	SetDTR(dtr bool) error
	SetRTS(rts bool) error
	GetModemStatusBits() (*serial.ModemStatusBits, error)
}

// ModemStatus reports the state of the modem lines
type ModemStatus struct {
	CD  bool `json:"cd"`  // Carrier Detect
	CTS bool `json:"cts"` // Clear To Send
	DSR bool `json:"dsr"` // Data Set Ready
	RI  bool `json:"ri"`  // Ring Indicator
	DTR bool `json:"dtr"` // Data Terminal Ready (output)
	RTS bool `json:"rts"` // Request To Send (output)
}

// Port is an open serial connection.
// Reads and writes may run concurrently from different goroutines.
type Port struct {
	name string
	dev  Device

	writing atomic.Bool
	closed  atomic.Bool

	linesMu sync.Mutex
	dtr     bool
	rts     bool
}

// Open opens the named port with cfg.
func Open(cfg Config) (*Port, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	mode, err := cfg.Mode()
	if err != nil {
		return nil, err
	}
	dev, err := serial.Open(cfg.Name, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Name, err)
	}
	if err := dev.SetReadTimeout(cfg.ReadTimeout); err != nil {
		dev.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", cfg.Name, err)
	}
	return NewPort(cfg.Name, dev), nil
}

// NewPort wraps an already open device.
func NewPort(name string, dev Device) *Port {
	// go.bug.st/serial raises DTR and RTS on open
	return &Port{name: name, dev: dev, dtr: true, rts: true}
}

// List returns the serial ports present on the system.
func List() ([]string, error) {
	return serial.GetPortsList()
}

// Name returns the device path.
func (p *Port) Name() string {
	return p.name
}

// WriteTimeout writes b, giving up after timeout. The underlying driver call
// keeps running after a timeout; until it returns, further writes fail with
// ErrWriteBusy instead of queueing behind it. The caller must not modify b
// after a timeout.
func (p *Port) WriteTimeout(b []byte, timeout time.Duration) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if !p.writing.CompareAndSwap(false, true) {
		return ErrWriteBusy
	}

	done := make(chan error, 1)
	go func() {
		n, err := p.dev.Write(b)
		if err == nil && n < len(b) {
			err = io.ErrShortWrite
		}
		p.writing.Store(false)
		done <- p.mapErr(err)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return ErrWriteTimeout
	}
}

// Write writes b without a deadline.
func (p *Port) Write(b []byte) (int, error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}
	n, err := p.dev.Write(b)
	return n, p.mapErr(err)
}

// Read reads whatever is available. It returns 0, nil when the read timeout
// elapses with no data.
func (p *Port) Read(b []byte) (int, error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}
	n, err := p.dev.Read(b)
	return n, p.mapErr(err)
}

// SetDTR drives the Data Terminal Ready line.
func (p *Port) SetDTR(on bool) error {
	ld, ok := p.dev.(lineDevice)
	if !ok {
		return ErrUnsupported
	}
	p.linesMu.Lock()
	defer p.linesMu.Unlock()
	if err := ld.SetDTR(on); err != nil {
		return p.mapErr(err)
	}
	p.dtr = on
	return nil
}

// SetRTS drives the Request To Send line.
func (p *Port) SetRTS(on bool) error {
	ld, ok := p.dev.(lineDevice)
	if !ok {
		return ErrUnsupported
	}
	p.linesMu.Lock()
	defer p.linesMu.Unlock()
	if err := ld.SetRTS(on); err != nil {
		return p.mapErr(err)
	}
	p.rts = on
	return nil
}

// ModemStatus reads the modem input lines and reports the last values set
// on the output lines.
func (p *Port) ModemStatus() (ModemStatus, error) {
	ld, ok := p.dev.(lineDevice)
	if !ok {
		return ModemStatus{}, ErrUnsupported
	}
	bits, err := ld.GetModemStatusBits()
	if err != nil {
		return ModemStatus{}, p.mapErr(err)
	}

	p.linesMu.Lock()
	defer p.linesMu.Unlock()
	return ModemStatus{
		CD:  bits.DCD,
		CTS: bits.CTS,
		DSR: bits.DSR,
		RI:  bits.RI,
		DTR: p.dtr,
		RTS: p.rts,
	}, nil
}

// Close closes the port. It is safe to call more than once.
func (p *Port) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return p.dev.Close()
}

// mapErr turns driver "port closed" errors into ErrClosed.
func (p *Port) mapErr(err error) error {
	if err == nil {
		return nil
	}
	var pe *serial.PortError
	if errors.As(err, &pe) && pe.Code() == serial.PortClosed {
		return ErrClosed
	}
	if p.closed.Load() {
		return ErrClosed
	}
	return err
}
