// Package serialport connects to the drive controller over a serial port.
//
// It wraps go.bug.st/serial with what the control loop needs: writes that
// give up after a bounded time, a background reader that hands received
// chunks to a consumer, and access to the modem control lines.
package serialport

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// NoTimeout makes reads block until data arrives. Same value as
// serial.NoTimeout, which is a variable.
const NoTimeout time.Duration = -1

// Config holds serial port settings
type Config struct {
	Name         string        // Device path, e.g. /dev/ttyACM0 or COM4
	BaudRate     int           // Line speed
	DataBits     int           // 5-8
	Parity       string        // none, odd, even, mark, space
	StopBits     int           // 1 or 2
	ReadTimeout  time.Duration // How long a Read waits before returning empty, or NoTimeout
	WriteTimeout time.Duration // Default bound for command writes
}

// DefaultConfig returns 115200 8N1, the controller firmware's settings
func DefaultConfig() Config {
	return Config{
		BaudRate:     115200,
		DataBits:     8,
		Parity:       "none",
		StopBits:     1,
		ReadTimeout:  100 * time.Millisecond,
		WriteTimeout: 10 * time.Millisecond,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("serial: port name is required")
	}
	if c.BaudRate <= 0 {
		return fmt.Errorf("serial: invalid baud rate %d", c.BaudRate)
	}
	if c.DataBits < 5 || c.DataBits > 8 {
		return fmt.Errorf("serial: invalid data bits %d", c.DataBits)
	}
	if _, err := c.parity(); err != nil {
		return err
	}
	if _, err := c.stopBits(); err != nil {
		return err
	}
	if c.ReadTimeout <= 0 && c.ReadTimeout != NoTimeout {
		return fmt.Errorf("serial: read timeout must be positive or NoTimeout")
	}
	return nil
}

// Mode converts the configuration to a go.bug.st/serial mode
func (c Config) Mode() (*serial.Mode, error) {
	parity, err := c.parity()
	if err != nil {
		return nil, err
	}
	stop, err := c.stopBits()
	if err != nil {
		return nil, err
	}
	return &serial.Mode{
		BaudRate: c.BaudRate,
		DataBits: c.DataBits,
		Parity:   parity,
		StopBits: stop,
	}, nil
}

func (c Config) parity() (serial.Parity, error) {
	switch c.Parity {
	case "", "none":
		return serial.NoParity, nil
	case "odd":
		return serial.OddParity, nil
	case "even":
		return serial.EvenParity, nil
	case "mark":
		return serial.MarkParity, nil
	case "space":
		return serial.SpaceParity, nil
	}
	return serial.NoParity, fmt.Errorf("serial: unknown parity %q", c.Parity)
}

func (c Config) stopBits() (serial.StopBits, error) {
	switch c.StopBits {
	case 0, 1:
		return serial.OneStopBit, nil
	case 2:
		return serial.TwoStopBits, nil
	}
	return serial.OneStopBit, fmt.Errorf("serial: invalid stop bits %d", c.StopBits)
}
