// Package actuator signals the door-side hardware after an attendance mark.
package actuator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/rs/zerolog"
	"go.bug.st/serial"
)

// ErrNotConnected is returned by Signal when no device is attached.
var ErrNotConnected = errors.New("actuator not connected")

// Actuator acknowledges a successful mark.
type Actuator interface {
	Signal(ctx context.Context) error
	Close() error
}

// openPort is replaced in tests.
var openPort = func(name string, baud int) (io.WriteCloser, error) {
	return serial.Open(name, &serial.Mode{BaudRate: baud})
}

// Serial writes a newline-terminated command to a serial device.
type Serial struct {
	mu      sync.Mutex
	port    io.WriteCloser
	name    string
	command []byte
	settle  time.Duration
}

// OpenSerial opens the serial port. command defaults to "blink".
func OpenSerial(name string, baud int, command string) (*Serial, error) {
	if name == "" {
		return nil, errors.New("serial port name is required")
	}
	if command == "" {
		command = "blink"
	}
	port, err := openPort(name, baud)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", name, err)
	}
	return &Serial{
		port:    port,
		name:    name,
		command: []byte(command + "\n"),
		settle:  constants.ActuatorSettleDelay,
	}, nil
}

// Signal writes the command and waits briefly for the device to process it.
func (s *Serial) Signal(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return ErrNotConnected
	}
	if _, err := s.port.Write(s.command); err != nil {
		return fmt.Errorf("write to %s: %w", s.name, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.settle):
	}
	return nil
}

// Close closes the port. Safe to call more than once.
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	if err != nil {
		return fmt.Errorf("close %s: %w", s.name, err)
	}
	return nil
}

// Disconnected is used when no device could be opened.
type Disconnected struct{}

// Signal always fails with ErrNotConnected.
func (Disconnected) Signal(context.Context) error { return ErrNotConnected }

// Close is a no-op.
func (Disconnected) Close() error { return nil }

// Open opens the configured serial port. An empty port name or an open failure
// yields a Disconnected actuator; the failure is logged and startup continues.
func Open(name string, baud int, command string, log zerolog.Logger) Actuator {
	if name == "" {
		log.Info().Msg("no actuator port configured")
		return Disconnected{}
	}
	s, err := OpenSerial(name, baud, command)
	if err != nil {
		log.Error().Err(err).Str("port", name).Msg("failed to establish serial connection")
		return Disconnected{}
	}
	log.Info().Str("port", name).Int("baud", baud).Msg("serial connection established")
	return s
}
