package actuator

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakePort struct {
	buf      bytes.Buffer
	writeErr error
	closed   int
}

func (p *fakePort) Write(b []byte) (int, error) {
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	return p.buf.Write(b)
}

func (p *fakePort) Close() error {
	p.closed++
	return nil
}

func withFakePort(t *testing.T, port *fakePort, openErr error) {
	t.Helper()
	orig := openPort
	openPort = func(name string, baud int) (io.WriteCloser, error) {
		if openErr != nil {
			return nil, openErr
		}
		return port, nil
	}
	t.Cleanup(func() { openPort = orig })
}

func TestSerial_Signal(t *testing.T) {
	port := &fakePort{}
	withFakePort(t, port, nil)

	s, err := OpenSerial("/dev/ttyUSB0", 115200, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.settle = time.Millisecond

	if err := s.Signal(context.Background()); err != nil {
		t.Fatalf("signal: %v", err)
	}
	if got := port.buf.String(); got != "blink\n" {
		t.Errorf("expected blink command, got %q", got)
	}

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second close should be a no-op, got %v", err)
	}
	if port.closed != 1 {
		t.Errorf("expected port closed once, got %d", port.closed)
	}
	if err := s.Signal(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected after close, got %v", err)
	}
}

func TestSerial_CustomCommandAndWriteError(t *testing.T) {
	port := &fakePort{}
	withFakePort(t, port, nil)

	s, err := OpenSerial("COM3", 9600, "open")
	if err != nil {
		t.Fatal(err)
	}
	s.settle = time.Millisecond
	if err := s.Signal(context.Background()); err != nil {
		t.Fatal(err)
	}
	if port.buf.String() != "open\n" {
		t.Errorf("expected custom command, got %q", port.buf.String())
	}

	port.writeErr = errors.New("device unplugged")
	if err := s.Signal(context.Background()); err == nil {
		t.Error("expected write error")
	}
}

func TestOpen_FallsBackToDisconnected(t *testing.T) {
	withFakePort(t, nil, errors.New("no such device"))

	a := Open("/dev/ttyUSB9", 115200, "blink", zerolog.Nop())
	if _, ok := a.(Disconnected); !ok {
		t.Fatalf("expected Disconnected, got %T", a)
	}
	if err := a.Signal(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if err := a.Close(); err != nil {
		t.Errorf("close should be a no-op, got %v", err)
	}

	if _, ok := Open("", 115200, "blink", zerolog.Nop()).(Disconnected); !ok {
		t.Error("empty port should yield Disconnected")
	}
}
