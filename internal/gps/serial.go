package gps

import (
	"errors"
	"fmt"
	"io"
	"time"

	serial "github.com/jacobsa/go-serial/serial"
)

// ErrReadTimeout reports a bounded read that returned no complete line.
// A timeout is normal cadence (the receiver emits roughly one sentence per
// second), not a link failure.
var ErrReadTimeout = errors.New("serial: read timed out")

// DetectBaudRate is the rate survey GPS receivers are configured to in the
// field.
const DetectBaudRate = 4800

// DefaultReadTimeout bounds a single line read.
const DefaultReadTimeout = 500 * time.Millisecond

// Port is one exclusively-owned serial connection delivering NMEA lines.
type Port interface {
	// ReadLine returns the next newline-terminated line, without the
	// terminator. It returns ErrReadTimeout when no full line arrives
	// within the port's read timeout.
	ReadLine() (string, error)
	Close() error
}

// openPort is a function variable so tests can substitute a fake port.
var openPort = func(name string, baud uint, timeout time.Duration) (Port, error) {
	opts := serial.OpenOptions{
		PortName:              name,
		BaudRate:              baud,
		DataBits:              8,
		StopBits:              1,
		ParityMode:            serial.PARITY_NONE,
		MinimumReadSize:       0,
		InterCharacterTimeout: uint(timeout / time.Millisecond),
	}
	h, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening serial port %s: %w", name, err)
	}
	return &serialPort{h: h}, nil
}

type serialPort struct {
	h   io.ReadWriteCloser
	buf []byte
}

func (p *serialPort) ReadLine() (string, error) {
	one := make([]byte, 1)
	for {
		n, err := p.h.Read(one)
		if n > 0 {
			c := one[0]
			if c == '\n' {
				line := string(trimCR(p.buf))
				p.buf = p.buf[:0]
				return line, nil
			}
			p.buf = append(p.buf, c)
			continue
		}
		// jacobsa/go-serial signals an expired inter-character timeout as
		// a zero-byte read (io.EOF on some platforms).
		if err == nil || errors.Is(err, io.EOF) {
			return "", ErrReadTimeout
		}
		return "", err
	}
}

func (p *serialPort) Close() error {
	return p.h.Close()
}

func trimCR(b []byte) []byte {
	if n := len(b); n > 0 && b[n-1] == '\r' {
		return b[:n-1]
	}
	return b
}

// settleDelay is how long a freshly opened port gets to start streaming
// before autodetection judges it. Overridden in tests.
var settleDelay = time.Second

// Autodetect walks the candidate port names in order and returns the first
// one that streams NMEA. Each candidate is opened at the given baud rate
// with the given read timeout, allowed to settle, and must then produce a
// clean line: the first read after opening usually lands mid-sentence and is
// discarded, the second must start with '$'. Failed candidates are closed
// before moving on.
func Autodetect(candidates []string, baud uint, timeout time.Duration) (Port, string, error) {
	for _, name := range candidates {
		port, err := openPort(name, baud, timeout)
		if err != nil {
			continue
		}
		time.Sleep(settleDelay)

		// Discard the buffered partial line.
		if _, err := port.ReadLine(); err != nil && !errors.Is(err, ErrReadTimeout) {
			_ = port.Close()
			continue
		}

		line, err := port.ReadLine()
		if err != nil || len(line) == 0 || line[0] != '$' {
			_ = port.Close()
			continue
		}
		return port, name, nil
	}
	return nil, "", fmt.Errorf("gps: no NMEA stream found on %d candidate ports", len(candidates))
}
