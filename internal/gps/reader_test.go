package gps

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

// fakePort feeds scripted lines/errors to the reader.
type fakePort struct {
	lines  []any // string or error
	closed bool
}

func (p *fakePort) ReadLine() (string, error) {
	if len(p.lines) == 0 {
		return "", ErrReadTimeout
	}
	next := p.lines[0]
	p.lines = p.lines[1:]
	switch v := next.(type) {
	case string:
		return v, nil
	case error:
		return "", v
	}
	return "", ErrReadTimeout
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func newTestReader(port Port) *Reader {
	r := NewReader(zap.NewNop(), ReaderOptions{}, nil)
	r.port = port
	r.portName = "fake0"
	return r
}

func TestNewReader_DefaultsAndOverrides(t *testing.T) {
	r := NewReader(zap.NewNop(), ReaderOptions{}, nil)
	if r.opts.BaudRate != DetectBaudRate {
		t.Errorf("default baud = %d, want %d", r.opts.BaudRate, DetectBaudRate)
	}
	if r.opts.ReadTimeout != DefaultReadTimeout {
		t.Errorf("default read timeout = %v, want %v", r.opts.ReadTimeout, DefaultReadTimeout)
	}
	if r.link.timeout != DefaultContactTimeout {
		t.Errorf("default contact timeout = %v, want %v", r.link.timeout, DefaultContactTimeout)
	}

	r = NewReader(zap.NewNop(), ReaderOptions{
		BaudRate:       9600,
		ReadTimeout:    time.Second,
		ContactTimeout: 10 * time.Second,
	}, nil)
	if r.opts.BaudRate != 9600 || r.opts.ReadTimeout != time.Second {
		t.Errorf("opts = %+v, want the configured baud and read timeout", r.opts)
	}
	if r.link.timeout != 10*time.Second {
		t.Errorf("link timeout = %v, want the configured 10s", r.link.timeout)
	}
}

func TestPollOnce_ValidSentence(t *testing.T) {
	r := newTestReader(&fakePort{lines: []any{
		"$GPRMC,122630,A,4822.4652,N,00435.3043,W,5.6,210.4,010825,,,A",
	}})

	fix, outcome := r.PollOnce()
	if outcome != OutcomeFix {
		t.Fatalf("outcome = %v, want OutcomeFix", outcome)
	}
	if !almostEqual(fix.Latitude, 48.374420) {
		t.Errorf("Latitude = %v, want ~48.374420", fix.Latitude)
	}
}

func TestPollOnce_NotAFix(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"unrelated sentence", "$PGRME,15.0,M,45.0,M,25.0,M"},
		{"noise", "not nmea at all"},
		{"malformed gprmc", "$GPRMC,,A,4822.4652,N,00435.3043,W,5.6,210.4,010825,,,A"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestReader(&fakePort{lines: []any{tt.line}})
			if _, outcome := r.PollOnce(); outcome != OutcomeNotAFix {
				t.Errorf("outcome = %v, want OutcomeNotAFix", outcome)
			}
		})
	}
}

func TestPollOnce_TimeoutIsNotAFix(t *testing.T) {
	port := &fakePort{}
	r := newTestReader(port)
	if _, outcome := r.PollOnce(); outcome != OutcomeNotAFix {
		t.Errorf("outcome = %v, want OutcomeNotAFix", outcome)
	}
	if port.closed {
		t.Error("a read timeout must not close the connection")
	}
}

func TestPollOnce_IOErrorInvalidatesPort(t *testing.T) {
	port := &fakePort{lines: []any{errors.New("device unplugged")}}
	r := newTestReader(port)

	if _, outcome := r.PollOnce(); outcome != OutcomeIOError {
		t.Fatalf("outcome = %v, want OutcomeIOError", outcome)
	}
	if !port.closed {
		t.Error("I/O error must close the connection")
	}
	if r.connected() {
		t.Error("I/O error must invalidate the connection so autodetection reruns")
	}
}

func TestPublish_KeepsNewestFixOnly(t *testing.T) {
	r := NewReader(zap.NewNop(), ReaderOptions{}, nil)

	first := Fix{Latitude: 1}
	second := Fix{Latitude: 2}
	r.publish(first)
	r.publish(second) // displaces the undelivered first fix

	select {
	case got := <-r.Fixes():
		if got.Latitude != 2 {
			t.Errorf("delivered fix Latitude = %v, want 2 (newest)", got.Latitude)
		}
	default:
		t.Fatal("expected a buffered fix")
	}

	select {
	case got := <-r.Fixes():
		t.Errorf("unexpected second fix %v; older fixes must be dropped", got)
	default:
	}
}

func TestLatest_TracksLastFix(t *testing.T) {
	r := NewReader(zap.NewNop(), ReaderOptions{}, nil)
	if _, ok := r.Latest(); ok {
		t.Error("Latest() should report no fix before any decode")
	}
	r.last.Store(Fix{Latitude: 48.37})
	fix, ok := r.Latest()
	if !ok || !almostEqual(fix.Latitude, 48.37) {
		t.Errorf("Latest() = %v %v, want cached fix", fix, ok)
	}
}

func TestAutodetect_FirstWorkingCandidateWins(t *testing.T) {
	origOpen, origSettle := openPort, settleDelay
	settleDelay = 0
	defer func() { openPort, settleDelay = origOpen, origSettle }()

	noise := &fakePort{lines: []any{"partial", "still not nmea"}}
	good := &fakePort{lines: []any{
		"22.4652,N,00435.3043,W,5.6,210.4,010825,,,A", // mid-sentence tail, discarded
		"$GPGGA,122630,4822.4652,N,00435.3043,W,1,08,0.9,10.2,M,,M,,",
	}}
	ports := map[string]*fakePort{"/dev/ttyUSB1": noise, "/dev/ttyUSB2": good}

	openPort = func(name string, baud uint, timeout time.Duration) (Port, error) {
		if baud != 9600 {
			t.Errorf("baud = %d, want the requested 9600", baud)
		}
		if timeout != DefaultReadTimeout {
			t.Errorf("timeout = %v, want %v", timeout, DefaultReadTimeout)
		}
		p, ok := ports[name]
		if !ok {
			return nil, errors.New("no such port")
		}
		return p, nil
	}

	port, name, err := Autodetect([]string{"/dev/ttyUSB0", "/dev/ttyUSB1", "/dev/ttyUSB2"}, 9600, DefaultReadTimeout)
	if err != nil {
		t.Fatalf("Autodetect() error = %v", err)
	}
	if name != "/dev/ttyUSB2" {
		t.Errorf("detected port = %s, want /dev/ttyUSB2", name)
	}
	if port != good {
		t.Error("returned handle is not the working candidate")
	}
	if !noise.closed {
		t.Error("failed candidate must be closed before moving on")
	}
	if good.closed {
		t.Error("working candidate must stay open")
	}
}

func TestAutodetect_AllCandidatesFail(t *testing.T) {
	origOpen, origSettle := openPort, settleDelay
	settleDelay = 0
	defer func() { openPort, settleDelay = origOpen, origSettle }()

	openPort = func(name string, baud uint, timeout time.Duration) (Port, error) {
		return nil, errors.New("no such port")
	}

	if _, _, err := Autodetect([]string{"/dev/ttyUSB0", "/dev/ttyUSB1"}, DetectBaudRate, DefaultReadTimeout); err == nil {
		t.Fatal("expected error when no candidate streams NMEA")
	}
}

func TestRun_ClosesFixesOnShutdown(t *testing.T) {
	r := NewReader(zap.NewNop(), ReaderOptions{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Run(ctx)

	if _, ok := <-r.Fixes(); ok {
		t.Fatal("fixes channel must be closed once the worker loop returns")
	}
}
