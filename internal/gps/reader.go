package gps

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// PollOutcome is the result of one read/decode cycle.
type PollOutcome int

const (
	// OutcomeFix: a valid GPRMC/GPGGA sentence was decoded.
	OutcomeFix PollOutcome = iota
	// OutcomeNotAFix: the cycle yielded no position (timeout, unrelated
	// sentence, or a decode failure). Recovered locally.
	OutcomeNotAFix
	// OutcomeIOError: the connection failed; the handle has been closed and
	// invalidated so the loop re-runs autodetection.
	OutcomeIOError
)

// ReaderOptions configures a Reader. Zero values fall back to the package
// defaults (4800 baud, 500 ms reads, 5 s contact timeout).
type ReaderOptions struct {
	Candidates     []string // serial port names, tried in order
	BaudRate       uint
	ReadTimeout    time.Duration
	ContactTimeout time.Duration
}

// Reader owns one serial GPS connection and runs the read/decode loop on a
// dedicated goroutine. Consumers get fixes two ways: a single-slot channel
// that always holds the newest fix (stale fixes are dropped, since this
// feeds a live display, not an audit log) and an atomic last-known-fix
// cache.
type Reader struct {
	log  *zap.Logger
	opts ReaderOptions

	mu       sync.Mutex
	port     Port
	portName string

	link  *Link
	last  atomic.Value // Fix
	fixes chan Fix
}

// NewReader builds a stopped reader. onLinkChange may be nil.
func NewReader(log *zap.Logger, opts ReaderOptions, onLinkChange func(online bool)) *Reader {
	if opts.BaudRate == 0 {
		opts.BaudRate = DetectBaudRate
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.ContactTimeout <= 0 {
		opts.ContactTimeout = DefaultContactTimeout
	}
	return &Reader{
		log:   log,
		opts:  opts,
		link:  newLink(opts.ContactTimeout, time.Now, onLinkChange),
		fixes: make(chan Fix, 1),
	}
}

// Fixes returns the latest-fix channel. Only the newest undelivered fix is
// retained.
func (r *Reader) Fixes() <-chan Fix { return r.fixes }

// Latest returns the last decoded fix, if any.
func (r *Reader) Latest() (Fix, bool) {
	v := r.last.Load()
	if v == nil {
		return Fix{}, false
	}
	return v.(Fix), true
}

// Online reports the current link status.
func (r *Reader) Online() bool { return r.link.Online() }

// PortName returns the connected port, or "" when disconnected.
func (r *Reader) PortName() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.portName
}

// PollOnce reads and decodes a single line from the open connection. On an
// I/O failure it closes and invalidates the connection; the caller is
// expected to retry autodetection.
func (r *Reader) PollOnce() (Fix, PollOutcome) {
	r.mu.Lock()
	port := r.port
	r.mu.Unlock()
	if port == nil {
		return Fix{}, OutcomeIOError
	}

	line, err := port.ReadLine()
	if err != nil {
		if errors.Is(err, ErrReadTimeout) {
			return Fix{}, OutcomeNotAFix
		}
		r.log.Warn("gps connection lost", zap.String("port", r.PortName()), zap.Error(err))
		r.dropPort()
		return Fix{}, OutcomeIOError
	}

	if ClassifyLine(line) == LineOther {
		return Fix{}, OutcomeNotAFix
	}
	fix, err := Decode(line)
	if err != nil {
		// Noisy serial input; never surfaced per occurrence.
		return Fix{}, OutcomeNotAFix
	}
	return fix, OutcomeFix
}

// Run is the worker loop; call it once, on its own goroutine. Cancellation
// is cooperative: the ctx is checked once per iteration, so shutdown latency
// is bounded by one read timeout. The fixes channel is closed when Run
// returns, releasing any consumer still waiting on it.
func (r *Reader) Run(ctx context.Context) {
	defer close(r.fixes)
	defer r.dropPort()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !r.connected() {
			port, name, err := Autodetect(r.opts.Candidates, r.opts.BaudRate, r.opts.ReadTimeout)
			if err != nil {
				r.link.Miss()
				select {
				case <-ctx.Done():
					return
				case <-time.After(r.opts.ReadTimeout):
				}
				continue
			}
			r.mu.Lock()
			r.port, r.portName = port, name
			r.mu.Unlock()
			r.log.Info("gps connected", zap.String("port", name), zap.Uint("baud", r.opts.BaudRate))
		}

		fix, outcome := r.PollOnce()
		switch outcome {
		case OutcomeFix:
			r.link.Contact()
			r.last.Store(fix)
			r.publish(fix)
		default:
			r.link.Miss()
		}
	}
}

// publish places fix in the single-slot channel, displacing any undelivered
// predecessor rather than blocking the decode loop.
func (r *Reader) publish(fix Fix) {
	select {
	case r.fixes <- fix:
		return
	default:
	}
	select {
	case <-r.fixes:
	default:
	}
	select {
	case r.fixes <- fix:
	default:
	}
}

func (r *Reader) connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.port != nil
}

func (r *Reader) dropPort() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.port != nil {
		_ = r.port.Close()
		r.port = nil
		r.portName = ""
	}
}
