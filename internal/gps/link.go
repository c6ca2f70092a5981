package gps

import (
	"context"
	"sync"
	"time"

	"github.com/looplab/fsm"
)

// Link states and events.
const (
	LinkOnline  = "online"
	LinkOffline = "offline"

	eventContact = "contact"
	eventLost    = "lost"
)

// DefaultContactTimeout is how long the link stays online without a valid
// fix before it is considered lost. Sentence loss on a serial GPS is
// intermittent; the timeout debounces it so a single missed read does not
// flap the status.
const DefaultContactTimeout = 5 * time.Second

// Link tracks the online/offline status of a GPS feed. A valid fix forces
// the link online and resets the contact clock; a miss while online flips it
// offline only once the contact timeout has elapsed.
type Link struct {
	mu          sync.Mutex
	fsm         *fsm.FSM
	lastContact time.Time
	timeout     time.Duration
	now         func() time.Time

	onChange func(online bool)
}

// NewLink creates an offline link with the default 5-second contact timeout.
// onChange may be nil; when set it fires on every online/offline transition.
func NewLink(onChange func(online bool)) *Link {
	return newLink(DefaultContactTimeout, time.Now, onChange)
}

func newLink(timeout time.Duration, now func() time.Time, onChange func(online bool)) *Link {
	l := &Link{
		timeout:  timeout,
		now:      now,
		onChange: onChange,
	}
	l.fsm = fsm.NewFSM(
		LinkOffline,
		fsm.Events{
			{Name: eventContact, Src: []string{LinkOffline, LinkOnline}, Dst: LinkOnline},
			{Name: eventLost, Src: []string{LinkOnline}, Dst: LinkOffline},
		},
		fsm.Callbacks{
			"after_event": func(_ context.Context, e *fsm.Event) {
				if l.onChange != nil && e.Src != e.Dst {
					l.onChange(e.Dst == LinkOnline)
				}
			},
		},
	)
	return l
}

// Contact records a valid fix: the link goes (or stays) online and the
// contact clock restarts.
func (l *Link) Contact() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastContact = l.now()
	_ = l.fsm.Event(context.Background(), eventContact)
}

// Miss records a cycle without a valid fix. While online, the link drops to
// offline only if more than the contact timeout has passed since the last
// valid fix.
func (l *Link) Miss() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fsm.Current() != LinkOnline {
		return
	}
	if l.now().Sub(l.lastContact) > l.timeout {
		_ = l.fsm.Event(context.Background(), eventLost)
	}
}

// Online reports whether the link is currently online.
func (l *Link) Online() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fsm.Current() == LinkOnline
}
