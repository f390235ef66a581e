package pipeline

import (
	"sync"
	"time"

	"reelgen/internal/domain"
)

// Event status values.
const (
	EventStarted   = "started"
	EventSucceeded = "succeeded"
	EventFailed    = "failed"
)

// Event is one progress notification for a run.
type Event struct {
	RunID  string       `json:"run_id"`
	Stage  domain.Stage `json:"stage"`
	Status string       `json:"status"`
	Error  string       `json:"error,omitempty"`
	At     time.Time    `json:"at"`
}

type runLog struct {
	events []Event
	done   bool
	subs   map[chan Event]struct{}
}

// Broker fans run events out to subscribers. It keeps the history of the
// most recent finished runs so late subscribers can replay them.
type Broker struct {
	mu       sync.Mutex
	runs     map[string]*runLog
	finished []string
	keep     int
}

// NewBroker returns a broker that retains keep finished runs.
func NewBroker(keep int) *Broker {
	if keep <= 0 {
		keep = 256
	}
	return &Broker{runs: make(map[string]*runLog), keep: keep}
}

func (b *Broker) logFor(runID string) *runLog {
	l, ok := b.runs[runID]
	if !ok {
		l = &runLog{subs: make(map[chan Event]struct{})}
		b.runs[runID] = l
	}
	return l
}

// Begin prepares the log for a new run. A finished log left by an earlier
// run with the same ID is dropped so the new run starts from an empty
// history; a pending log that already has subscribers is kept.
func (b *Broker) Begin(runID string) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if l, ok := b.runs[runID]; ok && l.done {
		delete(b.runs, runID)
		for i, id := range b.finished {
			if id == runID {
				b.finished = append(b.finished[:i], b.finished[i+1:]...)
				break
			}
		}
	}
	b.logFor(runID)
}

// Publish records e and delivers it to current subscribers. Slow
// subscribers miss events rather than block the run.
func (b *Broker) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	l := b.logFor(e.RunID)
	if l.done {
		return
	}
	l.events = append(l.events, e)
	for ch := range l.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Finish marks the run complete and closes subscriber channels.
func (b *Broker) Finish(runID string) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	l := b.logFor(runID)
	if l.done {
		return
	}
	l.done = true
	for ch := range l.subs {
		close(ch)
		delete(l.subs, ch)
	}
	b.finished = append(b.finished, runID)
	for len(b.finished) > b.keep {
		delete(b.runs, b.finished[0])
		b.finished = b.finished[1:]
	}
}

// Subscribe returns the events published so far and a channel for later
// ones. The channel is closed when the run finishes or cancel is called.
func (b *Broker) Subscribe(runID string) (backlog []Event, updates <-chan Event, cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	l := b.logFor(runID)
	backlog = append([]Event(nil), l.events...)
	ch := make(chan Event, 16)
	if l.done {
		close(ch)
		return backlog, ch, func() {}
	}
	l.subs[ch] = struct{}{}
	var once sync.Once
	cancel = func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := l.subs[ch]; ok {
				delete(l.subs, ch)
				close(ch)
			}
			if !l.done && len(l.events) == 0 && len(l.subs) == 0 {
				delete(b.runs, runID)
			}
		})
	}
	return backlog, ch, cancel
}
