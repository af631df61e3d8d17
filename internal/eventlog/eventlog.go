package eventlog

import (
	"sync"

	"finverseAPI/internal/types/event"
)

// Recorder receives every appended event for out-of-band persistence.
// Recording must never block the log; implementations queue internally.
type Recorder interface {
	Record(e event.Event)
}

// Log is an ordered, append-only buffer of domain events. Insertion order
// breaks timestamp ties via the sequence number assigned on Append. Drain
// hands each batch to the caller exactly once; the log is derived state,
// never authoritative.
type Log struct {
	mu   sync.Mutex
	buf  []event.Event
	seq  uint64
	sink Recorder
}

func New() *Log {
	return &Log{}
}

// NewWithSink forwards every appended event to the given recorder in
// addition to buffering it for Drain.
func NewWithSink(sink Recorder) *Log {
	return &Log{sink: sink}
}

func (l *Log) Append(e event.Event) {
	l.mu.Lock()
	l.seq++
	e.Seq = l.seq
	l.buf = append(l.buf, e)
	sink := l.sink
	l.mu.Unlock()

	if sink != nil {
		sink.Record(e)
	}
}

// Drain returns the buffered events in insertion order and clears the
// buffer. A batch is delivered exactly once; events are not re-delivered.
func (l *Log) Drain() []event.Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := l.buf
	l.buf = nil
	return out
}

// DrainUser returns and removes only the given user's events, preserving
// order for the rest of the buffer.
func (l *Log) DrainUser(userID string) []event.Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out, rest []event.Event
	for _, e := range l.buf {
		if e.UserID == userID {
			out = append(out, e)
		} else {
			rest = append(rest, e)
		}
	}
	l.buf = rest
	return out
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buf)
}
