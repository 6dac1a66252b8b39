package session

import (
	"github.com/rs/zerolog"

	"mindrian/internal/event"
)

// DefaultQueueSize is the per-session out-of-band event buffer.
const DefaultQueueSize = 64

// Queue carries out-of-band events (pauses, approval-gated starts) from
// confirmation requests to the run that owns the session.
type Queue struct {
	sessionID string
	ch        chan event.Event
	log       zerolog.Logger
}

func newQueue(sessionID string, size int, log zerolog.Logger) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{sessionID: sessionID, ch: make(chan event.Event, size), log: log}
}

// Emit enqueues e without blocking. A full queue drops the event.
func (q *Queue) Emit(e event.Event) bool {
	select {
	case q.ch <- e:
		return true
	default:
		q.log.Warn().
			Str("session_id", q.sessionID).
			Str("event", string(e.Kind)).
			Msg("Session queue full, dropping event")
		return false
	}
}

// C returns the receive side of the queue.
func (q *Queue) C() <-chan event.Event {
	return q.ch
}

// Drain discards everything currently buffered and returns the count.
func (q *Queue) Drain() int {
	n := 0
	for {
		select {
		case <-q.ch:
			n++
		default:
			return n
		}
	}
}

// Len reports the number of buffered events.
func (q *Queue) Len() int {
	return len(q.ch)
}
