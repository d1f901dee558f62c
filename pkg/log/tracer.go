package log

import (
	"time"

	"github.com/google/uuid"
)

// Tracer stamps events with a session id and timestamp before handing them
// to a Logger. A nil *Tracer discards everything.
type Tracer struct {
	logger    Logger
	sessionID string
	now       func() time.Time
}

// NewTracer returns a tracer with a fresh random session id.
func NewTracer(logger Logger) *Tracer {
	return NewTracerWithSession(logger, uuid.NewString())
}

// NewTracerWithSession returns a tracer using the given session id.
func NewTracerWithSession(logger Logger, sessionID string) *Tracer {
	return &Tracer{
		logger:    OrNoop(logger),
		sessionID: sessionID,
		now:       time.Now,
	}
}

// SessionID returns the session id stamped on every event.
func (t *Tracer) SessionID() string {
	if t == nil {
		return ""
	}
	return t.sessionID
}

// Emit stamps and logs event.
func (t *Tracer) Emit(event Event) {
	if t == nil {
		return
	}
	event.SessionID = t.sessionID
	if event.Timestamp.IsZero() {
		event.Timestamp = t.now()
	}
	t.logger.Log(event)
}
