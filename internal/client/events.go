package client

import (
	"sync"

	"go.uber.org/zap"
)

// EventKind discriminates events published to the host.
type EventKind string

const (
	EventAuthenticated          EventKind = "authenticated"
	EventReady                  EventKind = "ready"
	EventMessageCreate          EventKind = "message_create"
	EventMessageReceived        EventKind = "message_received"
	EventMessageRevokedEveryone EventKind = "message_revoked_everyone"
	EventMessageRemovedByMe     EventKind = "message_removed_by_me"
	EventMessageAck             EventKind = "message_ack"
	EventStateChanged           EventKind = "state_changed"
	EventDisconnected           EventKind = "disconnected"
)

// Event is the discriminated record delivered to handlers. Which payload
// fields are set depends on Kind.
type Event struct {
	Kind EventKind

	// Session is set on authenticated.
	Session *Session

	// Message is set on all message_* events.
	Message *Message

	// RevokedPrevious is the pre-revocation snapshot on
	// message_revoked_everyone. Nil when no prior change was observed for
	// that message: absent rather than guessed.
	RevokedPrevious *Message

	// Ack is set on message_ack.
	Ack Ack

	// State is set on state_changed and disconnected.
	State ConnectionState
}

// Handler receives one event. Handlers run on the dispatch goroutine, in
// notification arrival order; a panicking handler is isolated and logged.
type Handler func(Event)

type emitter struct {
	log *zap.Logger

	mu       sync.RWMutex
	handlers map[EventKind][]Handler
}

func newEmitter(log *zap.Logger) *emitter {
	return &emitter{
		log:      log,
		handlers: make(map[EventKind][]Handler),
	}
}

func (e *emitter) on(kind EventKind, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[kind] = append(e.handlers[kind], h)
}

// emit delivers the event to every registered handler. Each invocation is an
// independent dispatch: one handler failing never suppresses the next, and
// never surfaces back to the notification source.
func (e *emitter) emit(ev Event) {
	e.mu.RLock()
	handlers := make([]Handler, len(e.handlers[ev.Kind]))
	copy(handlers, e.handlers[ev.Kind])
	e.mu.RUnlock()

	for _, h := range handlers {
		e.dispatch(ev, h)
	}
}

func (e *emitter) dispatch(ev Event, h Handler) {
	defer func() {
		if rec := recover(); rec != nil {
			e.log.Error("event handler panicked",
				zap.String("event", string(ev.Kind)),
				zap.Any("panic", rec))
		}
	}()
	h(ev)
}
