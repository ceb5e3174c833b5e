package oauth

import (
	"context"
	"sync"

	"github.com/jeremyhahn/go-oauthsession/pkg/session"
)

// emitter delivers client events to handlers scoped by a context.
type emitter struct {
	mu       sync.Mutex
	next     uint64
	handlers map[session.EventName]map[uint64]func(session.Event)
}

func newEmitter() *emitter {
	return &emitter{handlers: make(map[session.EventName]map[uint64]func(session.Event))}
}

// subscribe registers handler until ctx is done.
func (e *emitter) subscribe(ctx context.Context, name session.EventName, handler func(session.Event)) {
	if ctx.Err() != nil {
		return
	}

	e.mu.Lock()
	id := e.next
	e.next++
	if e.handlers[name] == nil {
		e.handlers[name] = make(map[uint64]func(session.Event))
	}
	e.handlers[name][id] = handler
	e.mu.Unlock()

	context.AfterFunc(ctx, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.handlers[name], id)
	})
}

// emit invokes the current handlers of name synchronously.
func (e *emitter) emit(name session.EventName, ev session.Event) {
	e.mu.Lock()
	handlers := make([]func(session.Event), 0, len(e.handlers[name]))
	for _, h := range e.handlers[name] {
		handlers = append(handlers, h)
	}
	e.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

// count returns the number of live handlers of name.
func (e *emitter) count(name session.EventName) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handlers[name])
}
