// Package emitter provides a typed publish/subscribe channel. Handlers are
// registered per event name and receive every value emitted on that event
// until they are removed. Delivery is synchronous and fire-and-forget; the
// order in which handlers of one event run is unspecified.
package emitter

import "sync"

// Handler receives an emitted value.
type Handler[T any] func(T)

// Emitter fans values out to the handlers registered for an event name.
// The zero value is not usable; call New.
type Emitter[T any] struct {
	mu       sync.RWMutex
	next     uint64
	handlers map[string]map[uint64]Handler[T]
}

// New creates an empty Emitter.
func New[T any]() *Emitter[T] {
	return &Emitter[T]{handlers: make(map[string]map[uint64]Handler[T])}
}

// On registers h for event and returns a function that removes it. The
// returned function is safe to call more than once.
func (e *Emitter[T]) On(event string, h Handler[T]) (off func()) {
	e.mu.Lock()
	e.next++
	id := e.next
	if e.handlers[event] == nil {
		e.handlers[event] = make(map[uint64]Handler[T])
	}
	e.handlers[event][id] = h
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			if hs, ok := e.handlers[event]; ok {
				delete(hs, id)
				if len(hs) == 0 {
					delete(e.handlers, event)
				}
			}
		})
	}
}

// Emit delivers v to every handler registered for event and returns how many
// handlers received it. Handlers run outside the emitter's lock, so they may
// register or remove handlers themselves.
func (e *Emitter[T]) Emit(event string, v T) int {
	e.mu.RLock()
	hs := make([]Handler[T], 0, len(e.handlers[event]))
	for _, h := range e.handlers[event] {
		hs = append(hs, h)
	}
	e.mu.RUnlock()

	for _, h := range hs {
		h(v)
	}
	return len(hs)
}

// Count returns the number of handlers registered for event.
func (e *Emitter[T]) Count(event string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.handlers[event])
}
