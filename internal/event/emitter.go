// Package event provides a synchronous fan-out primitive for domain
// event listeners.
package event

import "sync"

// Emitter holds an ordered collection of listeners of type L and fans
// events out to them synchronously.
//
// Fire runs on the caller's goroutine, in registration order, and does
// not isolate listeners from each other: a panic in one listener
// propagates to the caller and later listeners do not run. Listeners
// may remove themselves (or others) while a Fire is in progress.
type Emitter[L any] struct {
	mu        sync.Mutex
	listeners []L
}

func New[L any]() *Emitter[L] {
	return &Emitter[L]{}
}

// Add registers l at the end of the invocation order.
func (e *Emitter[L]) Add(l L) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, l)
}

// Remove unregisters the first listener equal to l. Listener types must
// be comparable at runtime (pointers and interfaces over pointers are).
func (e *Emitter[L]) Remove(l L) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, cur := range e.listeners {
		if any(cur) == any(l) {
			e.listeners = append(e.listeners[:i], e.listeners[i+1:]...)
			return
		}
	}
}

// RemoveAll drops every registered listener. Safe to call from a
// listener during Fire; the in-flight fan-out still completes over its
// own snapshot.
func (e *Emitter[L]) RemoveAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = nil
}

// Len reports the number of registered listeners.
func (e *Emitter[L]) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners)
}

// Fire invokes f for every currently registered listener. The listener
// set is snapshotted up front, so mutation during iteration never
// affects the in-flight fan-out.
func (e *Emitter[L]) Fire(f func(L)) {
	e.mu.Lock()
	snapshot := make([]L, len(e.listeners))
	copy(snapshot, e.listeners)
	e.mu.Unlock()

	for _, l := range snapshot {
		f(l)
	}
}
