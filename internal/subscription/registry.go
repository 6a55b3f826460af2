package subscription

import (
	"log/slog"
	"sync"
)

// Registry holds listeners of type T.
type Registry[T any] struct {
	mu        sync.Mutex
	next      uint64
	listeners map[uint64]T
	order     []uint64
	logger    *slog.Logger
}

// NewRegistry creates an empty registry. Panics raised by listeners are
// logged on logger.
func NewRegistry[T any](logger *slog.Logger) *Registry[T] {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry[T]{
		listeners: make(map[uint64]T),
		logger:    logger,
	}
}

// Add registers l and returns a function that removes it. The returned
// function is idempotent.
func (r *Registry[T]) Add(l T) (remove func()) {
	r.mu.Lock()
	r.next++
	id := r.next
	r.listeners[id] = l
	r.order = append(r.order, id)
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(id) })
	}
}

func (r *Registry[T]) remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.listeners[id]; !ok {
		return
	}
	delete(r.listeners, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of registered listeners.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// Snapshot returns the listeners in registration order.
func (r *Registry[T]) Snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]T, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.listeners[id])
	}
	return out
}

// Clear removes every listener.
func (r *Registry[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.listeners)
	r.order = nil
}

// Notify calls fn for every listener of the current snapshot. The lock is not
// held while fn runs.
func (r *Registry[T]) Notify(fn func(T)) {
	for _, l := range r.Snapshot() {
		r.call(fn, l)
	}
}

func (r *Registry[T]) call(fn func(T), l T) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("listener panicked", "panic", p)
		}
	}()
	fn(l)
}
