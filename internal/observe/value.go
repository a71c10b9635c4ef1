// Package observe provides a small observable value with explicit subscriptions.
package observe

import "sync"

// Value holds a value of type T and notifies subscribers when it changes.
// Subscribers run synchronously on the goroutine that called Set, in the
// order they subscribed, after the internal lock has been released.
type Value[T any] struct {
	mu       sync.RWMutex
	current  T
	equal    func(a, b T) bool
	handlers map[uint64]func(T)
	order    []uint64
	nextID   uint64
}

// NewValue creates a Value. equal decides whether Set is a change; a nil equal
// treats every Set as a change.
func NewValue[T any](initial T, equal func(a, b T) bool) *Value[T] {
	return &Value[T]{
		current:  initial,
		equal:    equal,
		handlers: make(map[uint64]func(T)),
	}
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.current
}

// Set stores val and notifies subscribers. Returns false if val equals the
// current value and nothing was notified.
func (v *Value[T]) Set(val T) bool {
	v.mu.Lock()
	if v.equal != nil && v.equal(v.current, val) {
		v.mu.Unlock()
		return false
	}
	v.current = val
	handlers := make([]func(T), 0, len(v.order))
	for _, id := range v.order {
		handlers = append(handlers, v.handlers[id])
	}
	v.mu.Unlock()

	for _, h := range handlers {
		h(val)
	}
	return true
}

// Subscribe registers fn and returns a function that removes it. The returned
// function may be called any number of times.
func (v *Value[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	v.mu.Lock()
	id := v.nextID
	v.nextID++
	v.handlers[id] = fn
	v.order = append(v.order, id)
	v.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			delete(v.handlers, id)
			for i, oid := range v.order {
				if oid == id {
					v.order = append(v.order[:i:i], v.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Equal is an equality func for comparable types.
func Equal[T comparable](a, b T) bool { return a == b }
