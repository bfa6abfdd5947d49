// Package registry maps opaque integer handles to reference-counted
// objects so a host can hold on to a call or group client without owning
// its memory. An object stays reachable until every reference, including
// the owner's, has been released.
package registry

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrUnknownHandle indicates a handle that was never issued or has been
// fully released.
var ErrUnknownHandle = errors.New("unknown handle")

// Handle is an opaque reference. Zero is never issued.
type Handle uint64

type entry[T any] struct {
	value T
	refs  int
}

// Registry is safe for concurrent use.
type Registry[T any] struct {
	name string

	mu      sync.RWMutex
	next    Handle
	entries map[Handle]*entry[T]
}

// New creates an empty registry. The name only appears in logs.
func New[T any](name string) *Registry[T] {
	return &Registry[T]{
		name:    name,
		next:    1,
		entries: make(map[Handle]*entry[T]),
	}
}

// Insert stores a value with one reference held by the caller.
func (r *Registry[T]) Insert(value T) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := r.next
	r.next++
	r.entries[h] = &entry[T]{value: value, refs: 1}
	return h
}

// Get returns the value without taking a reference.
func (r *Registry[T]) Get(h Handle) (T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[h]
	if !ok {
		var zero T
		return zero, ErrUnknownHandle
	}
	return e.value, nil
}

// Acquire takes an additional reference.
func (r *Registry[T]) Acquire(h Handle) (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[h]
	if !ok {
		var zero T
		return zero, ErrUnknownHandle
	}
	e.refs++
	return e.value, nil
}

// Release drops one reference and reports how many remain. The entry is
// removed when none do.
func (r *Registry[T]) Release(h Handle) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[h]
	if !ok {
		return 0, ErrUnknownHandle
	}
	e.refs--
	if e.refs <= 0 {
		delete(r.entries, h)
		logrus.WithFields(logrus.Fields{
			"function": "Release",
			"registry": r.name,
			"handle":   uint64(h),
		}).Debug("Handle released")
		return 0, nil
	}
	return e.refs, nil
}

// Len returns the number of live handles.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
