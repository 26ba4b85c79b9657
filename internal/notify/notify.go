// Package notify implements the observer pattern used by the pipeline
// components.
//
// Observers register on a Set and receive a handle whose Unsubscribe method
// removes them. Delivery is synchronous and in registration order; a
// panicking observer is recovered and logged so its siblings still run.
package notify

import (
	"sync"

	"github.com/dshills/duomark/internal/logging"
)

// Observer receives values of type T.
type Observer[T any] interface {
	Notify(value T)
}

// Func adapts a plain function to the Observer interface.
type Func[T any] func(value T)

// Notify calls f(value).
func (f Func[T]) Notify(value T) {
	f(value)
}

// Subscription represents an active observer registration.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Unsubscribe removes the observer. It is safe to call more than once and
// on a nil subscription.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.cancel == nil {
		return
	}
	s.once.Do(s.cancel)
}

type entry[T any] struct {
	id       uint64
	observer Observer[T]
}

// Set is an ordered collection of observers. The zero value is ready to use.
type Set[T any] struct {
	mu        sync.Mutex
	observers []entry[T]
	nextID    uint64
	logger    *logging.Logger
}

// NewSet creates a Set that logs observer panics to logger.
func NewSet[T any](logger *logging.Logger) *Set[T] {
	return &Set[T]{logger: logger}
}

// Subscribe registers an observer and returns its handle.
func (s *Set[T]) Subscribe(observer Observer[T]) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.observers = append(s.observers, entry[T]{id: id, observer: observer})

	return &Subscription{cancel: func() { s.remove(id) }}
}

// SubscribeFunc registers a plain function.
func (s *Set[T]) SubscribeFunc(fn func(T)) *Subscription {
	return s.Subscribe(Func[T](fn))
}

func (s *Set[T]) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range s.observers {
		if e.id == id {
			s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
			return
		}
	}
}

// Len returns the number of registered observers.
func (s *Set[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.observers)
}

// Clear removes every observer.
func (s *Set[T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = nil
}

// Notify delivers value to every observer registered at the time of the
// call. It returns the number of observers that panicked.
func (s *Set[T]) Notify(value T) int {
	s.mu.Lock()
	snapshot := make([]entry[T], len(s.observers))
	copy(snapshot, s.observers)
	s.mu.Unlock()

	failed := 0
	for _, e := range snapshot {
		if !s.deliver(e.observer, value) {
			failed++
		}
	}
	return failed
}

func (s *Set[T]) deliver(observer Observer[T], value T) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logging.OrNop(s.logger).Error("observer panic: %v", r)
			ok = false
		}
	}()
	observer.Notify(value)
	return true
}
