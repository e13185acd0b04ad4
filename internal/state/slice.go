// Package state is the application's explicit state container. Each logical
// slice has exactly one writer, claimed at wiring time, and any number of
// readers that either load the latest value or subscribe to updates.
package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alanyoungcy/marginterm/internal/domain"
)

// Update is delivered to subscribers whenever a slice changes.
type Update[T any] struct {
	Slice   string
	Version uint64
	Value   T
	At      time.Time
}

// Slice holds one atomically replaced value.
type Slice[T any] struct {
	name  string
	equal func(a, b T) bool

	mu        sync.RWMutex
	value     T
	loaded    bool
	version   uint64
	updatedAt time.Time
	owner     string
	subs      map[int]chan Update[T]
	nextSub   int
}

// NewSlice creates an empty slice. equal, when non-nil, suppresses updates
// whose value matches the current one.
func NewSlice[T any](name string, equal func(a, b T) bool) *Slice[T] {
	return &Slice[T]{name: name, equal: equal, subs: make(map[int]chan Update[T])}
}

// Name returns the slice name.
func (s *Slice[T]) Name() string { return s.name }

// Load returns the current value and whether anything has been published yet.
// Not-yet-loaded is a valid state, not an error.
func (s *Slice[T]) Load() (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value, s.loaded
}

// Version returns the number of accepted updates.
func (s *Slice[T]) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// UpdatedAt returns the time of the last accepted update.
func (s *Slice[T]) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

// Claim hands out the slice's only writer.
func (s *Slice[T]) Claim(owner string) (*Writer[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owner != "" {
		return nil, fmt.Errorf("state: claim %s for %s: %w (owner %s)", s.name, owner, domain.ErrSliceOwned, s.owner)
	}
	s.owner = owner
	return &Writer[T]{slice: s, owner: owner}, nil
}

// MustClaim is Claim for wiring code where a second writer is a programming
// error.
func (s *Slice[T]) MustClaim(owner string) *Writer[T] {
	w, err := s.Claim(owner)
	if err != nil {
		panic(err)
	}
	return w
}

// Subscribe returns a channel receiving the latest update. Slow readers only
// ever see the newest value. The channel closes when ctx is done.
func (s *Slice[T]) Subscribe(ctx context.Context) <-chan Update[T] {
	ch := make(chan Update[T], 1)
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()
	return ch
}

func (s *Slice[T]) publish(v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded && s.equal != nil && s.equal(s.value, v) {
		return false
	}
	s.value = v
	s.loaded = true
	s.version++
	s.updatedAt = time.Now()

	u := Update[T]{Slice: s.name, Version: s.version, Value: v, At: s.updatedAt}
	for _, ch := range s.subs {
		select {
		case ch <- u:
		default:
			// Drop the stale pending update in favour of this one.
			select {
			case <-ch:
			default:
			}
			ch <- u
		}
	}
	return true
}

func (s *Slice[T]) release(owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owner == owner {
		s.owner = ""
	}
}

// Writer is the single publisher of a slice.
type Writer[T any] struct {
	slice *Slice[T]
	owner string
}

// Publish replaces the slice value wholesale. It reports whether subscribers
// were notified; an unchanged value is ignored.
func (w *Writer[T]) Publish(v T) bool { return w.slice.publish(v) }

// Current returns the slice's value as last published.
func (w *Writer[T]) Current() (T, bool) { return w.slice.Load() }

// Release gives up ownership so another writer may claim the slice.
func (w *Writer[T]) Release() { w.slice.release(w.owner) }
