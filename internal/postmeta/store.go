package postmeta

import (
	"errors"
	"sync"
)

// ErrNotTracked is returned when modifying a post nobody is subscribed to.
var ErrNotTracked = errors.New("post not tracked")

type entry struct {
	meta Meta
	subs map[*Subscription]struct{}
}

// Store maps post uris to overlays. An overlay lives exactly as long as at
// least one subscription to its uri is open.
//
// Store is safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{entries: make(map[string]*entry)}
}

// Get returns the overlay for uri, or fallback when there is none.
func (s *Store) Get(uri string, fallback Meta) Meta {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[uri]; ok {
		return e.meta
	}
	return fallback
}

// Set merges u into the overlay for uri and notifies its subscribers. It
// reports false, storing nothing, when the uri has no subscribers.
func (s *Store) Set(uri string, u Update) bool {
	_, err := s.Modify(uri, func(m Meta) (Meta, error) {
		return u.Apply(m), nil
	})
	return err == nil
}

// Modify atomically replaces the overlay for uri with fn's result and notifies
// subscribers. It returns the overlay as it was before. If fn fails nothing
// changes and its error is returned.
func (s *Store) Modify(uri string, fn func(Meta) (Meta, error)) (Meta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[uri]
	if !ok {
		return Meta{}, ErrNotTracked
	}
	before := e.meta
	after, err := fn(before)
	if err != nil {
		return before, err
	}
	e.meta = after
	for sub := range e.subs {
		sub.notify(after)
	}
	return before, nil
}

// Subscribe starts tracking uri. initial seeds the overlay unless another
// subscription already did. Close the subscription when done.
func (s *Store) Subscribe(uri string, initial Meta) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[uri]
	if !ok {
		e = &entry{meta: initial, subs: make(map[*Subscription]struct{})}
		s.entries[uri] = e
	}
	sub := &Subscription{
		store:   s,
		uri:     uri,
		updates: make(chan Meta, 1),
	}
	e.subs[sub] = struct{}{}
	return sub
}

// Len returns the number of tracked posts.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) unsubscribe(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[sub.uri]
	if !ok {
		return
	}
	delete(e.subs, sub)
	close(sub.updates)
	if len(e.subs) == 0 {
		delete(s.entries, sub.uri)
	}
}

// Subscription is one consumer's handle on a post overlay.
type Subscription struct {
	store   *Store
	uri     string
	updates chan Meta
	once    sync.Once
}

// URI returns the subscribed post uri.
func (sub *Subscription) URI() string {
	return sub.uri
}

// Meta returns the current overlay.
func (sub *Subscription) Meta() Meta {
	return sub.store.Get(sub.uri, Meta{})
}

// Updates delivers the latest overlay after each change. Intermediate values
// are dropped when the consumer falls behind. The channel is closed by Close.
func (sub *Subscription) Updates() <-chan Meta {
	return sub.updates
}

// Close releases the subscription. Calling it more than once is harmless.
func (sub *Subscription) Close() {
	sub.once.Do(func() {
		sub.store.unsubscribe(sub)
	})
}

// notify is called with the store lock held.
func (sub *Subscription) notify(m Meta) {
	select {
	case sub.updates <- m:
		return
	default:
	}
	// Replace the stale pending value.
	select {
	case <-sub.updates:
	default:
	}
	select {
	case sub.updates <- m:
	default:
	}
}
