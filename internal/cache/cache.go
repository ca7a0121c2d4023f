// Package cache provides a small in-process LRU cache with per-entry TTL.
// It fronts the history queries served by the HTTP API so repeated chart
// requests do not hit SQLite between polls.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Store is an LRU cache with TTL and size-based eviction.
type Store[T any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	items   map[string]*list.Element
	order   *list.List // front = most recently used
}

type entry[T any] struct {
	key       string
	value     T
	expiresAt time.Time
}

func New[T any](maxSize int, ttl time.Duration) *Store[T] {
	return &Store[T]{
		maxSize: maxSize,
		ttl:     ttl,
		items:   make(map[string]*list.Element),
		order:   list.New(),
	}
}

// Get returns the cached value for key if present and not expired.
func (s *Store[T]) Get(key string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	elem, ok := s.items[key]
	if !ok {
		return zero, false
	}

	e := elem.Value.(*entry[T])
	if time.Now().After(e.expiresAt) {
		s.remove(elem)
		return zero, false
	}

	s.order.MoveToFront(elem)
	return e.value, true
}

// Set stores value under key, evicting the least recently used entry when
// the cache is at capacity.
func (s *Store[T]) Set(key string, value T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := &entry[T]{key: key, value: value, expiresAt: time.Now().Add(s.ttl)}

	if elem, ok := s.items[key]; ok {
		elem.Value = e
		s.order.MoveToFront(elem)
		return
	}

	s.items[key] = s.order.PushFront(e)
	if s.order.Len() > s.maxSize {
		if oldest := s.order.Back(); oldest != nil {
			s.remove(oldest)
		}
	}
}

// Delete removes key from the cache if present.
func (s *Store[T]) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.items[key]; ok {
		s.remove(elem)
	}
}

// Invalidate drops every entry. Called when a fresh snapshot lands and all
// cached history responses become stale.
func (s *Store[T]) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[string]*list.Element)
	s.order.Init()
}

// Size returns the current number of cached entries.
func (s *Store[T]) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// sweep removes expired entries, returning how many were dropped.
func (s *Store[T]) sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var stale []*list.Element
	for elem := s.order.Front(); elem != nil; elem = elem.Next() {
		if now.After(elem.Value.(*entry[T]).expiresAt) {
			stale = append(stale, elem)
		}
	}
	for _, elem := range stale {
		s.remove(elem)
	}
	return len(stale)
}

// remove expects s.mu to be held.
func (s *Store[T]) remove(elem *list.Element) {
	delete(s.items, elem.Value.(*entry[T]).key)
	s.order.Remove(elem)
}

// Janitor periodically sweeps expired entries out of registered caches.
type Janitor struct {
	mu     sync.Mutex
	sweeps []func() int
}

// Sweeper is the subset of Store the janitor needs.
type Sweeper interface {
	sweepable() func() int
}

func (s *Store[T]) sweepable() func() int { return s.sweep }

func NewJanitor() *Janitor { return &Janitor{} }

// Register adds a cache to the sweep rotation.
func (j *Janitor) Register(s Sweeper) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.sweeps = append(j.sweeps, s.sweepable())
}

// Run sweeps every interval until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.mu.Lock()
			sweeps := j.sweeps
			j.mu.Unlock()
			for _, sweep := range sweeps {
				sweep()
			}
		case <-ctx.Done():
			return
		}
	}
}
