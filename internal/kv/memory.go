package kv

import (
	"context"
	"strconv"
	"sync"
	"time"
)

const defaultSweepInterval = time.Minute

// MemoryStore implements Store in process memory. Contents do not survive a restart
// and are not shared between instances.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

type memoryEntry struct {
	value     string
	hash      map[string]string
	expiresAt time.Time
}

type MemoryOption func(*MemoryStore)

// overrides the clock used for expiry, for tests
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// creates a new in-memory store and starts its expiry sweep
func NewMemoryStore(sweepInterval time.Duration, opts ...MemoryOption) *MemoryStore {
	if sweepInterval <= 0 {
		sweepInterval = defaultSweepInterval
	}

	store := &MemoryStore{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
		done:    make(chan struct{}),
	}

	for _, opt := range opts {
		opt(store)
	}

	go store.sweepLoop(sweepInterval)

	return store
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key)
	if e == nil {
		return "", ErrNotFound
	}

	if e.hash != nil {
		return "", ErrWrongType
	}

	return e.value, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := &memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}

	s.entries[key] = e
	return nil
}

func (s *MemoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		delete(s.entries, key)
	}

	return nil
}

func (s *MemoryStore) IncrBy(_ context.Context, key string, n int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key)
	if e == nil {
		e = &memoryEntry{value: "0"}
		s.entries[key] = e
	}

	if e.hash != nil {
		return 0, ErrWrongType
	}

	current, err := strconv.ParseInt(e.value, 10, 64)
	if err != nil {
		return 0, ErrNotInteger
	}

	current += n
	e.value = strconv.FormatInt(current, 10)

	return current, nil
}

func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key)
	if e == nil {
		return nil
	}

	if ttl <= 0 {
		delete(s.entries, key)
		return nil
	}

	e.expiresAt = s.now().Add(ttl)
	return nil
}

func (s *MemoryStore) HSet(_ context.Context, key string, values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.liveHash(key, true)
	if err != nil {
		return err
	}

	for field, value := range values {
		e.hash[field] = value
	}

	return nil
}

func (s *MemoryStore) HGet(_ context.Context, key, field string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.liveHash(key, false)
	if err != nil {
		return "", err
	}

	if e == nil {
		return "", ErrNotFound
	}

	value, ok := e.hash[field]
	if !ok {
		return "", ErrNotFound
	}

	return value, nil
}

func (s *MemoryStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.liveHash(key, false)
	if err != nil {
		return nil, err
	}

	out := make(map[string]string)
	if e == nil {
		return out, nil
	}

	for field, value := range e.hash {
		out[field] = value
	}

	return out, nil
}

func (s *MemoryStore) HIncrBy(_ context.Context, key, field string, n int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.liveHash(key, true)
	if err != nil {
		return 0, err
	}

	current := int64(0)
	if raw, ok := e.hash[field]; ok {
		current, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, ErrNotInteger
		}
	}

	current += n
	e.hash[field] = strconv.FormatInt(current, 10)

	return current, nil
}

// stops the sweep goroutine
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	close(s.done)
	return nil
}

// number of keys currently held, expired or not
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}

// returns the entry for key, dropping it if it has expired. caller holds mu.
func (s *MemoryStore) live(key string) *memoryEntry {
	e, ok := s.entries[key]
	if !ok {
		return nil
	}

	if s.expired(e, s.now()) {
		delete(s.entries, key)
		return nil
	}

	return e
}

// returns the hash entry for key, creating it when create is set. caller holds mu.
func (s *MemoryStore) liveHash(key string, create bool) (*memoryEntry, error) {
	e := s.live(key)
	if e == nil {
		if !create {
			return nil, nil
		}

		e = &memoryEntry{hash: make(map[string]string)}
		s.entries[key] = e
	}

	if e.hash == nil {
		return nil, ErrWrongType
	}

	return e, nil
}

func (s *MemoryStore) expired(e *memoryEntry, now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

func (s *MemoryStore) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// drops every expired key, returning how many were removed
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0

	for key, e := range s.entries {
		if s.expired(e, now) {
			delete(s.entries, key)
			removed++
		}
	}

	return removed
}
