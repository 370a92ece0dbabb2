// Package memory implements session.Store as a process-wide sharded map,
// grounded on the teacher's InMemoryCache
// (go-enhanced-rag-service/pkg/cache/cache.go): a striped-mutex map with a
// background janitor, generalized from bytes/TTL to *domain.Session/
// inactivity sweep.
package memory

import (
	"context"
	"sync"
	"time"

	"legal-ai-cuda/internal/apperr"
	"legal-ai-cuda/internal/domain"
)

const shardCount = 16

// Store is a process-local, sharded-mutex session.Store. It's the default
// backend (spec §4.E) and requires no external dependency.
type Store struct {
	shards  [shardCount]shard
	ttl     time.Duration
	stopCh  chan struct{}
	stopped bool
	mu      sync.Mutex
}

type shard struct {
	mu    sync.RWMutex
	items map[string]*domain.Session
}

// New builds a Store whose sessions are evicted ttl after their last
// UpdatedAt, swept by a background janitor (mirrors the teacher's
// InMemoryCache.janitor).
func New(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	s := &Store{ttl: ttl, stopCh: make(chan struct{})}
	for i := range s.shards {
		s.shards[i].items = make(map[string]*domain.Session)
	}
	go s.janitor(time.Minute)
	return s
}

func (s *Store) shardFor(sessionID string) *shard {
	var h uint32
	for i := 0; i < len(sessionID); i++ {
		h = h*31 + uint32(sessionID[i])
	}
	return &s.shards[h%shardCount]
}

// Get returns a deep-enough copy of the session so callers can mutate
// freely before Save, matching the teacher's copy-out style for cache reads.
func (s *Store) Get(_ context.Context, sessionID string) (*domain.Session, error) {
	sh := s.shardFor(sessionID)
	sh.mu.RLock()
	sess, ok := sh.items[sessionID]
	sh.mu.RUnlock()
	if !ok {
		return nil, apperr.ErrSessionMiss
	}
	clone := *sess
	return &clone, nil
}

// Save writes sess back, stamping UpdatedAt.
func (s *Store) Save(_ context.Context, sess *domain.Session) error {
	sess.UpdatedAt = time.Now()
	sh := s.shardFor(sess.SessionID)
	clone := *sess
	sh.mu.Lock()
	sh.items[sess.SessionID] = &clone
	sh.mu.Unlock()
	return nil
}

// Close stops the janitor goroutine.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	close(s.stopCh)
	s.stopped = true
}

func (s *Store) janitor(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Store) sweep() {
	cutoff := time.Now().Add(-s.ttl)
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for id, sess := range sh.items {
			if sess.UpdatedAt.Before(cutoff) {
				delete(sh.items, id)
			}
		}
		sh.mu.Unlock()
	}
}
