// Package redisstore implements session.Store over Redis, grounded on the
// teacher's RedisCache (go-enhanced-rag-service/pkg/cache/cache.go):
// same redis.ParseURL + Ping-on-connect idiom, generalized from raw bytes to
// JSON-encoded *domain.Session with TTL-based eviction instead of an
// in-process janitor.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"legal-ai-cuda/internal/apperr"
	"legal-ai-cuda/internal/domain"
)

const keyPrefix = "session:"

// Store is a Redis-backed session.Store for deployments that need sessions
// to survive a process restart or be shared across replicas.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to url (e.g. redis://localhost:6379/0) and verifies
// reachability with a Ping, following the teacher's NewRedis.
func New(url string, ttl time.Duration) (*Store, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Store{client: client, ttl: ttl}, nil
}

func (s *Store) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	b, err := s.client.Get(ctx, keyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperr.ErrSessionMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}

	var sess domain.Session
	if err := json.Unmarshal(b, &sess); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	return &sess, nil
}

func (s *Store) Save(ctx context.Context, sess *domain.Session) error {
	sess.UpdatedAt = time.Now()
	b, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+sess.SessionID, b, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis save session: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
