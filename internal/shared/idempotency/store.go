// Package idempotency replays stored responses for repeated POST requests
// that carry the same Idempotency-Key.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/redis/go-redis/v9"
)

// Response is a completed response kept for replay
type Response struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// Store records claims on idempotency keys and their final responses
type Store interface {
	// Claim reserves key. It returns the stored response when key already
	// completed, ErrInFlight while another request holds it, and
	// (nil, nil) when the caller now owns the key.
	Claim(ctx context.Context, key string, ttl time.Duration) (*Response, error)

	// Complete stores the response for a claimed key
	Complete(ctx context.Context, key string, resp Response, ttl time.Duration) error

	// Release drops a claim so the request may be retried
	Release(ctx context.Context, key string) error
}

// ErrInFlight is returned by Claim while the key's first request runs
var ErrInFlight = errors.New("request with this idempotency key is in progress")

type entry struct {
	done bool
	resp Response
}

// MemoryStore keeps keys in a process-local TTL cache
type MemoryStore struct {
	mu    sync.Mutex
	cache *ttlcache.Cache[string, entry]
}

// NewMemoryStore creates a memory store and starts its expiry loop
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, entry](ttl),
		ttlcache.WithDisableTouchOnHit[string, entry](),
	)
	go cache.Start()
	return &MemoryStore{cache: cache}
}

func (s *MemoryStore) Claim(ctx context.Context, key string, ttl time.Duration) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item := s.cache.Get(key); item != nil {
		e := item.Value()
		if !e.done {
			return nil, ErrInFlight
		}
		resp := e.resp
		return &resp, nil
	}

	s.cache.Set(key, entry{}, ttl)
	return nil, nil
}

func (s *MemoryStore) Complete(ctx context.Context, key string, resp Response, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Set(key, entry{done: true, resp: resp}, ttl)
	return nil
}

func (s *MemoryStore) Release(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Delete(key)
	return nil
}

// Close stops the expiry loop
func (s *MemoryStore) Close() {
	s.cache.Stop()
}

// RedisStore shares keys between instances through Redis
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a Redis-backed store
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, prefix: "casedesk:idem"}
}

const pendingMarker = "pending"

func (s *RedisStore) key(k string) string {
	return s.prefix + ":" + k
}

func (s *RedisStore) Claim(ctx context.Context, key string, ttl time.Duration) (*Response, error) {
	claimed, err := s.client.SetNX(ctx, s.key(key), pendingMarker, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to claim idempotency key: %w", err)
	}
	if claimed {
		return nil, nil
	}

	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err == redis.Nil {
		// Expired between SETNX and GET; treat as still held.
		return nil, ErrInFlight
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read idempotency key: %w", err)
	}
	return decodeResponse(data)
}

func (s *RedisStore) Complete(ctx context.Context, key string, resp Response, ttl time.Duration) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	return s.client.Set(ctx, s.key(key), data, ttl).Err()
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

func decodeResponse(data []byte) (*Response, error) {
	if string(data) == pendingMarker {
		return nil, ErrInFlight
	}
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode stored response: %w", err)
	}
	return &resp, nil
}
