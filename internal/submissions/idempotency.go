package submissions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ngo-platform/backend/internal/apperr"
)

// Idempotency headers. The key is optional and chosen by the client.
const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderReplayed       = "Idempotent-Replayed"
)

const (
	statePending = "pending"
	stateDone    = "done"
)

// Replay is a stored response returned for a repeated idempotency key.
type Replay struct {
	State  string          `json:"state"`
	Status int             `json:"status,omitempty"`
	Body   json.RawMessage `json:"body,omitempty"`
}

// Idempotency reserves client idempotency keys.
type Idempotency interface {
	// Begin reserves key. It returns the stored response when the key already completed, and a
	// Conflict error while another request holds it.
	Begin(ctx context.Context, scope, key string) (*Replay, error)
	Complete(ctx context.Context, scope, key string, status int, body []byte) error
	Release(ctx context.Context, scope, key string) error
}

// RedisIdempotency keeps idempotency keys in Redis with a TTL.
type RedisIdempotency struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisIdempotency creates a Redis-backed idempotency store.
func NewRedisIdempotency(client *redis.Client, ttl time.Duration) *RedisIdempotency {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisIdempotency{client: client, ttl: ttl}
}

func idempotencyKey(scope, key string) string {
	return "idempotency:" + scope + ":" + key
}

// Begin implements Idempotency.
func (r *RedisIdempotency) Begin(ctx context.Context, scope, key string) (*Replay, error) {
	k := idempotencyKey(scope, key)
	pending, _ := json.Marshal(Replay{State: statePending})
	ok, err := r.client.SetNX(ctx, k, pending, r.ttl).Result()
	if err != nil {
		return nil, apperr.StorageFailure("idempotency store unavailable", err)
	}
	if ok {
		return nil, nil
	}
	raw, err := r.client.Get(ctx, k).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// expired between SETNX and GET; the caller retries
			return nil, apperr.Conflict("request with this Idempotency-Key is in progress")
		}
		return nil, apperr.StorageFailure("idempotency store unavailable", err)
	}
	var rep Replay
	if err := json.Unmarshal(raw, &rep); err != nil {
		return nil, fmt.Errorf("decode idempotency record: %w", err)
	}
	if rep.State != stateDone {
		return nil, apperr.Conflict("request with this Idempotency-Key is in progress")
	}
	return &rep, nil
}

// Complete implements Idempotency.
func (r *RedisIdempotency) Complete(ctx context.Context, scope, key string, status int, body []byte) error {
	raw, err := json.Marshal(Replay{State: stateDone, Status: status, Body: body})
	if err != nil {
		return fmt.Errorf("encode idempotency record: %w", err)
	}
	return r.client.Set(ctx, idempotencyKey(scope, key), raw, r.ttl).Err()
}

// Release implements Idempotency.
func (r *RedisIdempotency) Release(ctx context.Context, scope, key string) error {
	return r.client.Del(ctx, idempotencyKey(scope, key)).Err()
}
