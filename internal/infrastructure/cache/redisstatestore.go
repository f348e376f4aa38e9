package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/skyguide-inc/skyguide/internal/shared/biztime"
)

// OAuth flow intents.
const (
	IntentSignIn = "signin"
	IntentReauth = "reauth"
)

// StateInfo is what the OAuth callback needs to finish the flow it started.
type StateInfo struct {
	CodeVerifier string    `json:"code_verifier"`
	ClientID     string    `json:"client_id"`
	Intent       string    `json:"intent"`
	CreatedAt    time.Time `json:"created_at"`
}

// RedisStateStore keeps OAuth state values for one-time use.
type RedisStateStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStateStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStateStore {
	return &RedisStateStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStateStore) Set(ctx context.Context, state string, info StateInfo) error {
	if state == "" {
		return errors.New("state cannot be empty")
	}
	if info.CodeVerifier == "" {
		return errors.New("code_verifier cannot be empty")
	}
	if info.CreatedAt.IsZero() {
		info.CreatedAt = biztime.NowUTC()
	}

	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal state info: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+state, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store state in redis: %w", err)
	}
	return nil
}

// VerifyAndGet consumes state with GETDEL so a callback cannot be replayed.
func (s *RedisStateStore) VerifyAndGet(ctx context.Context, state string) (*StateInfo, error) {
	if state == "" {
		return nil, errors.New("state cannot be empty")
	}

	data, err := s.client.GetDel(ctx, s.prefix+state).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errors.New("state not found or expired")
		}
		return nil, fmt.Errorf("failed to retrieve state from redis: %w", err)
	}

	var info StateInfo
	if err := json.Unmarshal([]byte(data), &info); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state info: %w", err)
	}
	return &info, nil
}
