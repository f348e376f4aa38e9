package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/skyguide-inc/skyguide/internal/application/clientstate"
)

const clientStatePrefix = "skyguide:client:"

// Hash fields. Only the fields of clientstate.Persisted have a name here.
const (
	fieldSessionToken = "session_token"
	fieldUserID       = "user_id"
	fieldUserEmail    = "user_email"
	fieldIsAdmin      = "is_admin"
)

// RedisClientStateStore persists the safe subset of a client's session state
// in one hash per client with a sliding TTL.
type RedisClientStateStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisClientStateStore(client *redis.Client, ttl time.Duration) *RedisClientStateStore {
	return &RedisClientStateStore{client: client, ttl: ttl}
}

var _ clientstate.Persister = (*RedisClientStateStore)(nil)

func (s *RedisClientStateStore) Save(ctx context.Context, clientID string, state clientstate.Persisted) error {
	key := clientStatePrefix + clientID

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		fieldSessionToken, state.SessionToken,
		fieldUserID, state.UserID,
		fieldUserEmail, state.UserEmail,
		fieldIsAdmin, strconv.FormatBool(state.IsAdmin),
	)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to persist client state: %w", err)
	}
	return nil
}

// Load returns ok=false when nothing is stored for clientID.
func (s *RedisClientStateStore) Load(ctx context.Context, clientID string) (clientstate.Persisted, bool, error) {
	key := clientStatePrefix + clientID

	values, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return clientstate.Persisted{}, false, fmt.Errorf("failed to load client state: %w", err)
	}
	if len(values) == 0 {
		return clientstate.Persisted{}, false, nil
	}

	// Sliding window: reading a client's state keeps it alive.
	if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
		return clientstate.Persisted{}, false, fmt.Errorf("failed to refresh client state ttl: %w", err)
	}

	isAdmin, _ := strconv.ParseBool(values[fieldIsAdmin])
	return clientstate.Persisted{
		SessionToken: values[fieldSessionToken],
		UserID:       values[fieldUserID],
		UserEmail:    values[fieldUserEmail],
		IsAdmin:      isAdmin,
	}, true, nil
}

func (s *RedisClientStateStore) Delete(ctx context.Context, clientID string) error {
	if err := s.client.Del(ctx, clientStatePrefix+clientID).Err(); err != nil {
		return fmt.Errorf("failed to delete client state: %w", err)
	}
	return nil
}
