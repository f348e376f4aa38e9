package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	alertKeyPrefix = "skyguide:alert:"
	// DefaultAlertCooldown is how long one user waits between two alerts of
	// the same kind.
	DefaultAlertCooldown = 15 * time.Minute
)

// AlertDeduplicator holds a per-user, per-kind cooldown in Redis so alerts
// sent by several instances are not repeated.
type AlertDeduplicator struct {
	client *redis.Client
}

func NewAlertDeduplicator(client *redis.Client) *AlertDeduplicator {
	return &AlertDeduplicator{client: client}
}

// Format: skyguide:alert:{kind}:{user_id}
func (d *AlertDeduplicator) buildKey(kind, userID string) string {
	return fmt.Sprintf("%s%s:%s", alertKeyPrefix, kind, userID)
}

// TryAcquire starts the cooldown and reports whether the caller should send.
// SetNX keeps concurrent instances from both winning.
func (d *AlertDeduplicator) TryAcquire(ctx context.Context, kind, userID string, ttl time.Duration) (bool, error) {
	acquired, err := d.client.SetNX(ctx, d.buildKey(kind, userID), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire alert lock: %w", err)
	}
	return acquired, nil
}

// Clear ends the cooldown early.
func (d *AlertDeduplicator) Clear(ctx context.Context, kind, userID string) error {
	if err := d.client.Del(ctx, d.buildKey(kind, userID)).Err(); err != nil {
		return fmt.Errorf("failed to clear alert: %w", err)
	}
	return nil
}

// RemainingCooldown returns 0 when no cooldown is running.
func (d *AlertDeduplicator) RemainingCooldown(ctx context.Context, kind, userID string) (time.Duration, error) {
	ttl, err := d.client.TTL(ctx, d.buildKey(kind, userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get alert TTL: %w", err)
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}
