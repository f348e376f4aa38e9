package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlertDeduplicator_Cooldown(t *testing.T) {
	mr, client := setupTestRedis(t)
	d := NewAlertDeduplicator(client)
	ctx := context.Background()

	ok, err := d.TryAcquire(ctx, "new_sign_in", "user-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.TryAcquire(ctx, "new_sign_in", "user-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second alert within the cooldown is suppressed")

	ok, err = d.TryAcquire(ctx, "new_sign_in", "user-2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "cooldown is per user")

	remaining, err := d.RemainingCooldown(ctx, "new_sign_in", "user-1")
	require.NoError(t, err)
	assert.Greater(t, remaining, time.Duration(0))

	mr.FastForward(2 * time.Minute)
	ok, err = d.TryAcquire(ctx, "new_sign_in", "user-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAlertDeduplicator_Clear(t *testing.T) {
	_, client := setupTestRedis(t)
	d := NewAlertDeduplicator(client)
	ctx := context.Background()

	_, err := d.TryAcquire(ctx, "session_expired", "user-1", time.Hour)
	require.NoError(t, err)
	require.NoError(t, d.Clear(ctx, "session_expired", "user-1"))

	remaining, err := d.RemainingCooldown(ctx, "session_expired", "user-1")
	require.NoError(t, err)
	assert.Zero(t, remaining)

	ok, err := d.TryAcquire(ctx, "session_expired", "user-1", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
}
