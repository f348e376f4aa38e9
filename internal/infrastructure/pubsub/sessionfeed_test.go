package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyguide-inc/skyguide/internal/domain/notice"
	"github.com/skyguide-inc/skyguide/internal/domain/session"
	"github.com/skyguide-inc/skyguide/internal/shared/logger"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func invalidatedEvent(userID, token string) session.ChangeEvent {
	now := time.Now().UTC()
	return session.ChangeEvent{
		Type:            session.ChangeTypeUpdate,
		Table:           "sessions",
		UserID:          userID,
		RecordID:        "rec-1",
		TokenHash:       session.HashToken(token),
		Status:          session.StatusInvalidated,
		InvalidatedAt:   &now,
		CommitTimestamp: now,
	}
}

func TestRedisSessionFeed_DeliversOnlyOwnUser(t *testing.T) {
	client := setupTestRedis(t)
	feed := NewRedisSessionFeed(client, logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := feed.Subscribe(ctx, "user-1")
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, feed.Publish(ctx, invalidatedEvent("user-2", "other")))
	require.NoError(t, feed.Publish(ctx, invalidatedEvent("user-1", "tok-a")))

	select {
	case ev := <-sub.Events():
		assert.Equal(t, "user-1", ev.UserID)
		assert.True(t, ev.InvalidatesToken("tok-a"))
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestRedisSessionFeed_CloseEndsEvents(t *testing.T) {
	client := setupTestRedis(t)
	feed := NewRedisSessionFeed(client, logger.Nop())

	sub, err := feed.Subscribe(context.Background(), "user-1")
	require.NoError(t, err)
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close(), "close is idempotent")

	select {
	case _, ok := <-sub.Events():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("events channel not closed")
	}
}

func TestRedisSessionFeed_ContextCancelClosesEvents(t *testing.T) {
	client := setupTestRedis(t)
	feed := NewRedisSessionFeed(client, logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := feed.Subscribe(ctx, "user-1")
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-sub.Events():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("events channel not closed after cancel")
	}
}

func TestRedisNoticeBus_SkipsOwnInstance(t *testing.T) {
	client := setupTestRedis(t)
	a := NewRedisNoticeBus(client, "instance-a", logger.Nop())
	b := NewRedisNoticeBus(client, "instance-b", logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan NoticeEnvelope, 2)
	go func() { _ = a.Run(ctx, func(env NoticeEnvelope) { received <- env }) }()

	// Wait for the subscriber to register before publishing.
	require.Eventually(t, func() bool {
		n, err := client.PubSubNumSub(ctx, noticeChannel).Result()
		return err == nil && n[noticeChannel] == 1
	}, 2*time.Second, 10*time.Millisecond)

	n := notice.New(notice.KindSessionInvalidated, "/login", time.Now().UTC())
	require.NoError(t, a.Publish(ctx, "client-1", notice.NoticeMessage(n)))
	require.NoError(t, b.Publish(ctx, "client-2", notice.NoticeMessage(n)))

	select {
	case env := <-received:
		assert.Equal(t, "client-2", env.ClientID)
		assert.Equal(t, "instance-b", env.InstanceID)
		require.NotNil(t, env.Message.Notice)
		assert.Equal(t, notice.KindSessionInvalidated, env.Message.Notice.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("notice not delivered")
	}
	assert.Len(t, received, 0)
}
