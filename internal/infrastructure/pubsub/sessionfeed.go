package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/skyguide-inc/skyguide/internal/domain/session"
	"github.com/skyguide-inc/skyguide/internal/shared/logger"
)

const sessionChannelPrefix = "skyguide:sessions:user:"

// SessionChannel is the Pub/Sub channel carrying one user's session changes.
func SessionChannel(userID string) string {
	return sessionChannelPrefix + userID
}

// RedisSessionFeed is the session change feed over Redis Pub/Sub. Delivery is
// at-most-once; monitors fall back to periodic validation for lost events.
type RedisSessionFeed struct {
	client *redis.Client
	logger logger.Interface
}

func NewRedisSessionFeed(client *redis.Client, log logger.Interface) *RedisSessionFeed {
	return &RedisSessionFeed{client: client, logger: log.Named("session.feed")}
}

var _ session.ChangeFeed = (*RedisSessionFeed)(nil)

func (f *RedisSessionFeed) Publish(ctx context.Context, event session.ChangeEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal session change: %w", err)
	}

	if err := f.client.Publish(ctx, SessionChannel(event.UserID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish session change: %w", err)
	}

	f.logger.Debugw("session change published",
		"user_id", event.UserID,
		"record_id", event.RecordID,
		"status", event.Status,
	)
	return nil
}

// Subscribe waits for Redis to confirm the subscription before returning, so
// no event published after Subscribe returns can be missed.
func (f *RedisSessionFeed) Subscribe(ctx context.Context, userID string) (session.Subscription, error) {
	ps := f.client.Subscribe(ctx, SessionChannel(userID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to session changes: %w", err)
	}

	sub := &redisSubscription{
		ps:     ps,
		events: make(chan session.ChangeEvent, 8),
		done:   make(chan struct{}),
	}
	go sub.pump(ctx, f.logger.With("user_id", userID))
	return sub, nil
}

type redisSubscription struct {
	ps        *redis.PubSub
	events    chan session.ChangeEvent
	done      chan struct{}
	closeOnce sync.Once
}

func (s *redisSubscription) Events() <-chan session.ChangeEvent {
	return s.events
}

func (s *redisSubscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}

func (s *redisSubscription) pump(ctx context.Context, log logger.Interface) {
	defer close(s.events)
	ch := s.ps.Channel()

	for {
		select {
		case <-ctx.Done():
			_ = s.Close()
			return
		case <-s.done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event session.ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Warnw("failed to unmarshal session change", "error", err)
				continue
			}

			select {
			case s.events <- event:
			case <-ctx.Done():
				_ = s.Close()
				return
			case <-s.done:
				return
			}
		}
	}
}
