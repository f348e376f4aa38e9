package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/skyguide-inc/skyguide/internal/domain/notice"
	"github.com/skyguide-inc/skyguide/internal/shared/logger"
)

const noticeChannel = "skyguide:notices"

// NoticeEnvelope routes a message to whichever instance holds the client's
// WebSocket.
type NoticeEnvelope struct {
	ClientID   string         `json:"client_id"`
	Message    notice.Message `json:"message"`
	InstanceID string         `json:"instance_id"`
}

// RedisNoticeBus fans client messages out across server instances.
type RedisNoticeBus struct {
	client     *redis.Client
	instanceID string
	logger     logger.Interface
}

func NewRedisNoticeBus(client *redis.Client, instanceID string, log logger.Interface) *RedisNoticeBus {
	return &RedisNoticeBus{client: client, instanceID: instanceID, logger: log.Named("notice.bus")}
}

func (b *RedisNoticeBus) InstanceID() string {
	return b.instanceID
}

func (b *RedisNoticeBus) Publish(ctx context.Context, clientID string, msg notice.Message) error {
	data, err := json.Marshal(NoticeEnvelope{ClientID: clientID, Message: msg, InstanceID: b.instanceID})
	if err != nil {
		return fmt.Errorf("failed to marshal notice: %w", err)
	}
	if err := b.client.Publish(ctx, noticeChannel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish notice: %w", err)
	}
	return nil
}

// Run delivers envelopes published by other instances until ctx ends,
// reconnecting with exponential backoff.
func (b *RedisNoticeBus) Run(ctx context.Context, handler func(NoticeEnvelope)) error {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		err := b.subscribe(ctx, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		b.logger.Warnw("notice subscription disconnected, reconnecting",
			"error", err,
			"backoff", backoff,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func (b *RedisNoticeBus) subscribe(ctx context.Context, handler func(NoticeEnvelope)) error {
	ps := b.client.Subscribe(ctx, noticeChannel)
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", noticeChannel, err)
	}

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("notice channel closed")
			}

			var env NoticeEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.logger.Warnw("failed to unmarshal notice", "error", err)
				continue
			}
			if env.InstanceID == b.instanceID {
				continue
			}
			handler(env)
		}
	}
}
