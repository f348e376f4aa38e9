package notice

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/skyguide-inc/skyguide/internal/domain/notice"
	"github.com/skyguide-inc/skyguide/internal/shared/biztime"
	"github.com/skyguide-inc/skyguide/internal/shared/logger"
)

// pushEvent is the body consumed by the external push service.
type pushEvent struct {
	ClientID string      `json:"client_id"`
	UserID   string      `json:"user_id,omitempty"`
	Kind     notice.Kind `json:"kind"`
	Message  string      `json:"message"`
	Redirect string      `json:"redirect,omitempty"`
	Forced   bool        `json:"forced"`
	At       time.Time   `json:"at"`
}

// AMQPPublisher publishes notices to a durable topic exchange with routing
// key "notice.<kind>". The connection is opened lazily and reopened after
// any publish failure.
type AMQPPublisher struct {
	url      string
	exchange string
	logger   logger.Interface

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewAMQPPublisher(url, exchange string, log logger.Interface) *AMQPPublisher {
	return &AMQPPublisher{url: url, exchange: exchange, logger: log.Named("notice.amqp")}
}

func RoutingKey(kind notice.Kind) string {
	return "notice." + string(kind)
}

func buildPublishing(target notice.Target, n notice.Notice) (amqp.Publishing, error) {
	body, err := json.Marshal(pushEvent{
		ClientID: target.ClientID,
		UserID:   target.UserID,
		Kind:     n.Kind,
		Message:  n.Message,
		Redirect: n.Redirect,
		Forced:   n.Forced(),
		At:       n.At.UTC(),
	})
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal push event: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    biztime.NowUTC(),
		Body:         body,
	}, nil
}

func (p *AMQPPublisher) Notify(ctx context.Context, target notice.Target, n notice.Notice) error {
	pub, err := buildPublishing(target, n)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channelLocked()
	if err != nil {
		return err
	}
	if err := ch.PublishWithContext(ctx, p.exchange, RoutingKey(n.Kind), false, false, pub); err != nil {
		p.resetLocked()
		return fmt.Errorf("failed to publish notice: %w", err)
	}
	return nil
}

func (p *AMQPPublisher) channelLocked() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.resetLocked()

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", p.exchange, err)
	}

	p.conn, p.ch = conn, ch
	p.logger.Infow("amqp channel opened", "exchange", p.exchange)
	return ch, nil
}

func (p *AMQPPublisher) resetLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
	return nil
}
