// Package broker forwards payment lifecycle events to RabbitMQ.
package broker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"tripdesk/internal/config"
	"tripdesk/internal/events"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const publishTimeout = 5 * time.Second

// Channel is the subset of *amqp.Channel used by the publisher.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Dialer opens a channel and returns the connection that owns it.
type Dialer func(url string) (Channel, io.Closer, error)

// DialAMQP is the production Dialer.
func DialAMQP(url string) (Channel, io.Closer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	return ch, conn, nil
}

// Publisher keeps one channel open and reopens it after a failed publish.
type Publisher struct {
	url    string
	queue  string
	dial   Dialer
	logger *zerolog.Logger

	mu   sync.Mutex
	ch   Channel
	conn io.Closer
}

func NewPublisher(cfg config.BrokerConfig, dial Dialer, logger *zerolog.Logger) *Publisher {
	if dial == nil {
		dial = DialAMQP
	}
	return &Publisher{url: cfg.URL, queue: cfg.Queue, dial: dial, logger: logger}
}

func (p *Publisher) channel() (Channel, error) {
	if p.ch != nil {
		return p.ch, nil
	}
	ch, conn, err := p.dial(p.url)
	if err != nil {
		return nil, err
	}
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", p.queue, err)
	}
	p.ch, p.conn = ch, conn
	return ch, nil
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.ch, p.conn = nil, nil
}

// Publish sends one persistent JSON message to the configured queue,
// retrying once on a fresh channel.
func (p *Publisher) Publish(ctx context.Context, event *events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Type:         event.Type,
		Timestamp:    event.CreatedAt.UTC(),
		Body:         event.Payload,
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		ch, err := p.channel()
		if err != nil {
			lastErr = err
			continue
		}
		if err := ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
			lastErr = err
			p.reset()
			continue
		}
		return nil
	}
	p.logger.Warn().Err(lastErr).Str("event_type", event.Type).Str("queue", p.queue).Msg("broker publish failed")
	return fmt.Errorf("publish %s: %w", event.Type, lastErr)
}

// Handler adapts the publisher to an event bus subscription.
func (p *Publisher) Handler() events.EventHandler {
	return func(event *events.Event) error {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		return p.Publish(ctx, event)
	}
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil && p.conn == nil {
		return nil
	}
	var errs []error
	if p.ch != nil {
		errs = append(errs, p.ch.Close())
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	p.ch, p.conn = nil, nil
	return errors.Join(errs...)
}
