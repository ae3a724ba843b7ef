package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Evan5764/zoopla-co-uk-scraper/internal/model"
)

var _ Publisher = (*AMQPPublisher)(nil)

// DefaultExchange is the topic exchange events are published to.
const DefaultExchange = "zoopla.listings"

// channel is the subset of *amqp.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes change events to a RabbitMQ topic exchange.
type AMQPPublisher struct {
	conn     *amqp.Connection
	ch       channel
	exchange string
	logger   *slog.Logger
}

// Option configures an AMQPPublisher.
type Option func(*AMQPPublisher)

// WithExchange sets the exchange name.
func WithExchange(name string) Option {
	return func(p *AMQPPublisher) {
		if name != "" {
			p.exchange = name
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *AMQPPublisher) {
		p.logger = logger
	}
}

// DialAMQP connects to the broker at url and declares a durable topic
// exchange.
func DialAMQP(url string, opts ...Option) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	p := newAMQPPublisher(ch, opts...)
	p.conn = conn

	err = ch.ExchangeDeclare(
		p.exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %q: %w", p.exchange, err)
	}
	return p, nil
}

func newAMQPPublisher(ch channel, opts ...Option) *AMQPPublisher {
	p := &AMQPPublisher{
		ch:       ch,
		exchange: DefaultExchange,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish sends one message per changed listing, then the run summary.
func (p *AMQPPublisher) Publish(ctx context.Context, cs *model.ChangeSet, summary *model.RunSummary) error {
	events := Events(cs)
	for _, e := range events {
		if err := p.send(ctx, e.RoutingKey(), e, e.At); err != nil {
			return fmt.Errorf("publish %s event for %s: %w", e.Type, e.Key, err)
		}
	}

	if summary != nil {
		key := "run." + string(summary.Status)
		if err := p.send(ctx, key, summary, summary.FinishedAt); err != nil {
			return fmt.Errorf("publish run summary: %w", err)
		}
	}

	p.logger.Info("change set published", "exchange", p.exchange, "events", len(events))
	return nil
}

func (p *AMQPPublisher) send(ctx context.Context, routingKey string, body any, at time.Time) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    at,
		Body:         data,
	})
}

// Close closes the channel and the connection.
func (p *AMQPPublisher) Close() error {
	var firstErr error
	if p.ch != nil {
		if err := p.ch.Close(); err != nil {
			firstErr = err
		}
		p.ch = nil
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		p.conn = nil
	}
	return firstErr
}
