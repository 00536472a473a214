package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Routing keys of reading lifecycle events.
const (
	ReadingCreated  = "reading.created"
	ReadingUpdated  = "reading.updated"
	ReadingVerified = "reading.verified"
)

// ReadingEvent is published whenever a meter reading changes.
type ReadingEvent struct {
	Type          string    `json:"type"`
	ReadingID     string    `json:"reading_id"`
	CustomerID    string    `json:"customer_id"`
	MeterReaderID string    `json:"meter_reader_id"`
	Status        string    `json:"status"`
	Consumption   float64   `json:"consumption"`
	BillingMonth  string    `json:"billing_month"`
	BillingYear   int       `json:"billing_year"`
	ReadingDate   string    `json:"reading_date"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Publisher handles message publishing to RabbitMQ
type Publisher struct {
	conn     *Connection
	channel  *amqp.Channel
	exchange string
	logger   *zap.Logger
}

// NewPublisher creates a new RabbitMQ publisher
func NewPublisher(conn *Connection, exchange string, logger *zap.Logger) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	// Declare exchange
	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &Publisher{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		logger:   logger,
	}, nil
}

// NewLifecyclePublisher creates a publisher whose channel is closed when the
// application stops.
func NewLifecyclePublisher(lc fx.Lifecycle, conn *Connection, exchange string, logger *zap.Logger) (*Publisher, error) {
	p, err := NewPublisher(conn, exchange, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			if err := p.Close(); err != nil {
				logger.Warn("failed to close publisher channel", zap.Error(err))
			}
			return nil
		},
	})
	return p, nil
}

// PublishReadingEvent publishes event with its type as routing key.
func (p *Publisher) PublishReadingEvent(ctx context.Context, event ReadingEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		event.Type,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    event.OccurredAt,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("published reading event",
		zap.String("routing_key", event.Type),
		zap.String("reading_id", event.ReadingID),
	)

	return nil
}

// Close closes the publisher channel
func (p *Publisher) Close() error {
	if p.channel != nil {
		return p.channel.Close()
	}
	return nil
}

// NopPublisher drops every event. The API uses it when RabbitMQ is not configured.
type NopPublisher struct{}

func (NopPublisher) PublishReadingEvent(context.Context, ReadingEvent) error { return nil }
