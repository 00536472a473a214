package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Connection is a named broker connection shared by publishers and consumers.
type Connection struct {
	conn *amqp.Connection
	name string
}

// NewConnection dials the broker. name identifies the process in the broker's
// management UI. The connection is closed when the application stops.
func NewConnection(lc fx.Lifecycle, logger *zap.Logger, url, name string) (*Connection, error) {
	logger.Info("connecting to rabbitmq", zap.String("connection_name", name))

	props := amqp.NewConnectionProperties()
	props.SetClientConnectionName(name)

	conn, err := amqp.DialConfig(url, amqp.Config{Properties: props})
	if err != nil {
		logger.Error("rabbitmq connection failed", zap.Error(err))
		return nil, fmt.Errorf("[RABBITMQ CONNECTION FAILED] cannot connect to RabbitMQ, check that it is running and RABBITMQ_URL is correct: %w", err)
	}

	c := &Connection{conn: conn, name: name}
	go c.watch(logger)

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			if conn.IsClosed() {
				return nil
			}
			if err := conn.Close(); err != nil {
				logger.Error("failed to close rabbitmq connection", zap.Error(err))
				return err
			}
			logger.Info("rabbitmq connection closed")
			return nil
		},
	})

	return c, nil
}

// watch logs the broker closing the connection underneath us.
func (c *Connection) watch(logger *zap.Logger) {
	closed := c.conn.NotifyClose(make(chan *amqp.Error, 1))
	if amqpErr, ok := <-closed; ok && amqpErr != nil {
		logger.Error("rabbitmq connection lost",
			zap.String("connection_name", c.name),
			zap.Int("code", amqpErr.Code),
			zap.String("reason", amqpErr.Reason),
		)
	}
}

// Channel opens a new channel on the connection.
func (c *Connection) Channel() (*amqp.Channel, error) {
	return c.conn.Channel()
}
