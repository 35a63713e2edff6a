package amqp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/streadway/amqp"

	"github.com/Xianghbb/au-email-marketing-saas/pkg/logger"
	"github.com/Xianghbb/au-email-marketing-saas/pkg/messaging"
)

const exchangeName = "campaign.events"

// AMQPBroker implements messaging.Broker on top of a RabbitMQ topic exchange.
// Used when broker.kind is set to "amqp"; the redis broker is the default.
type AMQPBroker struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  *logger.Logger
}

type Config struct {
	URL string
}

func NewAMQPBroker(config Config, log *logger.Logger) (messaging.Broker, error) {
	conn, err := amqp.Dial(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchangeName, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &AMQPBroker{
		conn:    conn,
		channel: ch,
		logger:  log,
	}, nil
}

func (b *AMQPBroker) Publish(_ context.Context, topic string, message interface{}) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return b.channel.Publish(exchangeName, topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         payload,
		DeliveryMode: amqp.Persistent,
	})
}

func (b *AMQPBroker) Subscribe(ctx context.Context, topic string) (<-chan []byte, error) {
	queue, err := b.channel.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := b.channel.QueueBind(queue.Name, topic, exchangeName, false, nil); err != nil {
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	deliveries, err := b.channel.Consume(queue.Name, "", true, true, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to consume queue: %w", err)
	}

	msgChan := make(chan []byte, 100)

	go func() {
		defer close(msgChan)
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				msgChan <- d.Body
			}
		}
	}()

	return msgChan, nil
}

func (b *AMQPBroker) Close() error {
	if err := b.channel.Close(); err != nil {
		b.logger.Error(err, "failed to close AMQP channel")
	}
	return b.conn.Close()
}
