package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel is the subset of *amqp.Channel the publisher needs.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// RabbitPublisher sends events to a durable topic exchange. The routing key is the
// event type.
type RabbitPublisher struct {
	mu       sync.Mutex
	ch       Channel
	exchange string
}

func NewRabbitPublisher(ch Channel, exchange string) (*RabbitPublisher, error) {
	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	return &RabbitPublisher{ch: ch, exchange: exchange}, nil
}

func (p *RabbitPublisher) Publish(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    e.ID,
		Timestamp:    e.OccurredAt,
		Type:         string(e.Type),
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ch.PublishWithContext(ctx, p.exchange, string(e.Type), false, false, pub); err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}

	return nil
}

// Connection owns the broker connection and channel behind a RabbitPublisher.
type Connection struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func Dial(url, exchange string) (*RabbitPublisher, *Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}

	pub, err := NewRabbitPublisher(ch, exchange)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, err
	}

	return pub, &Connection{conn: conn, ch: ch}, nil
}

func (c *Connection) Close() error {
	if err := c.ch.Close(); err != nil {
		c.conn.Close()
		return fmt.Errorf("close channel: %w", err)
	}
	return c.conn.Close()
}

var _ Publisher = (*RabbitPublisher)(nil)
