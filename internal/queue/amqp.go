package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPQueue publishes to and consumes from one durable RabbitMQ queue.
type AMQPQueue struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	name    string
}

func NewAMQPQueue(url, name string) (*AMQPQueue, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("amqp url is required")
	}
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("amqp queue name is required")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := ch.Qos(8, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &AMQPQueue{conn: conn, channel: ch, name: name}, nil
}

func (q *AMQPQueue) Publish(ctx context.Context, msg Message) error {
	return q.channel.PublishWithContext(ctx, "", q.name, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Type:         msg.Type,
		Body:         msg.Body,
	})
}

// Consume acks each delivery once it has been handed to the reader.
func (q *AMQPQueue) Consume(ctx context.Context) (<-chan Message, error) {
	tag := fmt.Sprintf("rollcall-%s", uuid.NewString())
	deliveries, err := q.channel.Consume(q.name, tag, false, false, false, false, nil)
	if err != nil {
		return nil, err
	}
	out := make(chan Message)
	go func() {
		defer close(out)
		defer func() { _ = q.channel.Cancel(tag, false) }()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					log.Printf("queue: amqp delivery channel closed")
					return
				}
				msg := Message{Type: d.Type, Body: json.RawMessage(d.Body)}
				select {
				case out <- msg:
					_ = d.Ack(false)
				case <-ctx.Done():
					_ = d.Nack(false, true)
					return
				}
			}
		}
	}()
	return out, nil
}

func (q *AMQPQueue) Close() error {
	if q.channel != nil {
		_ = q.channel.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}
