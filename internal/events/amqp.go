// internal/events/amqp.go
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/streadway/amqp"
)

const eventQueue = "campaign_events"

// AMQPEmitter publishes events to a durable RabbitMQ queue.
type AMQPEmitter struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewAMQPEmitter(url string) (*AMQPEmitter, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	_, err = ch.QueueDeclare(
		eventQueue, // name
		true,       // durable
		false,      // delete when unused
		false,      // exclusive
		false,      // no-wait
		nil,        // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &AMQPEmitter{conn: conn, channel: ch}, nil
}

func (e *AMQPEmitter) Emit(ctx context.Context, ev Event) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	return e.channel.Publish(
		"",         // default exchange
		eventQueue, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

func (e *AMQPEmitter) Close() error {
	if e.channel != nil {
		e.channel.Close()
	}
	if e.conn != nil {
		return e.conn.Close()
	}
	return nil
}

var _ Emitter = (*AMQPEmitter)(nil)
