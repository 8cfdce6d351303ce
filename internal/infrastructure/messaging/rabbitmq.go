package messaging

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	RoomEventsExchange = "beacon.rooms"
	RouteExchange      = "beacon.route"
	DeadLetterExchange = "dlx"
)

type RabbitMQ struct {
	conn    *amqp.Connection
	Channel *amqp.Channel
}

func NewRabbitMQ(uri string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %v", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create channel: %v", err)
	}

	// Publisher confirms back the bounded delivery-acknowledgment wait on
	// cross-instance routing.
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to put channel in confirm mode: %v", err)
	}

	rmq := &RabbitMQ{
		conn:    conn,
		Channel: ch,
	}

	if err := rmq.declareExchanges(); err != nil {
		rmq.Close()
		return nil, err
	}

	return rmq, nil
}

func (r *RabbitMQ) Close() {
	if r.Channel != nil {
		r.Channel.Close()
	}
	if r.conn != nil {
		r.conn.Close()
	}
}

func (r *RabbitMQ) declareExchanges() error {
	if err := r.Channel.ExchangeDeclare(
		RoomEventsExchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %v", RoomEventsExchange, err)
	}

	if err := r.Channel.ExchangeDeclare(
		RouteExchange,
		"direct",
		false, // transient: routed envelopes are worthless after the connection is gone
		false,
		false,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %v", RouteExchange, err)
	}

	if err := r.Channel.ExchangeDeclare(
		DeadLetterExchange,
		"fanout",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %v", DeadLetterExchange, err)
	}

	return nil
}

func (r *RabbitMQ) DeclareAndBindQueue(queueName string, routingKeys []string, exchange string, durable bool) error {
	var args amqp.Table
	if durable {
		args = amqp.Table{
			"x-dead-letter-exchange": DeadLetterExchange,
		}
	}

	q, err := r.Channel.QueueDeclare(
		queueName,
		durable,
		!durable, // transient queues are deleted when unused
		false,    // exclusive
		false,    // no-wait
		args,
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %v", queueName, err)
	}

	for _, key := range routingKeys {
		if err := r.Channel.QueueBind(
			q.Name,
			key,
			exchange,
			false,
			nil,
		); err != nil {
			return fmt.Errorf("failed to bind queue %s: %v", queueName, err)
		}
	}

	return nil
}

// PublishMessage publishes without waiting for broker confirmation.
func (r *RabbitMQ) PublishMessage(ctx context.Context, exchange, routingKey string, body []byte) error {
	return r.Channel.PublishWithContext(ctx,
		exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
}

// PublishAndConfirm publishes and blocks until the broker acknowledges the
// message or ctx expires.
func (r *RabbitMQ) PublishAndConfirm(ctx context.Context, exchange, routingKey string, body []byte) error {
	confirm, err := r.Channel.PublishWithDeferredConfirmWithContext(ctx,
		exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
	if err != nil {
		return err
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return err
	}
	if !acked {
		return fmt.Errorf("broker nacked publish to %s/%s", exchange, routingKey)
	}

	return nil
}

func (r *RabbitMQ) ConsumeMessages(queueName string, handler func(ctx context.Context, msg amqp.Delivery) error) error {
	deliveries, err := r.Channel.Consume(
		queueName,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to consume from %s: %v", queueName, err)
	}

	ctx := context.Background()
	for msg := range deliveries {
		if err := handler(ctx, msg); err != nil {
			msg.Nack(false, false)
			continue
		}
		msg.Ack(false)
	}

	return nil
}
