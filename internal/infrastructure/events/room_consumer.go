package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/signalcraft/beacon/internal/domain"
	"github.com/signalcraft/beacon/internal/infrastructure/logging"
	"github.com/signalcraft/beacon/internal/infrastructure/messaging"
)

type roomConsumer struct {
	rabbitmq *messaging.RabbitMQ
	audits   domain.RoomAuditRepository
	logger   logging.Logger
}

func NewRoomConsumer(rabbitmq *messaging.RabbitMQ, audits domain.RoomAuditRepository, logger logging.Logger) *roomConsumer {
	return &roomConsumer{
		rabbitmq: rabbitmq,
		audits:   audits,
		logger:   logger,
	}
}

// Setup declares the audit queue and binds it to every room event.
func (c *roomConsumer) Setup() error {
	return c.rabbitmq.DeclareAndBindQueue(
		messaging.AuditQueue,
		[]string{"room.*", "peer.*"},
		messaging.RoomEventsExchange,
		true,
	)
}

func (c *roomConsumer) Listen() error {
	return c.rabbitmq.ConsumeMessages(messaging.AuditQueue, func(ctx context.Context, msg amqp091.Delivery) error {
		var event messaging.RoomEvent
		if err := json.Unmarshal(msg.Body, &event); err != nil {
			c.logger.Error(logging.RabbitMQ, logging.ExternalService, "failed to unmarshal room event", map[logging.ExtraKey]interface{}{
				logging.ErrorMessage: err.Error(),
			})
			return err
		}

		log := &domain.RoomAuditLog{
			RoomID:    event.RoomID,
			PeerID:    event.PeerID,
			Role:      event.Role,
			Subject:   event.Subject,
			EventType: domain.RoomEventType(msg.RoutingKey),
			Timestamp: time.Unix(event.Timestamp, 0).UTC(),
		}

		if err := c.audits.Log(ctx, log); err != nil {
			c.logger.Error(logging.Mongo, logging.ExternalService, "failed to persist room audit log", map[logging.ExtraKey]interface{}{
				logging.RoomID:       event.RoomID,
				logging.ErrorMessage: err.Error(),
			})
			return err
		}

		return nil
	})
}
