package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/signalcraft/beacon/internal/infrastructure/messaging"
)

type RoomPublisher struct {
	rabbitmq *messaging.RabbitMQ
}

func NewRoomPublisher(rabbitmq *messaging.RabbitMQ) *RoomPublisher {
	return &RoomPublisher{
		rabbitmq: rabbitmq,
	}
}

func (p *RoomPublisher) PublishRoomCreated(ctx context.Context, roomID, subject string) error {
	return p.publish(ctx, messaging.EventRoomCreated, messaging.RoomEvent{
		RoomID:  roomID,
		Subject: subject,
	})
}

func (p *RoomPublisher) PublishRoomDeleted(ctx context.Context, roomID string) error {
	return p.publish(ctx, messaging.EventRoomDeleted, messaging.RoomEvent{
		RoomID: roomID,
	})
}

func (p *RoomPublisher) PublishPeerJoined(ctx context.Context, roomID, peerID, role, subject string) error {
	return p.publish(ctx, messaging.EventPeerJoined, messaging.RoomEvent{
		RoomID:  roomID,
		PeerID:  peerID,
		Role:    role,
		Subject: subject,
	})
}

func (p *RoomPublisher) PublishPeerLeft(ctx context.Context, roomID, peerID, role string) error {
	return p.publish(ctx, messaging.EventPeerLeft, messaging.RoomEvent{
		RoomID: roomID,
		PeerID: peerID,
		Role:   role,
	})
}

func (p *RoomPublisher) publish(ctx context.Context, routingKey string, event messaging.RoomEvent) error {
	event.Timestamp = time.Now().Unix()

	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return p.rabbitmq.PublishMessage(ctx, messaging.RoomEventsExchange, routingKey, body)
}
