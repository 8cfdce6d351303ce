package domain

import (
	"context"
	"time"
)

type RoomEventType string

const (
	RoomEventCreated    RoomEventType = "room.created"
	RoomEventDeleted    RoomEventType = "room.deleted"
	RoomEventPeerJoined RoomEventType = "peer.joined"
	RoomEventPeerLeft   RoomEventType = "peer.left"
)

type RoomAuditLog struct {
	ID        string        `bson:"_id,omitempty" json:"id"`
	RoomID    string        `bson:"room_id" json:"room_id"`
	PeerID    string        `bson:"peer_id,omitempty" json:"peer_id,omitempty"`
	Role      string        `bson:"role,omitempty" json:"role,omitempty"`
	Subject   string        `bson:"subject,omitempty" json:"subject,omitempty"`
	EventType RoomEventType `bson:"event_type" json:"event_type"`
	Timestamp time.Time     `bson:"timestamp" json:"timestamp"`
}

type RoomAuditRepository interface {
	Log(ctx context.Context, log *RoomAuditLog) error
	GetByRoomID(ctx context.Context, roomID string, limit int) ([]RoomAuditLog, error)
	DeleteOlderThan(ctx context.Context, before time.Time) error
	EnsureIndexes(ctx context.Context) error
}
