package registry

import (
	"context"
	"errors"
	"time"
)

// ErrRecordNotFound is returned by a ShadowStore when no record exists for
// the room id. It is distinct from infrastructure failure so callers can
// tell a legitimate miss from an outage.
var ErrRecordNotFound = errors.New("room record not found")

// RoomRecord is the shadow copy of room metadata kept in the durable
// store. It carries no peer state; its job is to survive process restarts
// and let any instance validate a join.
type RoomRecord struct {
	RoomID         string `json:"room_id"`
	CreatorSubject string `json:"creator_subject"`
	JoinToken      string `json:"join_token"`
	CreatedAt      int64  `json:"created_at"`
	ExpiresAt      int64  `json:"expires_at"`
}

func (rec *RoomRecord) Expiry() time.Time {
	return time.Unix(rec.ExpiresAt, 0).UTC()
}

type ShadowStore interface {
	Put(ctx context.Context, rec *RoomRecord, ttl time.Duration) error
	Get(ctx context.Context, roomID string) (*RoomRecord, error)
	Delete(ctx context.Context, roomID string) error
}
