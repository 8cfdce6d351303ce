package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/signalcraft/beacon/internal/registry"
)

const roomKeyPrefix = "room:"

// roomShadowStore persists room records in Redis with the room TTL, so
// they outlive any single instance and expire on their own if never
// retired.
type roomShadowStore struct {
	client *redis.Client
}

func NewRoomShadowStore(client *redis.Client) registry.ShadowStore {
	return &roomShadowStore{client: client}
}

func (s *roomShadowStore) Put(ctx context.Context, rec *registry.RoomRecord, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	return s.client.Set(ctx, roomKeyPrefix+rec.RoomID, data, ttl).Err()
}

func (s *roomShadowStore) Get(ctx context.Context, roomID string) (*registry.RoomRecord, error) {
	data, err := s.client.Get(ctx, roomKeyPrefix+roomID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, registry.ErrRecordNotFound
		}
		return nil, err
	}

	var rec registry.RoomRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("corrupt room record %s: %w", roomID, err)
	}

	return &rec, nil
}

func (s *roomShadowStore) Delete(ctx context.Context, roomID string) error {
	return s.client.Del(ctx, roomKeyPrefix+roomID).Err()
}
