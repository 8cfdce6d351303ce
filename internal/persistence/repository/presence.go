package repository

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/signalcraft/beacon/internal/router"
)

const (
	presenceKeyPrefix = "presence:"

	// presenceTTL is a safety net against records orphaned by an instance
	// crash; normal cleanup happens on disconnect.
	presenceTTL = 24 * time.Hour
)

type presenceStore struct {
	client *redis.Client
}

func NewPresenceStore(client *redis.Client) router.PresenceStore {
	return &presenceStore{client: client}
}

func presenceKey(roomID, peerID string) string {
	return presenceKeyPrefix + roomID + ":" + peerID
}

func (s *presenceStore) Claim(ctx context.Context, roomID, peerID, instanceID string) (bool, error) {
	return s.client.SetNX(ctx, presenceKey(roomID, peerID), instanceID, presenceTTL).Result()
}

func (s *presenceStore) Get(ctx context.Context, roomID, peerID string) (string, error) {
	owner, err := s.client.Get(ctx, presenceKey(roomID, peerID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", err
	}
	return owner, nil
}

func (s *presenceStore) Delete(ctx context.Context, roomID, peerID string) error {
	return s.client.Del(ctx, presenceKey(roomID, peerID)).Err()
}
