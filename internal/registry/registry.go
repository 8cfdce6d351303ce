// Package registry owns room existence and per-room peer membership: the
// stateful heart of the signaling service. Room records are shadowed to a
// durable store so any instance can validate a join and rooms survive
// restarts; live peer state is in-memory only.
package registry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/signalcraft/beacon/internal/domain"
	"github.com/signalcraft/beacon/internal/infrastructure/metrics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	roomIDLength    = 8
	joinTokenLength = 6

	joinTokenChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

var tokenCharsetLen = big.NewInt(int64(len(joinTokenChars)))

type RoomRegistry struct {
	store  ShadowStore
	ttl    time.Duration
	tracer trace.Tracer

	mu    sync.RWMutex
	rooms map[string]*domain.Room
}

func NewRoomRegistry(store ShadowStore, ttl time.Duration, tracer trace.Tracer) *RoomRegistry {
	if ttl == 0 {
		ttl = 2 * time.Hour
	}

	return &RoomRegistry{
		store:  store,
		ttl:    ttl,
		tracer: tracer,
		rooms:  make(map[string]*domain.Room),
	}
}

// CreateRoom writes a fresh shadow record with the configured TTL and
// returns the credentials a peer needs to join. The live room is not
// materialized until the first successful join.
func (r *RoomRegistry) CreateRoom(ctx context.Context, creatorSubject string) (string, string, error) {
	ctx, span := r.tracer.Start(ctx, "RoomRegistry.CreateRoom")
	defer span.End()

	roomID := strings.ReplaceAll(uuid.NewString(), "-", "")[:roomIDLength]
	joinToken, err := generateJoinToken()
	if err != nil {
		span.RecordError(err)
		return "", "", err
	}

	now := time.Now().UTC()
	rec := &RoomRecord{
		RoomID:         roomID,
		CreatorSubject: creatorSubject,
		JoinToken:      joinToken,
		CreatedAt:      now.Unix(),
		ExpiresAt:      now.Add(r.ttl).Unix(),
	}

	if err := r.store.Put(ctx, rec, r.ttl); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "shadow record write failed")
		return "", "", fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	span.SetAttributes(attribute.String("room.id", roomID))
	return roomID, joinToken, nil
}

// LoadOrValidate backs a join attempt: it checks the join token and expiry
// against the shadow record and materializes (or reuses) the live room.
// Expiry gates new joins only; peers already inside an expired room keep
// their session until the room empties.
func (r *RoomRegistry) LoadOrValidate(ctx context.Context, roomID, joinToken string) (*domain.Room, error) {
	ctx, span := r.tracer.Start(ctx, "RoomRegistry.LoadOrValidate")
	defer span.End()
	span.SetAttributes(attribute.String("room.id", roomID))

	r.mu.RLock()
	live, exists := r.rooms[roomID]
	r.mu.RUnlock()

	if exists {
		if live.JoinToken != joinToken {
			return nil, domain.ErrInvalidToken
		}
		if live.Expired(time.Now()) {
			return nil, domain.ErrRoomExpired
		}
		return live, nil
	}

	rec, err := r.store.Get(ctx, roomID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, domain.ErrRoomNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "shadow record read failed")
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	if rec.JoinToken != joinToken {
		return nil, domain.ErrInvalidToken
	}
	if time.Now().After(rec.Expiry()) {
		return nil, domain.ErrRoomExpired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// A concurrent join may have materialized the room in the meantime.
	if live, exists := r.rooms[roomID]; exists {
		return live, nil
	}

	room := domain.NewRoom(rec.RoomID, rec.CreatorSubject, rec.JoinToken, rec.Expiry())
	r.rooms[roomID] = room
	metrics.ActiveRooms.Inc()

	return room, nil
}

// Admit registers a peer into a room previously obtained from
// LoadOrValidate. Admission holds the registry read lock so it cannot
// interleave with a concurrent retirement of the same room; admissions
// into different rooms still run in parallel.
func (r *RoomRegistry) Admit(room *domain.Room, peerID string, role domain.Role, md domain.Metadata) (*domain.PeerHandle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if current, exists := r.rooms[room.ID]; !exists || current != room {
		// The room emptied and was retired between validation and
		// admission. The join token no longer exists; registration must
		// start over.
		return nil, domain.ErrRoomNotFound
	}

	handle, err := room.Admit(peerID, role, md)
	if err != nil {
		return nil, err
	}

	metrics.PeersByRole.WithLabelValues(string(handle.Role)).Inc()
	return handle, nil
}

// UpdateMetadata merges a partial metadata update into the peer's handle.
func (r *RoomRegistry) UpdateMetadata(room *domain.Room, peerID string, patch domain.Metadata) (domain.Metadata, error) {
	return room.UpdatePeerMetadata(peerID, patch)
}

// Remove deletes the peer from the room. Idempotent.
func (r *RoomRegistry) Remove(room *domain.Room, peerID string, role domain.Role) bool {
	removed := room.RemovePeer(peerID)
	if removed {
		metrics.PeersByRole.WithLabelValues(string(role)).Dec()
	}
	return removed
}

// RetireIfEmpty is the sole cleanup path: invoked after every peer
// removal, it purges both the live room and its durable shadow record once
// the peer map is empty. There is no timer-based sweep.
func (r *RoomRegistry) RetireIfEmpty(ctx context.Context, roomID string) (bool, error) {
	r.mu.Lock()

	room, exists := r.rooms[roomID]
	if !exists || room.PeerCount() > 0 {
		r.mu.Unlock()
		return false, nil
	}

	delete(r.rooms, roomID)
	metrics.ActiveRooms.Dec()
	r.mu.Unlock()

	if err := r.store.Delete(ctx, roomID); err != nil {
		return true, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	return true, nil
}

// DeleteRoom force-purges the shadow record, regardless of live state.
// Backs the administrative delete endpoint.
func (r *RoomRegistry) DeleteRoom(ctx context.Context, roomID string) error {
	ctx, span := r.tracer.Start(ctx, "RoomRegistry.DeleteRoom")
	defer span.End()

	if err := r.store.Delete(ctx, roomID); err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func (r *RoomRegistry) GetRoom(roomID string) (*domain.Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, exists := r.rooms[roomID]
	return room, exists
}

// Stats returns aggregate counts for the health surface: live room count
// and registered peers grouped by role. No peer identifiers leak out.
func (r *RoomRegistry) Stats() (int, map[domain.Role]int) {
	r.mu.RLock()
	rooms := make([]*domain.Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
	}
	r.mu.RUnlock()

	peersByRole := make(map[domain.Role]int)
	for _, room := range rooms {
		for _, peer := range room.SnapshotPeers() {
			peersByRole[peer.Role]++
		}
	}

	return len(rooms), peersByRole
}

func generateJoinToken() (string, error) {
	var sb strings.Builder
	sb.Grow(joinTokenLength)

	for i := 0; i < joinTokenLength; i++ {
		n, err := rand.Int(rand.Reader, tokenCharsetLen)
		if err != nil {
			return "", err
		}
		sb.WriteByte(joinTokenChars[n.Int64()])
	}

	return sb.String(), nil
}
