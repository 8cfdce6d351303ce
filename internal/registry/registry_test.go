package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/signalcraft/beacon/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

// fakeShadowStore keeps records in memory and can be flipped into a
// failing mode to exercise store-unavailable paths.
type fakeShadowStore struct {
	mu      sync.Mutex
	records map[string]*RoomRecord
	fail    bool
}

func newFakeShadowStore() *fakeShadowStore {
	return &fakeShadowStore{records: make(map[string]*RoomRecord)}
}

func (s *fakeShadowStore) Put(_ context.Context, rec *RoomRecord, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("store down")
	}
	s.records[rec.RoomID] = rec
	return nil
}

func (s *fakeShadowStore) Get(_ context.Context, roomID string) (*RoomRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, errors.New("store down")
	}
	rec, ok := s.records[roomID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return rec, nil
}

func (s *fakeShadowStore) Delete(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("store down")
	}
	delete(s.records, roomID)
	return nil
}

func newTestRegistry(store ShadowStore) *RoomRegistry {
	return NewRoomRegistry(store, 2*time.Hour, noop.NewTracerProvider().Tracer("test"))
}

func TestCreateRoom(t *testing.T) {
	ctx := context.Background()

	t.Run("writes a shadow record and returns credentials", func(t *testing.T) {
		store := newFakeShadowStore()
		reg := newTestRegistry(store)

		roomID, joinToken, err := reg.CreateRoom(ctx, "subject-1")
		require.NoError(t, err)
		assert.Len(t, roomID, 8)
		assert.Len(t, joinToken, 6)

		rec, err := store.Get(ctx, roomID)
		require.NoError(t, err)
		assert.Equal(t, "subject-1", rec.CreatorSubject)
		assert.Equal(t, joinToken, rec.JoinToken)
	})

	t.Run("store failure surfaces as StoreUnavailable", func(t *testing.T) {
		store := newFakeShadowStore()
		store.fail = true
		reg := newTestRegistry(store)

		_, _, err := reg.CreateRoom(ctx, "subject-1")
		assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	})
}

func TestLoadOrValidate(t *testing.T) {
	ctx := context.Background()

	t.Run("materializes the live room on first join", func(t *testing.T) {
		store := newFakeShadowStore()
		reg := newTestRegistry(store)

		roomID, joinToken, err := reg.CreateRoom(ctx, "subject-1")
		require.NoError(t, err)

		room, err := reg.LoadOrValidate(ctx, roomID, joinToken)
		require.NoError(t, err)
		assert.Equal(t, roomID, room.ID)

		// Subsequent joins reuse the same live room.
		again, err := reg.LoadOrValidate(ctx, roomID, joinToken)
		require.NoError(t, err)
		assert.Same(t, room, again)
	})

	t.Run("unknown room", func(t *testing.T) {
		reg := newTestRegistry(newFakeShadowStore())

		_, err := reg.LoadOrValidate(ctx, "missing", "TOKEN")
		assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	})

	t.Run("wrong token", func(t *testing.T) {
		store := newFakeShadowStore()
		reg := newTestRegistry(store)

		roomID, _, err := reg.CreateRoom(ctx, "subject-1")
		require.NoError(t, err)

		_, err = reg.LoadOrValidate(ctx, roomID, "WRONG1")
		assert.ErrorIs(t, err, domain.ErrInvalidToken)
	})

	t.Run("expired record blocks new joins", func(t *testing.T) {
		store := newFakeShadowStore()
		reg := newTestRegistry(store)

		now := time.Now().UTC()
		store.records["expired1"] = &RoomRecord{
			RoomID:         "expired1",
			CreatorSubject: "subject-1",
			JoinToken:      "TOKEN1",
			CreatedAt:      now.Add(-3 * time.Hour).Unix(),
			ExpiresAt:      now.Add(-time.Hour).Unix(),
		}

		_, err := reg.LoadOrValidate(ctx, "expired1", "TOKEN1")
		assert.ErrorIs(t, err, domain.ErrRoomExpired)
	})

	t.Run("store failure is distinct from not found", func(t *testing.T) {
		store := newFakeShadowStore()
		reg := newTestRegistry(store)
		store.fail = true

		_, err := reg.LoadOrValidate(ctx, "any", "TOKEN")
		assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	})
}

func TestAdmitAndRetire(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*RoomRegistry, *fakeShadowStore, *domain.Room) {
		t.Helper()
		store := newFakeShadowStore()
		reg := newTestRegistry(store)

		roomID, joinToken, err := reg.CreateRoom(ctx, "subject-1")
		require.NoError(t, err)
		room, err := reg.LoadOrValidate(ctx, roomID, joinToken)
		require.NoError(t, err)

		return reg, store, room
	}

	t.Run("duplicate peer id", func(t *testing.T) {
		reg, _, room := setup(t)

		_, err := reg.Admit(room, "peer-a", domain.RoleWorker, domain.Metadata{})
		require.NoError(t, err)

		_, err = reg.Admit(room, "peer-a", domain.RoleWorker, domain.Metadata{})
		assert.ErrorIs(t, err, domain.ErrDuplicatePeerID)
	})

	t.Run("room is retired only when empty", func(t *testing.T) {
		reg, store, room := setup(t)

		_, err := reg.Admit(room, "peer-a", domain.RoleWorker, domain.Metadata{})
		require.NoError(t, err)
		_, err = reg.Admit(room, "peer-b", domain.RoleClient, domain.Metadata{})
		require.NoError(t, err)

		reg.Remove(room, "peer-a", domain.RoleWorker)
		retired, err := reg.RetireIfEmpty(ctx, room.ID)
		require.NoError(t, err)
		assert.False(t, retired)

		_, live := reg.GetRoom(room.ID)
		assert.True(t, live)

		reg.Remove(room, "peer-b", domain.RoleClient)
		retired, err = reg.RetireIfEmpty(ctx, room.ID)
		require.NoError(t, err)
		assert.True(t, retired)

		// Live registry and durable shadow are both gone.
		_, live = reg.GetRoom(room.ID)
		assert.False(t, live)
		_, err = store.Get(ctx, room.ID)
		assert.ErrorIs(t, err, ErrRecordNotFound)
	})

	t.Run("admission into a retired room restarts registration", func(t *testing.T) {
		reg, _, room := setup(t)

		retired, err := reg.RetireIfEmpty(ctx, room.ID)
		require.NoError(t, err)
		require.True(t, retired)

		_, err = reg.Admit(room, "peer-a", domain.RoleWorker, domain.Metadata{})
		assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	})

	t.Run("remove is idempotent", func(t *testing.T) {
		reg, _, room := setup(t)

		_, err := reg.Admit(room, "peer-a", domain.RoleWorker, domain.Metadata{})
		require.NoError(t, err)

		assert.True(t, reg.Remove(room, "peer-a", domain.RoleWorker))
		assert.False(t, reg.Remove(room, "peer-a", domain.RoleWorker))
	})
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(newFakeShadowStore())

	roomID, joinToken, err := reg.CreateRoom(ctx, "subject-1")
	require.NoError(t, err)
	room, err := reg.LoadOrValidate(ctx, roomID, joinToken)
	require.NoError(t, err)

	_, err = reg.Admit(room, "worker-a", domain.RoleWorker, domain.Metadata{})
	require.NoError(t, err)
	_, err = reg.Admit(room, "client-1", domain.RoleClient, domain.Metadata{})
	require.NoError(t, err)

	rooms, peersByRole := reg.Stats()
	assert.Equal(t, 1, rooms)
	assert.Equal(t, 1, peersByRole[domain.RoleWorker])
	assert.Equal(t, 1, peersByRole[domain.RoleClient])
}
