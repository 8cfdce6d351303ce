package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRoom() *Room {
	return NewRoom("room1", "subject-1", "TOKEN1", time.Now().Add(time.Hour))
}

func TestRoomAdmit(t *testing.T) {
	t.Run("admits a fresh peer", func(t *testing.T) {
		room := newTestRoom()

		handle, err := room.Admit("peer-a", RoleWorker, Metadata{Tags: []string{"gpu"}})
		require.NoError(t, err)
		assert.Equal(t, "peer-a", handle.PeerID)
		assert.Equal(t, RoleWorker, handle.Role)
		assert.True(t, room.HasPeer("peer-a"))
	})

	t.Run("duplicate peer id is rejected without altering state", func(t *testing.T) {
		room := newTestRoom()

		first, err := room.Admit("peer-a", RoleWorker, Metadata{Properties: map[string]any{"v": 1}})
		require.NoError(t, err)

		_, err = room.Admit("peer-a", RoleClient, Metadata{Properties: map[string]any{"v": 2}})
		require.ErrorIs(t, err, ErrDuplicatePeerID)

		// The original registration survives intact.
		assert.Equal(t, 1, room.PeerCount())
		peers := room.SnapshotPeers()
		require.Len(t, peers, 1)
		assert.Equal(t, first.Role, peers[0].Role)
		assert.Equal(t, 1, peers[0].Metadata.Properties["v"])
	})
}

func TestRoomRemovePeer(t *testing.T) {
	room := newTestRoom()
	_, err := room.Admit("peer-a", RolePeer, Metadata{})
	require.NoError(t, err)

	assert.True(t, room.RemovePeer("peer-a"))

	// Second removal is a no-op, not an error.
	assert.False(t, room.RemovePeer("peer-a"))
	assert.Equal(t, 0, room.PeerCount())
}

func TestRoomUpdatePeerMetadata(t *testing.T) {
	t.Run("merges and returns the new metadata", func(t *testing.T) {
		room := newTestRoom()
		_, err := room.Admit("peer-a", RoleWorker, Metadata{
			Properties: map[string]any{"gpu_memory_mb": 16384, "status": "available"},
		})
		require.NoError(t, err)

		merged, err := room.UpdatePeerMetadata("peer-a", Metadata{
			Properties: map[string]any{"status": "busy"},
		})
		require.NoError(t, err)
		assert.Equal(t, 16384, merged.Properties["gpu_memory_mb"])
		assert.Equal(t, "busy", merged.Properties["status"])
	})

	t.Run("unknown peer fails", func(t *testing.T) {
		room := newTestRoom()

		_, err := room.UpdatePeerMetadata("ghost", Metadata{})
		assert.ErrorIs(t, err, ErrPeerNotFound)
	})

	t.Run("snapshots taken before the update are unchanged", func(t *testing.T) {
		room := newTestRoom()
		_, err := room.Admit("peer-a", RoleWorker, Metadata{
			Properties: map[string]any{"status": "available"},
		})
		require.NoError(t, err)

		before := room.SnapshotPeers()

		_, err = room.UpdatePeerMetadata("peer-a", Metadata{
			Properties: map[string]any{"status": "busy"},
		})
		require.NoError(t, err)

		assert.Equal(t, "available", before[0].Metadata.Properties["status"])
	})
}

func TestRoomExpired(t *testing.T) {
	room := NewRoom("room1", "subject-1", "TOKEN1", time.Now().Add(-time.Minute))
	assert.True(t, room.Expired(time.Now()))
	assert.False(t, room.Expired(time.Now().Add(-2*time.Minute)))
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{in: "worker", want: RoleWorker},
		{in: "client", want: RoleClient},
		{in: "peer", want: RolePeer},
		{in: "", want: RolePeer},
		{in: "admin", wantErr: true},
	}

	for _, tt := range tests {
		role, err := ParseRole(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "role %q", tt.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, role)
	}
}
