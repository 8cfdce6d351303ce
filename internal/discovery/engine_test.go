package discovery

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/signalcraft/beacon/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roomWithPeers(t *testing.T) *domain.Room {
	t.Helper()

	room := domain.NewRoom("room1", "subject-1", "TOKEN1", time.Now().Add(time.Hour))

	_, err := room.Admit("worker-a", domain.RoleWorker, domain.Metadata{
		Tags:       []string{"gpu"},
		Properties: map[string]any{"gpu_memory_mb": float64(16384), "status": "available"},
	})
	require.NoError(t, err)

	_, err = room.Admit("client-1", domain.RoleClient, domain.Metadata{})
	require.NoError(t, err)

	return room
}

func peerIDs(peers []PeerSummary) []string {
	ids := make([]string, 0, len(peers))
	for _, p := range peers {
		ids = append(ids, p.PeerID)
	}
	return ids
}

func TestFind(t *testing.T) {
	t.Run("empty filter returns everyone", func(t *testing.T) {
		room := roomWithPeers(t)

		peers := Find(room, Filter{})
		assert.ElementsMatch(t, []string{"worker-a", "client-1"}, peerIDs(peers))
	})

	t.Run("role filter", func(t *testing.T) {
		room := roomWithPeers(t)

		peers := Find(room, Filter{Role: "worker"})
		assert.Equal(t, []string{"worker-a"}, peerIDs(peers))
	})

	t.Run("tag filter is OR over the intersection", func(t *testing.T) {
		room := domain.NewRoom("room1", "s", "T", time.Now().Add(time.Hour))
		_, err := room.Admit("peer-ab", domain.RolePeer, domain.Metadata{Tags: []string{"a", "b"}})
		require.NoError(t, err)

		assert.Len(t, Find(room, Filter{Tags: []string{"b", "c"}}), 1)
		assert.Empty(t, Find(room, Filter{Tags: []string{"c", "d"}}))
	})

	t.Run("numeric predicate against advertised property", func(t *testing.T) {
		room := roomWithPeers(t)

		match := Find(room, Filter{
			Role:       "worker",
			Properties: map[string]Predicate{"gpu_memory_mb": {Op: OpGte, Value: float64(8192)}},
		})
		assert.Equal(t, []string{"worker-a"}, peerIDs(match))

		none := Find(room, Filter{
			Role:       "worker",
			Properties: map[string]Predicate{"gpu_memory_mb": {Op: OpGte, Value: float64(20000)}},
		})
		assert.Empty(t, none)
	})

	t.Run("missing property key fails the peer", func(t *testing.T) {
		room := roomWithPeers(t)

		peers := Find(room, Filter{
			Properties: map[string]Predicate{"zone": {Op: OpEquals, Value: "eu-1"}},
		})
		assert.Empty(t, peers)
	})

	t.Run("discovery observes the latest committed metadata", func(t *testing.T) {
		room := roomWithPeers(t)

		availFilter := Filter{Properties: map[string]Predicate{"status": {Op: OpEquals, Value: "available"}}}
		assert.Equal(t, []string{"worker-a"}, peerIDs(Find(room, availFilter)))

		_, err := room.UpdatePeerMetadata("worker-a", domain.Metadata{
			Properties: map[string]any{"status": "busy"},
		})
		require.NoError(t, err)

		assert.Empty(t, Find(room, availFilter))
	})

	t.Run("wire-shaped filter end to end", func(t *testing.T) {
		room := roomWithPeers(t)

		filter, err := ParseFilter(json.RawMessage(`{
			"role": "worker",
			"properties": {"gpu_memory_mb": {"$gte": 8192}}
		}`))
		require.NoError(t, err)

		peers := Find(room, filter)
		require.Len(t, peers, 1)
		assert.Equal(t, "worker-a", peers[0].PeerID)
	})
}
