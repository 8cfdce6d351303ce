package domain

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrRoomExpired      = errors.New("room expired")
	ErrInvalidToken     = errors.New("invalid join token")
	ErrDuplicatePeerID  = errors.New("peer id already registered in room")
	ErrPeerNotFound     = errors.New("peer not found")
	ErrPeerNotInRoom    = errors.New("peer not in room")
	ErrNotInRoom        = errors.New("sender has no room")
	ErrDeliveryFailed   = errors.New("delivery failed")
	ErrStoreUnavailable = errors.New("durable store unavailable")
	ErrInvalidInput     = errors.New("invalid input")
)

type Role string

const (
	RoleWorker Role = "worker"
	RoleClient Role = "client"
	RolePeer   Role = "peer"
)

// ParseRole maps the wire role onto the closed enum. An absent role
// defaults to the generic peer role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleWorker, RoleClient, RolePeer:
		return Role(s), nil
	case "":
		return RolePeer, nil
	}
	return "", ErrInvalidInput
}

// PeerHandle is the registry's view of a registered peer. The live
// transport connection is owned by the signaling layer and referenced by
// (room id, peer id), never stored here.
type PeerHandle struct {
	PeerID      string    `json:"peer_id"`
	Role        Role      `json:"role"`
	Metadata    Metadata  `json:"metadata"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Room groups peers that are authorized to discover and message each
// other. All peer-map access is serialized by the room's own lock, so
// independent rooms never contend.
type Room struct {
	ID             string
	CreatorSubject string
	JoinToken      string
	ExpiresAt      time.Time

	mu    sync.RWMutex
	peers map[string]*PeerHandle
}

func NewRoom(id, creatorSubject, joinToken string, expiresAt time.Time) *Room {
	return &Room{
		ID:             id,
		CreatorSubject: creatorSubject,
		JoinToken:      joinToken,
		ExpiresAt:      expiresAt,
		peers:          make(map[string]*PeerHandle),
	}
}

func (r *Room) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Admit inserts a new peer handle. Nothing is mutated on failure.
func (r *Room) Admit(peerID string, role Role, md Metadata) (*PeerHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.peers[peerID]; exists {
		return nil, ErrDuplicatePeerID
	}

	handle := &PeerHandle{
		PeerID:      peerID,
		Role:        role,
		Metadata:    md.normalized(),
		ConnectedAt: time.Now().UTC(),
	}
	r.peers[peerID] = handle

	return handle, nil
}

// UpdatePeerMetadata merges the patch into the peer's metadata and returns
// the merged result. The handle's metadata is replaced wholesale, never
// mutated in place, so snapshots taken before the update stay coherent.
func (r *Room) UpdatePeerMetadata(peerID string, patch Metadata) (Metadata, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	handle, exists := r.peers[peerID]
	if !exists {
		return Metadata{}, ErrPeerNotFound
	}

	handle.Metadata = MergeMetadata(handle.Metadata, patch)
	return handle.Metadata, nil
}

// RemovePeer deletes the handle. Removing an absent peer is a no-op, not
// an error: disconnect cleanup may race with explicit removal.
func (r *Room) RemovePeer(peerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.peers[peerID]; !exists {
		return false
	}
	delete(r.peers, peerID)
	return true
}

func (r *Room) HasPeer(peerID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.peers[peerID]
	return exists
}

func (r *Room) PeerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.peers)
}

// SnapshotPeers returns a point-in-time copy of the peer handles taken
// under the room lock: a reader never observes a half-applied admit or
// removal.
func (r *Room) SnapshotPeers() []PeerHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make([]PeerHandle, 0, len(r.peers))
	for _, handle := range r.peers {
		snapshot = append(snapshot, *handle)
	}
	return snapshot
}
