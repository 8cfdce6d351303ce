// Package router delivers directed signaling messages between two peers of
// a room. The local router hands messages straight to the target's
// connection; the remote router extends the same interface across
// instances via the message bus, selected by which instance owns the
// target's connection.
package router

import (
	"context"

	"github.com/signalcraft/beacon/internal/domain"
)

type MessageKind string

const (
	// KindNegotiation covers connection-negotiation envelopes (offer,
	// answer, candidate). The payload is relayed without interpretation.
	KindNegotiation MessageKind = "negotiation"
	// KindApplication covers free-form peer_message payloads.
	KindApplication MessageKind = "application"
)

// RoutedMessage exists only for the duration of routing. Payload is the
// verbatim wire envelope delivered to the target.
type RoutedMessage struct {
	FromPeerID string      `json:"from_peer_id"`
	ToPeerID   string      `json:"to_peer_id"`
	RoomID     string      `json:"room_id"`
	Kind       MessageKind `json:"kind"`
	Payload    []byte      `json:"payload"`
}

// Router resolves the target peer and delivers the message, reporting
// failure to the caller instead of retrying. Implementations share the
// resolution steps; they differ only in what happens when the target's
// connection lives elsewhere.
type Router interface {
	Route(ctx context.Context, room *domain.Room, msg *RoutedMessage) error
}

// PeerConn is the outbound side of a live signaling connection.
type PeerConn interface {
	Enqueue(data []byte) error
}

// ConnTable resolves a (room, peer) pair to the live connection held by
// this process.
type ConnTable interface {
	Lookup(roomID, peerID string) (PeerConn, bool)
}

// PresenceStore records which instance currently owns a peer's
// connection. Records are claimed on admission and removed on disconnect,
// so a routing attempt after cleanup resolves to nothing rather than to a
// dead connection. Because the claim is atomic and scoped to the
// room/peer pair, it also enforces peer-id uniqueness across instances.
type PresenceStore interface {
	// Claim records instanceID as the peer's connection owner. Returns
	// false without writing when another connection already holds the
	// room/peer pair.
	Claim(ctx context.Context, roomID, peerID, instanceID string) (bool, error)
	Get(ctx context.Context, roomID, peerID string) (string, error)
	Delete(ctx context.Context, roomID, peerID string) error
}
