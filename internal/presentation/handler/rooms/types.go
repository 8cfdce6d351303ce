package rooms

import "github.com/signalcraft/beacon/internal/domain"

// createRoomResponse carries the credentials a peer needs to join the
// fresh room.
type createRoomResponse struct {
	RoomID    string `json:"room_id"`
	JoinToken string `json:"join_token"`
}

// roomResponse is the aggregate-only view of a live room. Peer
// identifiers are deliberately absent.
type roomResponse struct {
	RoomID    string         `json:"room_id"`
	Active    bool           `json:"active"`
	PeerCount int            `json:"peer_count"`
	Peers     map[string]int `json:"peers_by_role"`
	ExpiresAt string         `json:"expires_at,omitempty"`
}

type roomEventsResponse struct {
	RoomID string                `json:"room_id"`
	Events []domain.RoomAuditLog `json:"events"`
}
