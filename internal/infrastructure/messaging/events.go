package messaging

const (
	AuditQueue      = "room_audit"
	DeadLetterQueue = "dead_letter_queue"
)

// Routing keys on the room events exchange
const (
	EventRoomCreated = "room.created"
	EventRoomDeleted = "room.deleted"
	EventPeerJoined  = "peer.joined"
	EventPeerLeft    = "peer.left"
)

// RouteQueueName names the per-instance queue carrying cross-process
// signaling envelopes.
func RouteQueueName(instanceID string) string {
	return "route." + instanceID
}

// RoomEvent is the payload published on the room events exchange.
type RoomEvent struct {
	RoomID    string `json:"room_id"`
	PeerID    string `json:"peer_id,omitempty"`
	Role      string `json:"role,omitempty"`
	Subject   string `json:"subject,omitempty"`
	Timestamp int64  `json:"timestamp"`
}
