package ws

import (
	"encoding/json"
	"errors"

	"github.com/signalcraft/beacon/internal/discovery"
	"github.com/signalcraft/beacon/internal/domain"
	"github.com/signalcraft/beacon/internal/identity"
)

// Inbound message types
const (
	TypeRegister       = "register"
	TypeDiscoverPeers  = "discover_peers"
	TypeUpdateMetadata = "update_metadata"
	TypePeerMessage    = "peer_message"
	TypeOffer          = "offer"
	TypeAnswer         = "answer"
	TypeCandidate      = "candidate"
)

// Outbound message types
const (
	TypeRegisteredAuth  = "registered_auth"
	TypePeerList        = "peer_list"
	TypeMetadataUpdated = "metadata_updated"
	TypeError           = "error"
)

// Error codes carried on error replies
const (
	CodeInvalidMessage   = "InvalidMessage"
	CodeUnauthorized     = "Unauthorized"
	CodeRoomNotFound     = "RoomNotFound"
	CodeInvalidToken     = "InvalidToken"
	CodeRoomExpired      = "RoomExpired"
	CodeDuplicatePeerID  = "DuplicatePeerId"
	CodePeerNotFound     = "PeerNotFound"
	CodeNotInRoom        = "NotInRoom"
	CodePeerNotInRoom    = "PeerNotInRoom"
	CodeDeliveryFailed   = "DeliveryFailed"
	CodeStoreUnavailable = "StoreUnavailable"
)

type envelope struct {
	Type string `json:"type"`
}

type registerRequest struct {
	PeerID           string          `json:"peer_id"`
	RoomID           string          `json:"room_id"`
	JoinToken        string          `json:"join_token"`
	VerifiedIdentity string          `json:"verified_identity"`
	Role             string          `json:"role,omitempty"`
	Metadata         domain.Metadata `json:"metadata,omitempty"`
}

type discoverRequest struct {
	FromPeerID string          `json:"from_peer_id"`
	Filters    json.RawMessage `json:"filters,omitempty"`
}

type updateMetadataRequest struct {
	PeerID   string          `json:"peer_id"`
	Metadata domain.Metadata `json:"metadata"`
}

// peerMessageRequest is parsed for addressing only; the raw envelope is
// what gets delivered.
type peerMessageRequest struct {
	FromPeerID string `json:"from_peer_id"`
	ToPeerID   string `json:"to_peer_id"`
}

// negotiationRequest covers offer, answer and candidate envelopes. Only
// the addressing fields are read; everything else is relayed untouched.
type negotiationRequest struct {
	Sender string `json:"sender"`
	Target string `json:"target"`
}

type registeredAuthReply struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
	PeerID string `json:"peer_id"`
}

type peerListReply struct {
	Type  string                  `json:"type"`
	Peers []discovery.PeerSummary `json:"peers"`
	Count int                     `json:"count"`
}

type metadataUpdatedReply struct {
	Type     string          `json:"type"`
	Metadata domain.Metadata `json:"metadata"`
}

type errorReply struct {
	Type   string `json:"type"`
	Code   string `json:"code"`
	Reason string `json:"reason,omitempty"`
}

func newRegisteredAuth(roomID, peerID string) registeredAuthReply {
	return registeredAuthReply{Type: TypeRegisteredAuth, RoomID: roomID, PeerID: peerID}
}

func newPeerList(peers []discovery.PeerSummary) peerListReply {
	return peerListReply{Type: TypePeerList, Peers: peers, Count: len(peers)}
}

func newMetadataUpdated(md domain.Metadata) metadataUpdatedReply {
	return metadataUpdatedReply{Type: TypeMetadataUpdated, Metadata: md}
}

func newError(code, reason string) errorReply {
	return errorReply{Type: TypeError, Code: code, Reason: reason}
}

func marshalReply(v any) ([]byte, error) {
	return json.Marshal(v)
}

// errorCodeFor maps domain sentinels onto wire error codes. Anything
// unrecognized is reported as a validation failure rather than leaking
// internals.
func errorCodeFor(err error) string {
	switch {
	case errors.Is(err, identity.ErrInvalidIdentity):
		return CodeUnauthorized
	case errors.Is(err, domain.ErrRoomNotFound):
		return CodeRoomNotFound
	case errors.Is(err, domain.ErrInvalidToken):
		return CodeInvalidToken
	case errors.Is(err, domain.ErrRoomExpired):
		return CodeRoomExpired
	case errors.Is(err, domain.ErrDuplicatePeerID):
		return CodeDuplicatePeerID
	case errors.Is(err, domain.ErrPeerNotFound):
		return CodePeerNotFound
	case errors.Is(err, domain.ErrNotInRoom):
		return CodeNotInRoom
	case errors.Is(err, domain.ErrPeerNotInRoom):
		return CodePeerNotInRoom
	case errors.Is(err, domain.ErrDeliveryFailed):
		return CodeDeliveryFailed
	case errors.Is(err, domain.ErrStoreUnavailable):
		return CodeStoreUnavailable
	}
	return CodeInvalidMessage
}
