// Package ws drives the per-connection signaling lifecycle: a connection
// registers into a room, then discovers peers, updates its metadata and
// exchanges directed messages until it disconnects. All state transitions
// for one connection happen on its own read goroutine.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/signalcraft/beacon/internal/discovery"
	"github.com/signalcraft/beacon/internal/domain"
	"github.com/signalcraft/beacon/internal/identity"
	"github.com/signalcraft/beacon/internal/infrastructure/events"
	"github.com/signalcraft/beacon/internal/infrastructure/logging"
	"github.com/signalcraft/beacon/internal/infrastructure/metrics"
	"github.com/signalcraft/beacon/internal/infrastructure/validate"
	"github.com/signalcraft/beacon/internal/registry"
	"github.com/signalcraft/beacon/internal/router"
)

var (
	validatePeerID = validate.Field("peer_id",
		validate.Required(),
		validate.LengthBetween(1, 128),
		validate.Identifier(),
	)
	validateRoomID = validate.Field("room_id", validate.Required(), validate.NoSpaces())
	validateToken  = validate.Field("join_token", validate.Required(), validate.NoSpaces())
)

type connKey struct {
	roomID string
	peerID string
}

// Hub owns the table of live connections on this instance and applies
// every inbound signaling message against the registry, the discovery
// engine and the router.
type Hub struct {
	registry   *registry.RoomRegistry
	router     router.Router
	verifier   identity.Verifier
	presence   router.PresenceStore
	publisher  *events.RoomPublisher
	logger     logging.Logger
	instanceID string

	mu    sync.RWMutex
	conns map[connKey]*Client
}

func NewHub(
	reg *registry.RoomRegistry,
	verifier identity.Verifier,
	presence router.PresenceStore,
	publisher *events.RoomPublisher,
	logger logging.Logger,
	instanceID string,
) *Hub {
	return &Hub{
		registry:   reg,
		verifier:   verifier,
		presence:   presence,
		publisher:  publisher,
		logger:     logger,
		instanceID: instanceID,
		conns:      make(map[connKey]*Client),
	}
}

// SetRouter wires the message router after construction; the router needs
// the hub as its connection table, so the two are linked in main.
func (h *Hub) SetRouter(r router.Router) {
	h.router = r
}

// Lookup implements router.ConnTable.
func (h *Hub) Lookup(roomID, peerID string) (router.PeerConn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, ok := h.conns[connKey{roomID: roomID, peerID: peerID}]
	return client, ok
}

func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Serve runs the lifecycle of one upgraded connection. Blocks until the
// connection closes.
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn) {
	client := NewClient(conn, h)

	metrics.ConnectionsTotal.Inc()
	metrics.ActiveConnections.Inc()

	go client.WritePump()
	client.ReadPump(ctx)
}

// Dispatch applies one raw inbound envelope. Unknown and malformed
// messages share the single validation-error path; the connection always
// stays open.
func (h *Hub) Dispatch(ctx context.Context, c *Client, raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.reply(newError(CodeInvalidMessage, "malformed message"))
		return
	}

	switch env.Type {
	case TypeRegister:
		h.handleRegister(ctx, c, raw)
	case TypeDiscoverPeers:
		h.handleDiscover(c, raw)
	case TypeUpdateMetadata:
		h.handleUpdateMetadata(c, raw)
	case TypePeerMessage:
		h.handlePeerMessage(ctx, c, raw)
	case TypeOffer, TypeAnswer, TypeCandidate:
		h.handleNegotiation(ctx, c, raw)
	default:
		c.reply(newError(CodeInvalidMessage, fmt.Sprintf("unknown message type %q", env.Type)))
	}
}

func (h *Hub) handleRegister(ctx context.Context, c *Client, raw []byte) {
	if c.Registered() {
		c.reply(newError(CodeInvalidMessage, "connection already registered"))
		return
	}

	var req registerRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		h.rejectRegistration(c, CodeInvalidMessage, "malformed register message")
		return
	}

	if err := validatePeerID(req.PeerID); err != nil {
		h.rejectRegistration(c, CodeInvalidMessage, err.Error())
		return
	}
	if err := validateRoomID(req.RoomID); err != nil {
		h.rejectRegistration(c, CodeInvalidMessage, err.Error())
		return
	}
	if err := validateToken(req.JoinToken); err != nil {
		h.rejectRegistration(c, CodeInvalidMessage, err.Error())
		return
	}

	role, err := domain.ParseRole(req.Role)
	if err != nil {
		h.rejectRegistration(c, CodeInvalidMessage, fmt.Sprintf("unknown role %q", req.Role))
		return
	}
	if err := domain.ValidateProperties(req.Metadata.Properties); err != nil {
		h.rejectRegistration(c, CodeInvalidMessage, err.Error())
		return
	}

	subject, err := h.verifier.Verify(ctx, req.VerifiedIdentity)
	if err != nil {
		h.rejectRegistration(c, CodeUnauthorized, "identity verification failed")
		return
	}

	room, err := h.registry.LoadOrValidate(ctx, req.RoomID, req.JoinToken)
	if err != nil {
		h.rejectRegistration(c, errorCodeFor(err), err.Error())
		return
	}

	// In cluster mode the presence claim is what makes peer ids unique
	// across instances; the local admission below only guards this
	// process's own room map.
	claimed := false
	if h.presence != nil {
		ok, err := h.presence.Claim(ctx, room.ID, req.PeerID, h.instanceID)
		if err != nil {
			h.rejectRegistration(c, CodeStoreUnavailable, "presence store unavailable")
			return
		}
		if !ok {
			h.rejectRegistration(c, CodeDuplicatePeerID, domain.ErrDuplicatePeerID.Error())
			return
		}
		claimed = true
	}

	if _, err := h.registry.Admit(room, req.PeerID, role, req.Metadata); err != nil {
		if claimed {
			if derr := h.presence.Delete(ctx, room.ID, req.PeerID); derr != nil {
				h.logger.Warn(logging.Redis, logging.ExternalService, "presence claim release failed", map[logging.ExtraKey]any{
					logging.RoomID:       room.ID,
					logging.PeerID:       req.PeerID,
					logging.ErrorMessage: derr.Error(),
				})
			}
		}
		h.rejectRegistration(c, errorCodeFor(err), err.Error())
		return
	}

	c.peerID = req.PeerID
	c.role = role
	c.room = room

	h.mu.Lock()
	h.conns[connKey{roomID: room.ID, peerID: req.PeerID}] = c
	h.mu.Unlock()

	if h.publisher != nil {
		if err := h.publisher.PublishPeerJoined(ctx, room.ID, req.PeerID, string(role), subject); err != nil {
			h.logger.Warn(logging.RabbitMQ, logging.ExternalService, "peer joined event publish failed", map[logging.ExtraKey]any{
				logging.RoomID:       room.ID,
				logging.ErrorMessage: err.Error(),
			})
		}
	}

	metrics.RegistrationsTotal.WithLabelValues("success").Inc()
	h.logger.Info(logging.Signaling, logging.Register, "peer registered", map[logging.ExtraKey]any{
		logging.RoomID: room.ID,
		logging.PeerID: req.PeerID,
	})

	c.reply(newRegisteredAuth(room.ID, req.PeerID))
}

func (h *Hub) rejectRegistration(c *Client, code, reason string) {
	metrics.RegistrationsTotal.WithLabelValues("rejected").Inc()
	c.reply(newError(code, reason))
}

func (h *Hub) handleDiscover(c *Client, raw []byte) {
	if !c.Registered() {
		c.reply(newError(CodeNotInRoom, "register before discovering peers"))
		return
	}

	var req discoverRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		c.reply(newError(CodeInvalidMessage, "malformed discover message"))
		return
	}
	if req.FromPeerID != "" && req.FromPeerID != c.peerID {
		c.reply(newError(CodeUnauthorized, "from_peer_id does not match this connection"))
		return
	}

	filter, err := discovery.ParseFilter(req.Filters)
	if err != nil {
		c.reply(newError(CodeInvalidMessage, err.Error()))
		return
	}

	metrics.DiscoveryQueriesTotal.Inc()
	peers := discovery.Find(c.room, filter)

	c.reply(newPeerList(peers))
}

func (h *Hub) handleUpdateMetadata(c *Client, raw []byte) {
	if !c.Registered() {
		c.reply(newError(CodeNotInRoom, "register before updating metadata"))
		return
	}

	var req updateMetadataRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		c.reply(newError(CodeInvalidMessage, "malformed update_metadata message"))
		return
	}
	if req.PeerID != "" && req.PeerID != c.peerID {
		c.reply(newError(CodeUnauthorized, "peer_id does not match this connection"))
		return
	}
	if err := domain.ValidateProperties(req.Metadata.Properties); err != nil {
		c.reply(newError(CodeInvalidMessage, err.Error()))
		return
	}

	merged, err := h.registry.UpdateMetadata(c.room, c.peerID, req.Metadata)
	if err != nil {
		c.reply(newError(errorCodeFor(err), err.Error()))
		return
	}

	h.logger.Debug(logging.Signaling, logging.Metadata, "peer metadata updated", map[logging.ExtraKey]any{
		logging.RoomID: c.room.ID,
		logging.PeerID: c.peerID,
	})

	c.reply(newMetadataUpdated(merged))
}

func (h *Hub) handlePeerMessage(ctx context.Context, c *Client, raw []byte) {
	var req peerMessageRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		c.reply(newError(CodeInvalidMessage, "malformed peer_message"))
		return
	}

	h.forward(ctx, c, req.FromPeerID, req.ToPeerID, router.KindApplication, raw)
}

func (h *Hub) handleNegotiation(ctx context.Context, c *Client, raw []byte) {
	var req negotiationRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		c.reply(newError(CodeInvalidMessage, "malformed negotiation message"))
		return
	}

	h.forward(ctx, c, req.Sender, req.Target, router.KindNegotiation, raw)
}

// forward runs the shared directed-message path. The raw envelope is the
// payload; the server never interprets it.
func (h *Hub) forward(ctx context.Context, c *Client, from, to string, kind router.MessageKind, raw []byte) {
	if !c.Registered() {
		c.reply(newError(CodeNotInRoom, "register before sending messages"))
		return
	}
	if from != "" && from != c.peerID {
		c.reply(newError(CodeUnauthorized, "sender does not match this connection"))
		return
	}
	if to == "" {
		c.reply(newError(CodeInvalidMessage, "target peer id is required"))
		return
	}

	msg := &router.RoutedMessage{
		FromPeerID: c.peerID,
		ToPeerID:   to,
		RoomID:     c.room.ID,
		Kind:       kind,
		Payload:    raw,
	}

	if err := h.router.Route(ctx, c.room, msg); err != nil {
		h.logger.Debug(logging.Routing, logging.Forward, "message routing failed", map[logging.ExtraKey]any{
			logging.RoomID:       c.room.ID,
			logging.PeerID:       c.peerID,
			logging.TargetPeerID: to,
			logging.ErrorMessage: err.Error(),
		})
		c.reply(newError(errorCodeFor(err), err.Error()))
		return
	}
}

// Disconnect tears one connection down: peer removed, empty room retired,
// presence record dropped, gauges decremented. Safe to call more than
// once; only the first call acts.
func (h *Hub) Disconnect(ctx context.Context, c *Client) {
	c.disconnectOnce.Do(func() {
		c.closeSend()
		metrics.ActiveConnections.Dec()

		if !c.Registered() {
			return
		}

		roomID := c.room.ID

		h.mu.Lock()
		delete(h.conns, connKey{roomID: roomID, peerID: c.peerID})
		h.mu.Unlock()

		h.registry.Remove(c.room, c.peerID, c.role)

		retired, err := h.registry.RetireIfEmpty(ctx, roomID)
		if err != nil {
			h.logger.Error(logging.Registry, logging.Disconnect, "room retirement failed", map[logging.ExtraKey]any{
				logging.RoomID:       roomID,
				logging.ErrorMessage: err.Error(),
			})
		}

		if h.presence != nil {
			if err := h.presence.Delete(ctx, roomID, c.peerID); err != nil {
				h.logger.Warn(logging.Redis, logging.ExternalService, "presence record delete failed", map[logging.ExtraKey]any{
					logging.RoomID:       roomID,
					logging.PeerID:       c.peerID,
					logging.ErrorMessage: err.Error(),
				})
			}
		}
		if h.publisher != nil {
			if err := h.publisher.PublishPeerLeft(ctx, roomID, c.peerID, string(c.role)); err != nil {
				h.logger.Warn(logging.RabbitMQ, logging.ExternalService, "peer left event publish failed", map[logging.ExtraKey]any{
					logging.RoomID:       roomID,
					logging.ErrorMessage: err.Error(),
				})
			}
			if retired {
				if err := h.publisher.PublishRoomDeleted(ctx, roomID); err != nil {
					h.logger.Warn(logging.RabbitMQ, logging.ExternalService, "room deleted event publish failed", map[logging.ExtraKey]any{
						logging.RoomID:       roomID,
						logging.ErrorMessage: err.Error(),
					})
				}
			}
		}

		h.logger.Info(logging.Signaling, logging.Disconnect, "peer disconnected", map[logging.ExtraKey]any{
			logging.RoomID: roomID,
			logging.PeerID: c.peerID,
		})
	})
}

func (h *Hub) logReadError(c *Client, err error) {
	extra := map[logging.ExtraKey]any{
		logging.ErrorMessage: err.Error(),
	}
	if c.Registered() {
		extra[logging.RoomID] = c.room.ID
		extra[logging.PeerID] = c.peerID
	}
	h.logger.Warn(logging.Signaling, logging.Disconnect, "connection read error", extra)
}
