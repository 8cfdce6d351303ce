package rooms

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/signalcraft/beacon/internal/domain"
	"github.com/signalcraft/beacon/internal/identity"
	"github.com/signalcraft/beacon/internal/infrastructure/events"
	"github.com/signalcraft/beacon/internal/infrastructure/json"
	"github.com/signalcraft/beacon/internal/infrastructure/logging"
	"github.com/signalcraft/beacon/internal/registry"
)

const roomEventsLimit = 100

type Handler struct {
	registry  *registry.RoomRegistry
	verifier  identity.Verifier
	publisher *events.RoomPublisher
	audits    domain.RoomAuditRepository
	logger    logging.Logger
}

func NewHandler(
	reg *registry.RoomRegistry,
	verifier identity.Verifier,
	publisher *events.RoomPublisher,
	audits domain.RoomAuditRepository,
	logger logging.Logger,
) *Handler {
	return &Handler{
		registry:  reg,
		verifier:  verifier,
		publisher: publisher,
		audits:    audits,
		logger:    logger,
	}
}

// CreateRoomHandler mints a new room against a verified identity. The
// caller presents its identity token as a bearer credential; the reply
// carries the room id and join token peers need to register.
func (h *Handler) CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	subject, err := h.verifySubject(r)
	if err != nil {
		json.WriteError(w, http.StatusUnauthorized, err, "Missing or invalid identity token")
		return
	}

	ctx := r.Context()

	roomID, joinToken, err := h.registry.CreateRoom(ctx, subject)
	if err != nil {
		h.logger.Error(logging.Registry, logging.ExternalService, "room creation failed", map[logging.ExtraKey]any{
			logging.ErrorMessage: err.Error(),
		})
		json.WriteError(w, http.StatusServiceUnavailable, err, "Room store unavailable")
		return
	}

	if h.publisher != nil {
		if err := h.publisher.PublishRoomCreated(ctx, roomID, subject); err != nil {
			h.logger.Warn(logging.RabbitMQ, logging.ExternalService, "room created event publish failed", map[logging.ExtraKey]any{
				logging.RoomID:       roomID,
				logging.ErrorMessage: err.Error(),
			})
		}
	}

	json.Write(w, http.StatusCreated, createRoomResponse{
		RoomID:    roomID,
		JoinToken: joinToken,
	})
}

// GetRoomHandler reports aggregate state for one room: whether it is
// live on this instance, how many peers it holds and their role mix.
func (h *Handler) GetRoomHandler(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	if roomID == "" {
		json.WriteBadRequestError(w, "room ID is missing")
		return
	}

	room, exists := h.registry.GetRoom(roomID)
	if !exists {
		json.WriteError(w, http.StatusNotFound, domain.ErrRoomNotFound, "Room not found")
		return
	}

	peersByRole := make(map[string]int)
	for _, peer := range room.SnapshotPeers() {
		peersByRole[string(peer.Role)]++
	}

	json.Write(w, http.StatusOK, roomResponse{
		RoomID:    room.ID,
		Active:    true,
		PeerCount: room.PeerCount(),
		Peers:     peersByRole,
		ExpiresAt: room.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// DeleteRoomHandler force-purges the room's durable record so no new
// peer can join. Connected peers keep their sessions until they leave.
func (h *Handler) DeleteRoomHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := h.verifySubject(r); err != nil {
		json.WriteError(w, http.StatusUnauthorized, err, "Missing or invalid identity token")
		return
	}

	roomID := chi.URLParam(r, "roomId")
	if roomID == "" {
		json.WriteBadRequestError(w, "room ID is missing")
		return
	}

	ctx := r.Context()

	if err := h.registry.DeleteRoom(ctx, roomID); err != nil {
		json.WriteError(w, http.StatusServiceUnavailable, err, "Room store unavailable")
		return
	}

	if h.publisher != nil {
		if err := h.publisher.PublishRoomDeleted(ctx, roomID); err != nil {
			h.logger.Warn(logging.RabbitMQ, logging.ExternalService, "room deleted event publish failed", map[logging.ExtraKey]any{
				logging.RoomID:       roomID,
				logging.ErrorMessage: err.Error(),
			})
		}
	}

	json.Write(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// GetRoomEventsHandler returns the audit trail for a room, newest first.
// Only available when the audit pipeline is enabled.
func (h *Handler) GetRoomEventsHandler(w http.ResponseWriter, r *http.Request) {
	if h.audits == nil {
		json.WriteError(w, http.StatusNotFound, errors.New("audit log disabled"), "Audit log is not enabled")
		return
	}

	if _, err := h.verifySubject(r); err != nil {
		json.WriteError(w, http.StatusUnauthorized, err, "Missing or invalid identity token")
		return
	}

	roomID := chi.URLParam(r, "roomId")
	if roomID == "" {
		json.WriteBadRequestError(w, "room ID is missing")
		return
	}

	logs, err := h.audits.GetByRoomID(r.Context(), roomID, roomEventsLimit)
	if err != nil {
		h.logger.Error(logging.Mongo, logging.ExternalService, "audit log query failed", map[logging.ExtraKey]any{
			logging.RoomID:       roomID,
			logging.ErrorMessage: err.Error(),
		})
		json.WriteInternalError(w, err)
		return
	}

	json.Write(w, http.StatusOK, roomEventsResponse{
		RoomID: roomID,
		Events: logs,
	})
}

func (h *Handler) verifySubject(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || token == "" {
		return "", identity.ErrInvalidIdentity
	}

	return h.verifier.Verify(r.Context(), token)
}
