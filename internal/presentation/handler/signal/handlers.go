// Package signal upgrades HTTP requests into signaling connections and
// hands them to the hub.
package signal

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/signalcraft/beacon/internal/infrastructure/logging"
	"github.com/signalcraft/beacon/internal/ws"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Authorization happens at registration, not at upgrade.
		return true
	},
}

type Handler struct {
	hub    *ws.Hub
	logger logging.Logger
}

func NewHandler(hub *ws.Hub, logger logging.Logger) *Handler {
	return &Handler{
		hub:    hub,
		logger: logger,
	}
}

func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(logging.Signaling, logging.ExternalService, "websocket upgrade failed", map[logging.ExtraKey]any{
			logging.ClientIp:     r.RemoteAddr,
			logging.ErrorMessage: err.Error(),
		})
		return
	}

	// Serve blocks for the lifetime of the connection; the HTTP handler
	// goroutine is the connection's read goroutine.
	h.hub.Serve(r.Context(), conn)
}
