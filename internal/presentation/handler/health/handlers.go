package health

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/signalcraft/beacon/internal/infrastructure/json"
	"github.com/signalcraft/beacon/internal/registry"
	"github.com/signalcraft/beacon/internal/ws"
)

var (
	startTime       = time.Now()
	healthy   int32 = 1 // 1 = healthy, 0 = unhealthy
)

// SetHealthy flips the reported liveness, used during shutdown to drain
// load balancer traffic.
func SetHealthy(ok bool) {
	if ok {
		atomic.StoreInt32(&healthy, 1)
	} else {
		atomic.StoreInt32(&healthy, 0)
	}
}

type Handler struct {
	registry *registry.RoomRegistry
	hub      *ws.Hub
}

func NewHandler(reg *registry.RoomRegistry, hub *ws.Hub) *Handler {
	return &Handler{
		registry: reg,
		hub:      hub,
	}
}

func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	rooms, peersByRole := h.registry.Stats()

	peers := make(map[string]int, len(peersByRole))
	for role, count := range peersByRole {
		peers[string(role)] = count
	}

	resp := healthResponse{
		Status:            "ok",
		Timestamp:         time.Now().UTC().Format(time.RFC3339),
		Uptime:            time.Since(startTime).Round(time.Second).String(),
		ActiveRooms:       rooms,
		ActiveConnections: h.hub.ConnectionCount(),
		PeersByRole:       peers,
	}

	if atomic.LoadInt32(&healthy) == 0 {
		resp.Status = "unhealthy"
		json.Write(w, http.StatusServiceUnavailable, resp)
		return
	}

	json.Write(w, http.StatusOK, resp)
}
