package health

// healthResponse reports service liveness plus aggregate signaling
// counts. Individual peer identifiers never appear here.
type healthResponse struct {
	Status            string         `json:"status"`
	Timestamp         string         `json:"timestamp"`
	Uptime            string         `json:"uptime"`
	ActiveRooms       int            `json:"active_rooms"`
	ActiveConnections int            `json:"active_connections"`
	PeersByRole       map[string]int `json:"peers_by_role"`
}
