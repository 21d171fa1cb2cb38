package hub

import (
	"time"

	"minchat/internal/model"
)

// MonitorService provides methods to gather hub statistics
type MonitorService struct {
	hub *Hub
}

// NewMonitorService creates a new monitor service
func NewMonitorService(hub *Hub) *MonitorService {
	return &MonitorService{hub: hub}
}

// GetStats gathers and returns all hub statistics
func (ms *MonitorService) GetStats() model.MonitorResponse {
	connectionStats := ms.getConnectionStats()
	clients := ms.getClientList()

	// Determine overall health status
	status := "healthy"
	if connectionStats.TotalConnected == 0 {
		status = "idle"
	}

	return model.MonitorResponse{
		Status:      status,
		Connections: connectionStats,
		Clients:     clients,
	}
}

func (ms *MonitorService) getConnectionStats() model.ConnectionStats {
	ms.hub.clientsMu.RLock()
	defer ms.hub.clientsMu.RUnlock()

	return model.ConnectionStats{
		TotalConnected: len(ms.hub.clients),
	}
}

// getClientList returns list of all connected clients
func (ms *MonitorService) getClientList() []model.ClientInfo {
	ms.hub.clientsMu.RLock()
	defer ms.hub.clientsMu.RUnlock()

	clients := make([]model.ClientInfo, 0, len(ms.hub.clients))

	for _, client := range ms.hub.clients {
		clients = append(clients, model.ClientInfo{
			ClientID:    client.ID,
			UserID:      client.userID,
			ConnectedAt: client.connectedAt.Format(time.RFC3339),
		})
	}

	return clients
}
