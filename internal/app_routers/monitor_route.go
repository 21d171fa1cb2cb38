package approuters

import (
	"minchat/internal/configuration"
	"minchat/internal/handler"
	"minchat/internal/hub"

	"github.com/gin-gonic/gin"
)

// MonitorRouters sets up monitoring API routes
func MonitorRouters(router *gin.Engine, container *configuration.Container) {
	// Create monitor service with hub reference
	monitorService := hub.NewMonitorService(container.Hub)

	// Create monitor handler
	monitorHandler := handler.NewMonitorHandler(monitorService)

	// Monitor API group
	monitorGroup := router.Group("/api")
	{
		// GET /api/status - Get hub statistics
		monitorGroup.GET("/status", monitorHandler.GetHubStats)
	}
}
