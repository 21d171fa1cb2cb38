package approuters

import (
	"minchat/internal/configuration"

	"github.com/gin-gonic/gin"
)

// PresenceRouters sets up the presence and focus API routes
func PresenceRouters(router *gin.Engine, container *configuration.Container) {
	presenceRoute := router.Group("/api/presence")
	{
		presenceRoute.POST("/focus", container.PresenceHandler.ChangeFocus)
		presenceRoute.POST("/status", container.PresenceHandler.UpdateStatus)
	}
}
