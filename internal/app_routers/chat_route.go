package approuters

import (
	"minchat/internal/configuration"

	"github.com/gin-gonic/gin"
)

// ChatRouters sets up the conversation API routes
func ChatRouters(router *gin.Engine, container *configuration.Container) {
	chatRoute := router.Group("/api")
	{
		chatRoute.POST("/messages", container.ChatHandler.SendMessage)
		chatRoute.PUT("/messages/:messageId", container.ChatHandler.EditMessage)
		chatRoute.DELETE("/messages/:messageId", container.ChatHandler.DeleteMessage)
		chatRoute.GET("/messages", container.ChatHandler.GetConversationHistory)
		chatRoute.GET("/conversations/search", container.ChatHandler.SearchConversations)
	}
}
