package handler

import (
	"net/http"

	"minchat/internal/service"

	"github.com/gin-gonic/gin"
)

type PresenceHandler interface {
	ChangeFocus(c *gin.Context)
	UpdateStatus(c *gin.Context)
}

type presenceHandler struct {
	service service.ChatService
}

func NewPresenceHandler(service service.ChatService) PresenceHandler {
	return &presenceHandler{
		service: service,
	}
}

type focusRequest struct {
	PeerID string `json:"peerId"`
}

type statusRequest struct {
	IsActive      *bool   `json:"isActive"`
	StatusMessage *string `json:"statusMessage"`
}

// ChangeFocus is the REST twin of the chat:focus socket event; an empty
// peerId closes the open conversation.
func (h *presenceHandler) ChangeFocus(c *gin.Context) {
	userID, ok := requesterID(c)
	if !ok {
		return
	}

	var req focusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	if err := h.service.ChangeFocus(c.Request.Context(), userID, req.PeerID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Focus updated",
	})
}

// UpdateStatus sets the active flag (the explicit logout path), the status
// message, or both.
func (h *presenceHandler) UpdateStatus(c *gin.Context) {
	userID, ok := requesterID(c)
	if !ok {
		return
	}

	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}
	if req.IsActive == nil && req.StatusMessage == nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Nothing to update",
		})
		return
	}

	if req.IsActive != nil {
		if err := h.service.SetActive(c.Request.Context(), userID, *req.IsActive); err != nil {
			respondError(c, err)
			return
		}
	}
	if req.StatusMessage != nil {
		if err := h.service.SetStatusMessage(c.Request.Context(), userID, *req.StatusMessage); err != nil {
			respondError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Presence updated",
	})
}
