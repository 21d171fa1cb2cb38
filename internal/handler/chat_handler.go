package handler

import (
	"net/http"
	"strconv"
	"time"

	"minchat/internal/service"

	"github.com/gin-gonic/gin"
)

const defaultHistoryCount = 20

type ChatHandler interface {
	SendMessage(c *gin.Context)
	EditMessage(c *gin.Context)
	DeleteMessage(c *gin.Context)
	GetConversationHistory(c *gin.Context)
	SearchConversations(c *gin.Context)
}

type chatHandler struct {
	service service.ChatService
}

func NewChatHandler(service service.ChatService) ChatHandler {
	return &chatHandler{
		service: service,
	}
}

type sendMessageRequest struct {
	ReceiverID string  `json:"receiverId"`
	Content    *string `json:"content"`
	GifURL     *string `json:"gifUrl"`
}

type editMessageRequest struct {
	Content string `json:"content"`
}

func (h *chatHandler) SendMessage(c *gin.Context) {
	userID, ok := requesterID(c)
	if !ok {
		return
	}

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	msg, err := h.service.SendMessage(c.Request.Context(), service.SendMessageInput{
		SenderID:   userID,
		ReceiverID: req.ReceiverID,
		Content:    req.Content,
		GifURL:     req.GifURL,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": msg,
	})
}

func (h *chatHandler) EditMessage(c *gin.Context) {
	userID, ok := requesterID(c)
	if !ok {
		return
	}

	var req editMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	msg, err := h.service.EditMessage(c.Request.Context(), c.Param("messageId"), userID, req.Content)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": msg,
	})
}

func (h *chatHandler) DeleteMessage(c *gin.Context) {
	userID, ok := requesterID(c)
	if !ok {
		return
	}

	if err := h.service.DeleteMessage(c.Request.Context(), c.Param("messageId"), userID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Message deleted successfully",
	})
}

func (h *chatHandler) GetConversationHistory(c *gin.Context) {
	userID, ok := requesterID(c)
	if !ok {
		return
	}

	count := c.DefaultQuery("count", strconv.Itoa(defaultHistoryCount))
	limit, err := strconv.Atoi(count)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid count",
		})
		return
	}

	var before time.Time
	if raw := c.Query("before"); raw != "" {
		before, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid before timestamp, expected RFC3339",
			})
			return
		}
	}

	history, err := h.service.GetConversationHistory(c.Request.Context(), service.HistoryQuery{
		UserID:    userID,
		PeerID:    c.Query("userId"),
		Before:    before,
		Limit:     limit,
		SortOrder: c.DefaultQuery("sort", "desc"),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, history)
}

func (h *chatHandler) SearchConversations(c *gin.Context) {
	userID, ok := requesterID(c)
	if !ok {
		return
	}

	msgs, err := h.service.SearchConversations(c.Request.Context(), userID, c.Query("query"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"messages": msgs,
	})
}
