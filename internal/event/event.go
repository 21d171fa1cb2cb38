package event

import (
	"encoding/json"
	"time"

	"minchat/internal/model"
)

// Event Types - Client to Server
const (
	// EventChatFocus - client opened (or closed, empty peerId) a conversation
	EventChatFocus = "chat:focus"

	// EventSetStatus - client changed their status message
	EventSetStatus = "presence:set_status"
)

// Event Types - Server to Client
const (
	// EventNewMessage - a message was sent
	EventNewMessage = "message:new"

	// EventEditedMessage - a message's content was edited by its sender
	EventEditedMessage = "message:edited"

	// EventDeletedMessage - a message was removed by its sender
	EventDeletedMessage = "message:deleted"

	// EventCountChanged - an unread counter moved; always emitted after the
	// mutation event that caused it
	EventCountChanged = "counter:changed"

	// EventPresenceChanged - a user went online or offline
	EventPresenceChanged = "presence:changed"

	// EventStatusMessage - a user changed their status message
	EventStatusMessage = "presence:status_message"
)

// WsEvent is the envelope every socket frame travels in, both directions.
type WsEvent struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// -----------------------------------------------------------------
// Server to Client payloads
// -----------------------------------------------------------------

type NewMessagePayload struct {
	Message *model.Message `json:"message"`
}

type EditedMessagePayload struct {
	MessageID string    `json:"messageId"`
	Content   string    `json:"content"`
	EditedAt  time.Time `json:"editedAt"`
}

type DeletedMessagePayload struct {
	MessageID string `json:"messageId"`
}

type CountChangedPayload struct {
	OwnerID string `json:"ownerId"` // whose unread count this is
	PeerID  string `json:"peerId"`  // the conversation it belongs to
	Count   int    `json:"count"`
	IsRead  bool   `json:"isRead"`
}

type PresenceChangedPayload struct {
	UserID   string `json:"userId"`
	IsActive bool   `json:"isActive"`
}

type StatusMessagePayload struct {
	UserID        string `json:"userId"`
	StatusMessage string `json:"statusMessage"`
}

// -----------------------------------------------------------------
// Client to Server payloads
// -----------------------------------------------------------------

// FocusChangePayload is sent when the client opens a conversation.
// An empty PeerID means no conversation is open anymore.
type FocusChangePayload struct {
	PeerID string `json:"peerId"`
}

type SetStatusPayload struct {
	StatusMessage string `json:"statusMessage"`
}

// Notifier fans events out to every connected realtime client. Implementations
// must preserve the order of calls made from a single goroutine so observers
// never see a derived event (counter delta) before its primary mutation.
type Notifier interface {
	NotifyNewMessage(msg *model.Message)
	NotifyEdited(messageID, newContent string, editedAt time.Time)
	NotifyDeleted(messageID string)
	NotifyCountChanged(ownerID, peerID string, count int, isRead bool)
	NotifyPresenceChanged(userID string, isActive bool)
	NotifyStatusMessage(userID, statusMessage string)
}
