package model

import (
	"time"
)

// Message represents a direct message between two users in MongoDB.
// Exactly one of Content/GifURL is set at creation; Content is mutable
// via edit by the sender only, SentAt never changes after insert.
type Message struct {
	ID         string     `json:"id" bson:"_id,omitempty"`
	SenderID   string     `json:"senderId" bson:"sender_id"`
	ReceiverID string     `json:"receiverId" bson:"receiver_id"`
	Content    *string    `json:"content" bson:"content"`
	GifURL     *string    `json:"gifUrl" bson:"gif_url"`
	SentAt     time.Time  `json:"sentAt" bson:"sent_at"`
	EditedAt   *time.Time `json:"editedAt" bson:"edited_at"`
}

// IsGif reports whether the message carries a gif reference instead of text.
func (m *Message) IsGif() bool {
	return m.GifURL != nil && *m.GifURL != ""
}

// ErrorPayload represents an error response sent to a client via WebSocket
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
