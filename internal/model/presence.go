package model

import (
	"time"
)

// UserPresence tracks whether a user has an open realtime connection and
// which peer conversation, if any, is currently open in their client.
// The live copy is held in-process; the persisted copy is advisory.
type UserPresence struct {
	UserID        string    `json:"userId" bson:"_id"`
	IsActive      bool      `json:"isActive" bson:"is_active"`
	FocusedPeerID *string   `json:"focusedPeerId" bson:"focused_peer_id"`
	StatusMessage string    `json:"statusMessage" bson:"status_message"`
	UpdatedAt     time.Time `json:"updatedAt" bson:"updated_at"`
}

// FocusedOn reports whether the user currently has peerID's conversation open.
func (p *UserPresence) FocusedOn(peerID string) bool {
	return p.FocusedPeerID != nil && *p.FocusedPeerID == peerID
}
