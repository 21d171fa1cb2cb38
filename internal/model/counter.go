package model

import (
	"time"
)

// UnreadCounter is the unread-message bookkeeping record for one directed
// relationship: the count of messages OwnerID has accumulated from PeerID.
// At most one record exists per ordered (owner, peer) pair; records are
// created lazily on first interaction and reset to zero, never deleted.
type UnreadCounter struct {
	OwnerID   string    `json:"ownerId" bson:"owner_id"`
	PeerID    string    `json:"peerId" bson:"peer_id"`
	Count     int       `json:"count" bson:"count"`
	IsRead    bool      `json:"isRead" bson:"is_read"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updated_at"`
}

// NewUnreadCounter returns the lazily-created zero state for a pair.
func NewUnreadCounter(ownerID, peerID string) *UnreadCounter {
	return &UnreadCounter{
		OwnerID: ownerID,
		PeerID:  peerID,
		Count:   0,
		IsRead:  false,
	}
}

// PairKey is the canonical identity of a directed counter pair. Every
// call site that locks or stores a pair must derive its key here so the
// orientation stays consistent across the codebase.
func PairKey(ownerID, peerID string) string {
	return ownerID + "|" + peerID
}
