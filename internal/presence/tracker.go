package presence

import (
	"context"
	"sync"
	"time"

	"minchat/internal/model"
	"minchat/internal/repo"

	"go.uber.org/zap"
)

// Tracker is the authoritative in-process registry of who is connected,
// which conversation they have open, and their status message. Every
// mutation is written through to the presence store, but store failures
// are logged and swallowed: the live map keeps serving, and only the
// status message is worth recovering after a restart.
type Tracker struct {
	mu       sync.RWMutex
	registry map[string]*model.UserPresence
	store    repo.PresenceRepository
	logger   *zap.Logger
}

func NewTracker(store repo.PresenceRepository, logger *zap.Logger) *Tracker {
	return &Tracker{
		registry: make(map[string]*model.UserPresence),
		store:    store,
		logger:   logger,
	}
}

// SetActive flips the live flag and returns the resulting presence.
// First activation after a restart recovers the stored status message.
// Deactivation clears focus so a reconnect never resumes watching a
// conversation the client no longer shows.
func (t *Tracker) SetActive(ctx context.Context, userID string, active bool) model.UserPresence {
	var stored *model.UserPresence
	if active && !t.known(userID) {
		stored = t.readThrough(ctx, userID)
	}

	t.mu.Lock()
	rec, ok := t.registry[userID]
	if !ok {
		rec = &model.UserPresence{UserID: userID}
		if stored != nil {
			rec.StatusMessage = stored.StatusMessage
		}
		t.registry[userID] = rec
	}
	rec.IsActive = active
	if !active {
		rec.FocusedPeerID = nil
	}
	rec.UpdatedAt = time.Now().UTC()
	snapshot := snapshotOf(rec)
	t.mu.Unlock()

	t.writeThrough(ctx, &snapshot)

	t.logger.Debug("presence updated",
		zap.String("user_id", userID),
		zap.Bool("is_active", active),
	)
	return snapshot
}

// SetFocus swaps the focused conversation and returns the peer that was
// focused before, empty when none. An empty peerID closes the focus.
func (t *Tracker) SetFocus(ctx context.Context, userID, peerID string) string {
	t.mu.Lock()
	rec, ok := t.registry[userID]
	if !ok {
		rec = &model.UserPresence{UserID: userID}
		t.registry[userID] = rec
	}

	previous := ""
	if rec.FocusedPeerID != nil {
		previous = *rec.FocusedPeerID
	}

	if peerID == "" {
		rec.FocusedPeerID = nil
	} else {
		peer := peerID
		rec.FocusedPeerID = &peer
	}
	rec.UpdatedAt = time.Now().UTC()
	snapshot := snapshotOf(rec)
	t.mu.Unlock()

	t.writeThrough(ctx, &snapshot)

	t.logger.Debug("focus changed",
		zap.String("user_id", userID),
		zap.String("peer_id", peerID),
		zap.String("previous_peer_id", previous),
	)
	return previous
}

// SetStatusMessage updates the status line and returns the resulting
// presence.
func (t *Tracker) SetStatusMessage(ctx context.Context, userID, text string) model.UserPresence {
	t.mu.Lock()
	rec, ok := t.registry[userID]
	if !ok {
		rec = &model.UserPresence{UserID: userID}
		t.registry[userID] = rec
	}
	rec.StatusMessage = text
	rec.UpdatedAt = time.Now().UTC()
	snapshot := snapshotOf(rec)
	t.mu.Unlock()

	t.writeThrough(ctx, &snapshot)
	return snapshot
}

// Snapshot returns the live presence for userID. Unknown users read as
// inactive with no focus.
func (t *Tracker) Snapshot(userID string) model.UserPresence {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rec, ok := t.registry[userID]
	if !ok {
		return model.UserPresence{UserID: userID}
	}
	return snapshotOf(rec)
}

func (t *Tracker) known(userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	_, ok := t.registry[userID]
	return ok
}

func (t *Tracker) readThrough(ctx context.Context, userID string) *model.UserPresence {
	stored, err := t.store.Get(ctx, userID)
	if err != nil {
		t.logger.Warn("presence read-through failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return nil
	}
	return stored
}

func (t *Tracker) writeThrough(ctx context.Context, rec *model.UserPresence) {
	if err := t.store.Upsert(ctx, rec); err != nil {
		t.logger.Warn("presence write-through failed",
			zap.String("user_id", rec.UserID),
			zap.Error(err),
		)
	}
}

func snapshotOf(rec *model.UserPresence) model.UserPresence {
	snapshot := *rec
	if rec.FocusedPeerID != nil {
		peer := *rec.FocusedPeerID
		snapshot.FocusedPeerID = &peer
	}
	return snapshot
}
