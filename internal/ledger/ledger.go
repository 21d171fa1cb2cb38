package ledger

import (
	"context"
	"time"

	"minchat/internal/model"
	"minchat/internal/repo"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// PresenceReader is the ledger's view of live presence. OnMessageSent
// consults it to decide whether a delivery lands already read.
type PresenceReader interface {
	Snapshot(userID string) model.UserPresence
}

// CounterUpdate reports the state of one counter pair after a ledger
// operation. Changed is false when the operation left count and read flag
// as they were; callers skip the counter:changed event in that case.
type CounterUpdate struct {
	OwnerID string
	PeerID  string
	Count   int
	IsRead  bool
	Changed bool
}

// Ledger owns every mutation of the unread counter table. Each pair's
// read-modify-write runs under its stripe lock, so concurrent sends,
// deletes and focus changes on the same pair never lose updates.
type Ledger interface {
	OnMessageSent(ctx context.Context, senderID, receiverID string) (CounterUpdate, error)
	OnMessageDeleted(ctx context.Context, senderID, receiverID string) (CounterUpdate, error)
	OnFocusChange(ctx context.Context, userID, newPeerID, prevPeerID string) ([]CounterUpdate, error)
	OnUserWentOffline(userID string)
}

type counterLedger struct {
	counters repo.CounterRepository
	presence PresenceReader
	locks    *pairLocks
	logger   *zap.Logger
}

func NewLedger(counters repo.CounterRepository, presence PresenceReader, logger *zap.Logger) Ledger {
	return &counterLedger{
		counters: counters,
		presence: presence,
		locks:    newPairLocks(),
		logger:   logger,
	}
}

func (l *counterLedger) OnMessageSent(ctx context.Context, senderID, receiverID string) (CounterUpdate, error) {
	unlock := l.locks.lock(model.PairKey(receiverID, senderID))
	defer unlock()

	counter, err := l.loadOrCreate(ctx, receiverID, senderID)
	if err != nil {
		return CounterUpdate{}, err
	}

	prevCount, prevRead := counter.Count, counter.IsRead

	snapshot := l.presence.Snapshot(receiverID)
	if snapshot.IsActive && snapshot.FocusedOn(senderID) {
		// Receiver has this exact conversation open: the message lands read.
		counter.Count = 0
		counter.IsRead = true
	} else {
		counter.Count++
		counter.IsRead = false
	}
	counter.UpdatedAt = time.Now().UTC()

	if err := l.counters.Upsert(ctx, counter); err != nil {
		return CounterUpdate{}, errors.Wrap(err, "ledger.OnMessageSent.Upsert")
	}

	l.logger.Debug("counter advanced on send",
		zap.String("owner_id", counter.OwnerID),
		zap.String("peer_id", counter.PeerID),
		zap.Int("count", counter.Count),
		zap.Bool("is_read", counter.IsRead),
	)
	return updateFrom(counter, prevCount, prevRead), nil
}

func (l *counterLedger) OnMessageDeleted(ctx context.Context, senderID, receiverID string) (CounterUpdate, error) {
	unlock := l.locks.lock(model.PairKey(receiverID, senderID))
	defer unlock()

	counter, err := l.loadOrCreate(ctx, receiverID, senderID)
	if err != nil {
		return CounterUpdate{}, err
	}

	if counter.Count == 0 {
		// Nothing to roll back; the read flag stays as it is.
		return updateFrom(counter, counter.Count, counter.IsRead), nil
	}

	prevCount, prevRead := counter.Count, counter.IsRead
	counter.Count--
	counter.UpdatedAt = time.Now().UTC()

	if err := l.counters.Upsert(ctx, counter); err != nil {
		return CounterUpdate{}, errors.Wrap(err, "ledger.OnMessageDeleted.Upsert")
	}

	l.logger.Debug("counter rolled back on delete",
		zap.String("owner_id", counter.OwnerID),
		zap.String("peer_id", counter.PeerID),
		zap.Int("count", counter.Count),
	)
	return updateFrom(counter, prevCount, prevRead), nil
}

// OnFocusChange settles both sides of a focus transition. The pair losing
// focus drops its read flag, the pair gaining focus is marked fully read.
// Empty peer ids mean no conversation on that side of the transition. The
// two pairs are handled one after the other, never under nested locks, so
// a partial failure leaves the already-committed update in the returned
// slice alongside the error.
func (l *counterLedger) OnFocusChange(ctx context.Context, userID, newPeerID, prevPeerID string) ([]CounterUpdate, error) {
	updates := make([]CounterUpdate, 0, 2)

	if prevPeerID != "" && prevPeerID != newPeerID {
		update, err := l.leaveConversation(ctx, userID, prevPeerID)
		if err != nil {
			return updates, err
		}
		updates = append(updates, update)
	}

	if newPeerID != "" {
		update, err := l.openConversation(ctx, userID, newPeerID)
		if err != nil {
			return updates, err
		}
		updates = append(updates, update)
	}

	return updates, nil
}

// OnUserWentOffline mutates no counters; the presence flag alone governs
// how future sends land.
func (l *counterLedger) OnUserWentOffline(userID string) {
	l.logger.Debug("user went offline, counters untouched",
		zap.String("user_id", userID),
	)
}

func (l *counterLedger) openConversation(ctx context.Context, userID, peerID string) (CounterUpdate, error) {
	unlock := l.locks.lock(model.PairKey(userID, peerID))
	defer unlock()

	counter, err := l.loadOrCreate(ctx, userID, peerID)
	if err != nil {
		return CounterUpdate{}, err
	}

	prevCount, prevRead := counter.Count, counter.IsRead
	counter.Count = 0
	counter.IsRead = true
	counter.UpdatedAt = time.Now().UTC()

	if err := l.counters.Upsert(ctx, counter); err != nil {
		return CounterUpdate{}, errors.Wrap(err, "ledger.openConversation.Upsert")
	}

	l.logger.Debug("conversation opened",
		zap.String("owner_id", counter.OwnerID),
		zap.String("peer_id", counter.PeerID),
	)
	return updateFrom(counter, prevCount, prevRead), nil
}

func (l *counterLedger) leaveConversation(ctx context.Context, userID, peerID string) (CounterUpdate, error) {
	unlock := l.locks.lock(model.PairKey(userID, peerID))
	defer unlock()

	counter, err := l.loadOrCreate(ctx, userID, peerID)
	if err != nil {
		return CounterUpdate{}, err
	}

	prevCount, prevRead := counter.Count, counter.IsRead
	counter.IsRead = false
	counter.UpdatedAt = time.Now().UTC()

	if err := l.counters.Upsert(ctx, counter); err != nil {
		return CounterUpdate{}, errors.Wrap(err, "ledger.leaveConversation.Upsert")
	}

	l.logger.Debug("conversation left",
		zap.String("owner_id", counter.OwnerID),
		zap.String("peer_id", counter.PeerID),
	)
	return updateFrom(counter, prevCount, prevRead), nil
}

func (l *counterLedger) loadOrCreate(ctx context.Context, ownerID, peerID string) (*model.UnreadCounter, error) {
	counter, err := l.counters.Get(ctx, ownerID, peerID)
	if err != nil {
		return nil, errors.Wrap(err, "ledger.loadOrCreate.Get")
	}
	if counter == nil {
		counter = model.NewUnreadCounter(ownerID, peerID)
	}
	return counter, nil
}

func updateFrom(counter *model.UnreadCounter, prevCount int, prevRead bool) CounterUpdate {
	return CounterUpdate{
		OwnerID: counter.OwnerID,
		PeerID:  counter.PeerID,
		Count:   counter.Count,
		IsRead:  counter.IsRead,
		Changed: counter.Count != prevCount || counter.IsRead != prevRead,
	}
}
