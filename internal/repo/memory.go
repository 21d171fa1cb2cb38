package repo

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"minchat/internal/model"

	"github.com/google/uuid"
)

// Memory-backed gateways with the same contracts as the mongo ones.
// Selected when storage.driver is "memory"; also the substrate the
// service and ledger tests run against.

type memoryMessageRepository struct {
	mu       sync.RWMutex
	messages map[string]*model.Message
}

func NewMemoryMessageRepository() MessageRepository {
	return &memoryMessageRepository{
		messages: make(map[string]*model.Message),
	}
}

func (r *memoryMessageRepository) Insert(ctx context.Context, msg *model.Message) (*model.Message, error) {
	if msg == nil {
		return nil, ErrInvalidRecord
	}

	stored := cloneMessage(msg)
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}

	r.mu.Lock()
	r.messages[stored.ID] = stored
	r.mu.Unlock()

	return cloneMessage(stored), nil
}

func (r *memoryMessageRepository) GetByID(ctx context.Context, id string) (*model.Message, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	msg, ok := r.messages[id]
	if !ok {
		return nil, nil
	}
	return cloneMessage(msg), nil
}

func (r *memoryMessageRepository) UpdateContent(ctx context.Context, id string, content string, editedAt time.Time) (bool, error) {
	if id == "" {
		return false, ErrInvalidID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	msg, ok := r.messages[id]
	if !ok {
		return false, nil
	}
	msg.Content = &content
	edited := editedAt
	msg.EditedAt = &edited
	return true, nil
}

func (r *memoryMessageRepository) Delete(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, ErrInvalidID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.messages[id]; !ok {
		return false, nil
	}
	delete(r.messages, id)
	return true, nil
}

func (r *memoryMessageRepository) ListBetween(ctx context.Context, userA, userB string, before time.Time, limit int, order SortOrder) ([]model.Message, error) {
	if userA == "" || userB == "" {
		return nil, ErrInvalidID
	}

	r.mu.RLock()
	var window []model.Message
	for _, msg := range r.messages {
		if !betweenPair(msg, userA, userB) {
			continue
		}
		if !msg.SentAt.Before(before) {
			continue
		}
		window = append(window, *cloneMessage(msg))
	}
	r.mu.RUnlock()

	sort.SliceStable(window, func(i, j int) bool {
		if order == SortAscending {
			return window[i].SentAt.Before(window[j].SentAt)
		}
		return window[j].SentAt.Before(window[i].SentAt)
	})

	if limit > 0 && len(window) > limit {
		window = window[:limit]
	}
	return window, nil
}

func (r *memoryMessageRepository) Search(ctx context.Context, userID, query string) ([]model.Message, error) {
	if userID == "" {
		return nil, ErrInvalidID
	}

	needle := strings.ToLower(query)

	r.mu.RLock()
	var matches []model.Message
	for _, msg := range r.messages {
		if msg.SenderID != userID && msg.ReceiverID != userID {
			continue
		}
		if msg.Content == nil {
			continue
		}
		if !strings.Contains(strings.ToLower(*msg.Content), needle) {
			continue
		}
		matches = append(matches, *cloneMessage(msg))
	}
	r.mu.RUnlock()

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[j].SentAt.Before(matches[i].SentAt)
	})
	return matches, nil
}

func betweenPair(msg *model.Message, userA, userB string) bool {
	return (msg.SenderID == userA && msg.ReceiverID == userB) ||
		(msg.SenderID == userB && msg.ReceiverID == userA)
}

func cloneMessage(msg *model.Message) *model.Message {
	clone := *msg
	if msg.Content != nil {
		content := *msg.Content
		clone.Content = &content
	}
	if msg.GifURL != nil {
		gif := *msg.GifURL
		clone.GifURL = &gif
	}
	if msg.EditedAt != nil {
		edited := *msg.EditedAt
		clone.EditedAt = &edited
	}
	return &clone
}

type memoryCounterRepository struct {
	mu       sync.RWMutex
	counters map[string]*model.UnreadCounter
}

func NewMemoryCounterRepository() CounterRepository {
	return &memoryCounterRepository{
		counters: make(map[string]*model.UnreadCounter),
	}
}

func (r *memoryCounterRepository) Get(ctx context.Context, ownerID, peerID string) (*model.UnreadCounter, error) {
	if ownerID == "" || peerID == "" {
		return nil, ErrInvalidID
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	counter, ok := r.counters[model.PairKey(ownerID, peerID)]
	if !ok {
		return nil, nil
	}
	clone := *counter
	return &clone, nil
}

func (r *memoryCounterRepository) Upsert(ctx context.Context, counter *model.UnreadCounter) error {
	if counter == nil {
		return ErrInvalidRecord
	}
	if counter.OwnerID == "" || counter.PeerID == "" {
		return ErrInvalidID
	}

	clone := *counter

	r.mu.Lock()
	r.counters[model.PairKey(counter.OwnerID, counter.PeerID)] = &clone
	r.mu.Unlock()

	return nil
}

type memoryPresenceRepository struct {
	mu       sync.RWMutex
	presence map[string]*model.UserPresence
}

func NewMemoryPresenceRepository() PresenceRepository {
	return &memoryPresenceRepository{
		presence: make(map[string]*model.UserPresence),
	}
}

func (r *memoryPresenceRepository) Get(ctx context.Context, userID string) (*model.UserPresence, error) {
	if userID == "" {
		return nil, ErrInvalidID
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	presence, ok := r.presence[userID]
	if !ok {
		return nil, nil
	}
	return clonePresence(presence), nil
}

func (r *memoryPresenceRepository) Upsert(ctx context.Context, presence *model.UserPresence) error {
	if presence == nil {
		return ErrInvalidRecord
	}
	if presence.UserID == "" {
		return ErrInvalidID
	}

	clone := clonePresence(presence)

	r.mu.Lock()
	r.presence[presence.UserID] = clone
	r.mu.Unlock()

	return nil
}

func clonePresence(p *model.UserPresence) *model.UserPresence {
	clone := *p
	if p.FocusedPeerID != nil {
		peer := *p.FocusedPeerID
		clone.FocusedPeerID = &peer
	}
	return &clone
}
