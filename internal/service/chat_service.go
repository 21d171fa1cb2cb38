package service

import (
	"context"
	"time"

	"minchat/internal/event"
	"minchat/internal/ledger"
	"minchat/internal/model"
	"minchat/internal/presence"
	"minchat/internal/repo"
	apperrors "minchat/pkg/errors"

	"go.uber.org/zap"
)

// SendMessageInput carries one outbound message. Exactly one of Content
// and GifURL must be non-empty.
type SendMessageInput struct {
	SenderID   string
	ReceiverID string
	Content    *string
	GifURL     *string
}

// HistoryQuery selects a window of a two-user conversation. A zero Before
// means "now"; an empty SortOrder means newest first.
type HistoryQuery struct {
	UserID    string
	PeerID    string
	Before    time.Time
	Limit     int
	SortOrder string
}

// ConversationHistory is a history window plus the peer's live presence
// flag, so clients can render the online dot with the same response.
type ConversationHistory struct {
	Messages     []model.Message `json:"messages"`
	PeerIsActive bool            `json:"peerIsActive"`
}

// ChatService is the conversation core: message lifecycle, history and
// search reads, and the presence-driven commands the socket layer feeds
// in. Mutating pipelines are deliberately non-transactional; each step's
// side effects stand even when a later step fails.
type ChatService interface {
	SendMessage(ctx context.Context, input SendMessageInput) (*model.Message, error)
	EditMessage(ctx context.Context, messageID, requesterID, content string) (*model.Message, error)
	DeleteMessage(ctx context.Context, messageID, requesterID string) error
	GetConversationHistory(ctx context.Context, query HistoryQuery) (*ConversationHistory, error)
	SearchConversations(ctx context.Context, userID, query string) ([]model.Message, error)
	ChangeFocus(ctx context.Context, userID, peerID string) error
	SetStatusMessage(ctx context.Context, userID, text string) error
	SetActive(ctx context.Context, userID string, active bool) error
}

type chatService struct {
	messages repo.MessageRepository
	ledger   ledger.Ledger
	tracker  *presence.Tracker
	notifier event.Notifier
	stamps   *stampSource
	logger   *zap.Logger
}

func NewChatService(
	messages repo.MessageRepository,
	counterLedger ledger.Ledger,
	tracker *presence.Tracker,
	notifier event.Notifier,
	logger *zap.Logger,
) ChatService {
	return &chatService{
		messages: messages,
		ledger:   counterLedger,
		tracker:  tracker,
		notifier: notifier,
		stamps:   &stampSource{},
		logger:   logger,
	}
}

// SendMessage validates, persists and announces one message, then settles
// the receiver's unread counter. The counter step failing does not undo
// the insert or the message:new event; it surfaces as the operation's
// error with the counter:changed event suppressed.
func (s *chatService) SendMessage(ctx context.Context, input SendMessageInput) (*model.Message, error) {
	if input.SenderID == "" || input.ReceiverID == "" {
		return nil, apperrors.ErrMissingUserID
	}
	if input.SenderID == input.ReceiverID {
		return nil, apperrors.ErrSelfConversation
	}

	content := normalize(input.Content)
	gifURL := normalize(input.GifURL)
	if (content == nil) == (gifURL == nil) {
		return nil, apperrors.ErrContentConflict
	}

	msg := &model.Message{
		SenderID:   input.SenderID,
		ReceiverID: input.ReceiverID,
		Content:    content,
		GifURL:     gifURL,
		SentAt:     s.stamps.next(),
	}

	persisted, err := s.messages.Insert(ctx, msg)
	if err != nil {
		s.logger.Error("message insert failed",
			zap.String("sender_id", input.SenderID),
			zap.String("receiver_id", input.ReceiverID),
			zap.Error(err),
		)
		return nil, apperrors.PersistenceFailure(err)
	}

	s.notifier.NotifyNewMessage(persisted)

	update, err := s.ledger.OnMessageSent(ctx, persisted.SenderID, persisted.ReceiverID)
	if err != nil {
		s.logger.Error("counter settle failed after send, message stands",
			zap.String("message_id", persisted.ID),
			zap.Error(err),
		)
		return nil, apperrors.PersistenceFailure(err)
	}
	if update.Changed {
		s.notifier.NotifyCountChanged(update.OwnerID, update.PeerID, update.Count, update.IsRead)
	}

	s.logger.Debug("message sent",
		zap.String("message_id", persisted.ID),
		zap.String("sender_id", persisted.SenderID),
		zap.String("receiver_id", persisted.ReceiverID),
	)
	return persisted, nil
}

// EditMessage replaces the content of the requester's own text message.
// Gif messages have no editable content. SentAt and the unread counters
// are untouched; edits do not change what is unread.
func (s *chatService) EditMessage(ctx context.Context, messageID, requesterID, content string) (*model.Message, error) {
	if messageID == "" {
		return nil, apperrors.ErrMissingMessageID
	}
	if requesterID == "" {
		return nil, apperrors.ErrMissingUserID
	}
	if content == "" {
		return nil, apperrors.ErrEmptyContent
	}

	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, apperrors.PersistenceFailure(err)
	}
	if msg == nil {
		return nil, apperrors.ErrMessageNotFound
	}
	if msg.SenderID != requesterID {
		return nil, apperrors.ErrNotMessageOwner
	}
	if msg.IsGif() {
		return nil, apperrors.ErrGifNotEditable
	}

	editedAt := time.Now().UTC()
	updated, err := s.messages.UpdateContent(ctx, messageID, content, editedAt)
	if err != nil {
		return nil, apperrors.PersistenceFailure(err)
	}
	if !updated {
		return nil, apperrors.ErrMessageNotFound
	}

	s.notifier.NotifyEdited(messageID, content, editedAt)

	msg.Content = &content
	msg.EditedAt = &editedAt

	s.logger.Debug("message edited", zap.String("message_id", messageID))
	return msg, nil
}

// DeleteMessage removes the requester's own message, announces the
// removal, then rolls the receiver's unread counter back one. As with
// sends, a counter failure leaves the deletion and its event in place.
func (s *chatService) DeleteMessage(ctx context.Context, messageID, requesterID string) error {
	if messageID == "" {
		return apperrors.ErrMissingMessageID
	}
	if requesterID == "" {
		return apperrors.ErrMissingUserID
	}

	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return apperrors.PersistenceFailure(err)
	}
	if msg == nil {
		return apperrors.ErrMessageNotFound
	}
	if msg.SenderID != requesterID {
		return apperrors.ErrNotMessageOwner
	}

	deleted, err := s.messages.Delete(ctx, messageID)
	if err != nil {
		return apperrors.PersistenceFailure(err)
	}
	if !deleted {
		return apperrors.ErrMessageNotFound
	}

	s.notifier.NotifyDeleted(messageID)

	update, err := s.ledger.OnMessageDeleted(ctx, msg.SenderID, msg.ReceiverID)
	if err != nil {
		s.logger.Error("counter rollback failed after delete, deletion stands",
			zap.String("message_id", messageID),
			zap.Error(err),
		)
		return apperrors.PersistenceFailure(err)
	}
	if update.Changed {
		s.notifier.NotifyCountChanged(update.OwnerID, update.PeerID, update.Count, update.IsRead)
	}

	s.logger.Debug("message deleted", zap.String("message_id", messageID))
	return nil
}

// GetConversationHistory returns a window of messages between two users,
// newest first unless asked otherwise, plus the peer's live active flag.
// Repeated calls with the same arguments return the same window; there is
// no cursor state. An empty conversation is an empty window, not an error.
func (s *chatService) GetConversationHistory(ctx context.Context, query HistoryQuery) (*ConversationHistory, error) {
	if query.UserID == "" || query.PeerID == "" {
		return nil, apperrors.ErrMissingUserID
	}
	if query.Limit <= 0 {
		return nil, apperrors.ErrInvalidLimit
	}

	sortOrder, err := parseSortOrder(query.SortOrder)
	if err != nil {
		return nil, err
	}

	before := query.Before
	if before.IsZero() {
		before = time.Now().UTC()
	}

	messages, err := s.messages.ListBetween(ctx, query.UserID, query.PeerID, before, query.Limit, sortOrder)
	if err != nil {
		return nil, apperrors.PersistenceFailure(err)
	}
	if messages == nil {
		messages = []model.Message{}
	}

	return &ConversationHistory{
		Messages:     messages,
		PeerIsActive: s.tracker.Snapshot(query.PeerID).IsActive,
	}, nil
}

// SearchConversations matches the user's sent and received messages
// whose content contains query, case-insensitively. No match is an empty
// result, not an error.
func (s *chatService) SearchConversations(ctx context.Context, userID, query string) ([]model.Message, error) {
	if userID == "" {
		return nil, apperrors.ErrMissingUserID
	}
	if query == "" {
		return nil, apperrors.ErrEmptyQuery
	}

	messages, err := s.messages.Search(ctx, userID, query)
	if err != nil {
		return nil, apperrors.PersistenceFailure(err)
	}
	if messages == nil {
		messages = []model.Message{}
	}
	return messages, nil
}

// ChangeFocus records which conversation the user has open and settles
// the counters on both sides of the transition, emitting a counter event
// per pair that actually moved.
func (s *chatService) ChangeFocus(ctx context.Context, userID, peerID string) error {
	if userID == "" {
		return apperrors.ErrMissingUserID
	}
	if peerID == userID {
		return apperrors.ErrSelfConversation
	}

	previous := s.tracker.SetFocus(ctx, userID, peerID)

	updates, err := s.ledger.OnFocusChange(ctx, userID, peerID, previous)
	for _, update := range updates {
		if update.Changed {
			s.notifier.NotifyCountChanged(update.OwnerID, update.PeerID, update.Count, update.IsRead)
		}
	}
	if err != nil {
		s.logger.Error("focus change settled partially",
			zap.String("user_id", userID),
			zap.String("peer_id", peerID),
			zap.Error(err),
		)
		return apperrors.PersistenceFailure(err)
	}
	return nil
}

// SetStatusMessage updates the user's status line and announces it.
func (s *chatService) SetStatusMessage(ctx context.Context, userID, text string) error {
	if userID == "" {
		return apperrors.ErrMissingUserID
	}

	snapshot := s.tracker.SetStatusMessage(ctx, userID, text)
	s.notifier.NotifyStatusMessage(snapshot.UserID, snapshot.StatusMessage)
	return nil
}

// SetActive flips the user's live flag and always announces the result,
// even when the flag did not change, so reconnecting clients resync from
// the event alone.
func (s *chatService) SetActive(ctx context.Context, userID string, active bool) error {
	if userID == "" {
		return apperrors.ErrMissingUserID
	}

	snapshot := s.tracker.SetActive(ctx, userID, active)
	s.notifier.NotifyPresenceChanged(snapshot.UserID, snapshot.IsActive)

	if !active {
		s.ledger.OnUserWentOffline(userID)
	}
	return nil
}

func parseSortOrder(raw string) (repo.SortOrder, error) {
	switch raw {
	case "", string(repo.SortDescending):
		return repo.SortDescending, nil
	case string(repo.SortAscending):
		return repo.SortAscending, nil
	default:
		return "", apperrors.ErrInvalidSortOrder
	}
}

func normalize(value *string) *string {
	if value == nil || *value == "" {
		return nil
	}
	return value
}
