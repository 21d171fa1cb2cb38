package repo

import (
	"context"
	stderrors "errors"
	"time"

	"minchat/internal/db"
	"minchat/internal/model"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// SortOrder controls the timestamp ordering of history reads.
type SortOrder string

const (
	SortAscending  SortOrder = "asc"
	SortDescending SortOrder = "desc"
)

var (
	ErrInvalidRecord = stderrors.New("invalid record: record cannot be nil")
	ErrInvalidID     = stderrors.New("invalid id: cannot be empty")
)

const (
	// Timeouts
	defaultWriteTimeout = 5 * time.Second
	defaultReadTimeout  = 10 * time.Second

	// Retry configuration (reads only; writes surface their first failure)
	maxRetries     = 3
	baseRetryDelay = 100 * time.Millisecond
	maxRetryDelay  = 2 * time.Second

	messageTimeField = "sent_at"
)

type messageRepository struct {
	mongoRepo *db.Repository[model.Message]
	logger    *zap.Logger
}

// MessageRepository is the persistence gateway for Message records.
// Lookups return (nil, nil) when no record exists; Update/Delete report
// whether a record was touched so callers can distinguish missing rows
// from storage failures.
type MessageRepository interface {
	Insert(ctx context.Context, msg *model.Message) (*model.Message, error)
	GetByID(ctx context.Context, id string) (*model.Message, error)
	UpdateContent(ctx context.Context, id string, content string, editedAt time.Time) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
	ListBetween(ctx context.Context, userA, userB string, before time.Time, limit int, sort SortOrder) ([]model.Message, error)
	Search(ctx context.Context, userID, query string) ([]model.Message, error)
}

func NewMessageRepository(repo *db.Repository[model.Message], logger *zap.Logger) MessageRepository {
	return &messageRepository{
		mongoRepo: repo,
		logger:    logger,
	}
}

// -----------------------------------------------------------------------------
// Insert
// -----------------------------------------------------------------------------

// Insert persists a new message. The id is assigned here, before the write,
// so a duplicate attempt can never produce a second record.
func (m *messageRepository) Insert(ctx context.Context, msg *model.Message) (*model.Message, error) {
	if msg == nil {
		return nil, ErrInvalidRecord
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	if _, err := m.mongoRepo.Create(ctx, *msg); err != nil {
		m.logger.Error("failed to insert message",
			zap.Error(err),
			zap.String("message_id", msg.ID),
		)
		return nil, errors.Wrap(err, "messageRepo.Insert.Create")
	}

	m.logger.Debug("message inserted",
		zap.String("message_id", msg.ID),
		zap.String("sender_id", msg.SenderID),
		zap.String("receiver_id", msg.ReceiverID),
	)
	return msg, nil
}

// -----------------------------------------------------------------------------
// GetByID
// -----------------------------------------------------------------------------

func (m *messageRepository) GetByID(ctx context.Context, id string) (*model.Message, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	msg, err := m.mongoRepo.FindOne(ctx, db.NewFilter().Eq("_id", id).Build())
	if err != nil {
		if stderrors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		m.logger.Error("failed to fetch message", zap.Error(err), zap.String("message_id", id))
		return nil, errors.Wrap(err, "messageRepo.GetByID.FindOne")
	}
	return msg, nil
}

// -----------------------------------------------------------------------------
// UpdateContent / Delete
// -----------------------------------------------------------------------------

func (m *messageRepository) UpdateContent(ctx context.Context, id string, content string, editedAt time.Time) (bool, error) {
	if id == "" {
		return false, ErrInvalidID
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	result, err := m.mongoRepo.Update(ctx,
		db.NewFilter().Eq("_id", id).Build(),
		bson.M{"content": content, "edited_at": editedAt},
	)
	if err != nil {
		m.logger.Error("failed to update message content", zap.Error(err), zap.String("message_id", id))
		return false, errors.Wrap(err, "messageRepo.UpdateContent.Update")
	}
	return result.MatchedCount > 0, nil
}

func (m *messageRepository) Delete(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, ErrInvalidID
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	result, err := m.mongoRepo.Delete(ctx, db.NewFilter().Eq("_id", id).Build())
	if err != nil {
		m.logger.Error("failed to delete message", zap.Error(err), zap.String("message_id", id))
		return false, errors.Wrap(err, "messageRepo.Delete.Delete")
	}
	return result.DeletedCount > 0, nil
}

// -----------------------------------------------------------------------------
// ListBetween
// -----------------------------------------------------------------------------

// ListBetween returns messages exchanged between two users with sent_at
// strictly before the cutoff, ordered per sort, capped at limit. The read
// is stateless: identical arguments re-derive identical results.
func (m *messageRepository) ListBetween(ctx context.Context, userA, userB string, before time.Time, limit int, sort SortOrder) ([]model.Message, error) {
	if userA == "" || userB == "" {
		return nil, ErrInvalidID
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().
		Or(
			db.NewFilter().Eq("sender_id", userA).Eq("receiver_id", userB).Build(),
			db.NewFilter().Eq("sender_id", userB).Eq("receiver_id", userA).Build(),
		).
		Lt(messageTimeField, before).
		Build()

	opts := db.QueryOptions{
		SortBy:   messageTimeField,
		SortDesc: sort == SortDescending,
		Limit:    int64(limit),
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			if err := waitForRetry(ctx, attempt); err != nil {
				return nil, err
			}
			m.logger.Warn("retrying conversation read",
				zap.String("user_a", userA),
				zap.String("user_b", userB),
				zap.Int("attempt", attempt+1),
			)
		}

		messages, err := m.mongoRepo.FindAll(ctx, filter, opts)
		if err == nil {
			m.logger.Debug("conversation window read",
				zap.String("user_a", userA),
				zap.String("user_b", userB),
				zap.Int("count", len(messages)),
			)
			return messages, nil
		}

		lastErr = err
		if !isRetryableError(err) {
			break
		}
	}

	m.logger.Error("conversation read failed",
		zap.Error(lastErr),
		zap.String("user_a", userA),
		zap.String("user_b", userB),
	)
	return nil, errors.Wrap(lastErr, "messageRepo.ListBetween.FindAll")
}

// -----------------------------------------------------------------------------
// Search
// -----------------------------------------------------------------------------

// Search returns messages where userID is sender or receiver and the text
// content contains the query, case-insensitively. Gif-only messages carry
// no text and never match.
func (m *messageRepository) Search(ctx context.Context, userID, query string) ([]model.Message, error) {
	if userID == "" {
		return nil, ErrInvalidID
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().
		Or(
			db.NewFilter().Eq("sender_id", userID).Build(),
			db.NewFilter().Eq("receiver_id", userID).Build(),
		).
		Contains("content", query).
		Build()

	opts := db.QueryOptions{SortBy: messageTimeField, SortDesc: true}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			if err := waitForRetry(ctx, attempt); err != nil {
				return nil, err
			}
		}

		messages, err := m.mongoRepo.FindAll(ctx, filter, opts)
		if err == nil {
			m.logger.Debug("message search completed",
				zap.String("user_id", userID),
				zap.Int("count", len(messages)),
			)
			return messages, nil
		}

		lastErr = err
		if !isRetryableError(err) {
			break
		}
	}

	m.logger.Error("message search failed", zap.Error(lastErr), zap.String("user_id", userID))
	return nil, errors.Wrap(lastErr, "messageRepo.Search.FindAll")
}

// -----------------------------------------------------------------------------
// Shared helpers
// -----------------------------------------------------------------------------

func ensureTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hadDeadline := ctx.Deadline(); hadDeadline {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func waitForRetry(ctx context.Context, attempt int) error {
	delay := time.Duration(1<<uint(attempt)) * baseRetryDelay
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "retry wait cancelled")
	case <-timer.C:
		return nil
	}
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Context errors are not retryable
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		return false
	}

	return mongo.IsTimeout(err) || mongo.IsNetworkError(err)
}
