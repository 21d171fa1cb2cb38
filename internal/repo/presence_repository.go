package repo

import (
	"context"
	stderrors "errors"

	"minchat/internal/db"
	"minchat/internal/model"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type presenceRepository struct {
	mongoRepo *db.Repository[model.UserPresence]
	logger    *zap.Logger
}

// PresenceRepository persists the advisory copy of per-user presence.
// The in-process tracker remains authoritative while the process lives;
// the stored record only survives restarts (notably the status message).
type PresenceRepository interface {
	Get(ctx context.Context, userID string) (*model.UserPresence, error)
	Upsert(ctx context.Context, presence *model.UserPresence) error
}

func NewPresenceRepository(repo *db.Repository[model.UserPresence], logger *zap.Logger) PresenceRepository {
	return &presenceRepository{
		mongoRepo: repo,
		logger:    logger,
	}
}

func (r *presenceRepository) Get(ctx context.Context, userID string) (*model.UserPresence, error) {
	if userID == "" {
		return nil, ErrInvalidID
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	presence, err := r.mongoRepo.FindOne(ctx, db.NewFilter().Eq("_id", userID).Build())
	if err != nil {
		if stderrors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		r.logger.Error("failed to fetch presence",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return nil, errors.Wrap(err, "presenceRepo.Get.FindOne")
	}
	return presence, nil
}

func (r *presenceRepository) Upsert(ctx context.Context, presence *model.UserPresence) error {
	if presence == nil {
		return ErrInvalidRecord
	}
	if presence.UserID == "" {
		return ErrInvalidID
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	// _id is seeded from the filter on insert and immutable afterwards,
	// so it never appears in the update document.
	_, err := r.mongoRepo.Upsert(ctx,
		db.NewFilter().Eq("_id", presence.UserID).Build(),
		bson.M{
			"is_active":       presence.IsActive,
			"focused_peer_id": presence.FocusedPeerID,
			"status_message":  presence.StatusMessage,
			"updated_at":      presence.UpdatedAt,
		},
	)
	if err != nil {
		r.logger.Error("failed to upsert presence",
			zap.String("user_id", presence.UserID),
			zap.Error(err),
		)
		return errors.Wrap(err, "presenceRepo.Upsert.Upsert")
	}

	r.logger.Debug("presence persisted",
		zap.String("user_id", presence.UserID),
		zap.Bool("is_active", presence.IsActive),
	)
	return nil
}
