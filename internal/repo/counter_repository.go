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

type counterRepository struct {
	mongoRepo *db.Repository[model.UnreadCounter]
	logger    *zap.Logger
}

// CounterRepository is the persistence gateway for UnreadCounter records.
// Get returns (nil, nil) when the pair has never interacted; Upsert is the
// single atomic write the ledger performs under its pair lock.
type CounterRepository interface {
	Get(ctx context.Context, ownerID, peerID string) (*model.UnreadCounter, error)
	Upsert(ctx context.Context, counter *model.UnreadCounter) error
}

func NewCounterRepository(repo *db.Repository[model.UnreadCounter], logger *zap.Logger) CounterRepository {
	return &counterRepository{
		mongoRepo: repo,
		logger:    logger,
	}
}

func (r *counterRepository) Get(ctx context.Context, ownerID, peerID string) (*model.UnreadCounter, error) {
	if ownerID == "" || peerID == "" {
		return nil, ErrInvalidID
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	counter, err := r.mongoRepo.FindOne(ctx, pairFilter(ownerID, peerID))
	if err != nil {
		if stderrors.Is(err, mongo.ErrNoDocuments) {
			r.logger.Debug("counter pair not yet created",
				zap.String("owner_id", ownerID),
				zap.String("peer_id", peerID),
			)
			return nil, nil
		}
		r.logger.Error("failed to fetch counter",
			zap.String("owner_id", ownerID),
			zap.String("peer_id", peerID),
			zap.Error(err),
		)
		return nil, errors.Wrap(err, "counterRepo.Get.FindOne")
	}
	return counter, nil
}

func (r *counterRepository) Upsert(ctx context.Context, counter *model.UnreadCounter) error {
	if counter == nil {
		return ErrInvalidRecord
	}
	if counter.OwnerID == "" || counter.PeerID == "" {
		return ErrInvalidID
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	_, err := r.mongoRepo.Upsert(ctx,
		pairFilter(counter.OwnerID, counter.PeerID),
		bson.M{
			"owner_id":   counter.OwnerID,
			"peer_id":    counter.PeerID,
			"count":      counter.Count,
			"is_read":    counter.IsRead,
			"updated_at": counter.UpdatedAt,
		},
	)
	if err != nil {
		r.logger.Error("failed to upsert counter",
			zap.String("owner_id", counter.OwnerID),
			zap.String("peer_id", counter.PeerID),
			zap.Error(err),
		)
		return errors.Wrap(err, "counterRepo.Upsert.Upsert")
	}

	r.logger.Debug("counter persisted",
		zap.String("owner_id", counter.OwnerID),
		zap.String("peer_id", counter.PeerID),
		zap.Int("count", counter.Count),
		zap.Bool("is_read", counter.IsRead),
	)
	return nil
}

func pairFilter(ownerID, peerID string) bson.M {
	return db.NewFilter().Eq("owner_id", ownerID).Eq("peer_id", peerID).Build()
}
