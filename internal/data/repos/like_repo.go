package repos

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/waveline/waveline-backend/internal/domain"
	"github.com/waveline/waveline-backend/internal/platform/logger"
)

type LikeRepo interface {
	// Create inserts the like if absent; returns false when the user had
	// already liked the post.
	Create(ctx context.Context, tx *gorm.DB, like *domain.Like) (bool, error)
}

type likeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLikeRepo(db *gorm.DB, baseLog *logger.Logger) LikeRepo {
	return &likeRepo{db: db, log: baseLog.With("repo", "LikeRepo")}
}

func (lr *likeRepo) Create(ctx context.Context, tx *gorm.DB, like *domain.Like) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = lr.db
	}
	res := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(like)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
