package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/waveline/waveline-backend/internal/domain"
	"github.com/waveline/waveline-backend/internal/platform/logger"
)

type FollowRepo interface {
	Create(ctx context.Context, tx *gorm.DB, follow *domain.Follow) (bool, error)
	Delete(ctx context.Context, tx *gorm.DB, followerID, followeeID uuid.UUID) (bool, error)
	Exists(ctx context.Context, tx *gorm.DB, followerID, followeeID uuid.UUID) (bool, error)
	// FollowerIDs returns follower ids for the followee, newest edge
	// first, capped at limit. Partial fan-out relies on the ordering to
	// target the most recent followers.
	FollowerIDs(ctx context.Context, tx *gorm.DB, followeeID uuid.UUID, limit int) ([]uuid.UUID, error)
	CountFollowers(ctx context.Context, tx *gorm.DB, followeeID uuid.UUID) (int64, error)
}

type followRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFollowRepo(db *gorm.DB, baseLog *logger.Logger) FollowRepo {
	return &followRepo{db: db, log: baseLog.With("repo", "FollowRepo")}
}

// Create inserts the edge if absent. Returns false when the pair already
// existed (idempotent follow).
func (fr *followRepo) Create(ctx context.Context, tx *gorm.DB, follow *domain.Follow) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = fr.db
	}
	res := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(follow)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (fr *followRepo) Delete(ctx context.Context, tx *gorm.DB, followerID, followeeID uuid.UUID) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = fr.db
	}
	res := transaction.WithContext(ctx).
		Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
		Delete(&domain.Follow{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (fr *followRepo) Exists(ctx context.Context, tx *gorm.DB, followerID, followeeID uuid.UUID) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = fr.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&domain.Follow{}).
		Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (fr *followRepo) FollowerIDs(ctx context.Context, tx *gorm.DB, followeeID uuid.UUID, limit int) ([]uuid.UUID, error) {
	transaction := tx
	if transaction == nil {
		transaction = fr.db
	}
	var ids []uuid.UUID
	q := transaction.WithContext(ctx).
		Model(&domain.Follow{}).
		Where("followee_id = ?", followeeID).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Pluck("follower_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (fr *followRepo) CountFollowers(ctx context.Context, tx *gorm.DB, followeeID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = fr.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&domain.Follow{}).
		Where("followee_id = ?", followeeID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
