package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/waveline/waveline-backend/internal/domain"
	"github.com/waveline/waveline-backend/internal/platform/logger"
)

type PostRepo interface {
	Create(ctx context.Context, tx *gorm.DB, posts []*domain.Post) ([]*domain.Post, error)
	GetByID(ctx context.Context, tx *gorm.DB, postID uuid.UUID) (*domain.Post, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, postIDs []uuid.UUID) ([]*domain.Post, error)
	AddLikeCount(ctx context.Context, tx *gorm.DB, postID uuid.UUID, delta int) error
}

type postRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostRepo(db *gorm.DB, baseLog *logger.Logger) PostRepo {
	return &postRepo{db: db, log: baseLog.With("repo", "PostRepo")}
}

func (pr *postRepo) Create(ctx context.Context, tx *gorm.DB, posts []*domain.Post) ([]*domain.Post, error) {
	transaction := tx
	if transaction == nil {
		transaction = pr.db
	}
	if len(posts) == 0 {
		return []*domain.Post{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&posts).Error; err != nil {
		return nil, err
	}
	return posts, nil
}

func (pr *postRepo) GetByID(ctx context.Context, tx *gorm.DB, postID uuid.UUID) (*domain.Post, error) {
	transaction := tx
	if transaction == nil {
		transaction = pr.db
	}
	var result domain.Post
	err := transaction.WithContext(ctx).
		Where("id = ?", postID).
		First(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (pr *postRepo) GetByIDs(ctx context.Context, tx *gorm.DB, postIDs []uuid.UUID) ([]*domain.Post, error) {
	transaction := tx
	if transaction == nil {
		transaction = pr.db
	}
	var results []*domain.Post
	if len(postIDs) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("id IN ?", postIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (pr *postRepo) AddLikeCount(ctx context.Context, tx *gorm.DB, postID uuid.UUID, delta int) error {
	transaction := tx
	if transaction == nil {
		transaction = pr.db
	}
	return transaction.WithContext(ctx).
		Model(&domain.Post{}).
		Where("id = ?", postID).
		Update("like_count", gorm.Expr("like_count + ?", delta)).Error
}
