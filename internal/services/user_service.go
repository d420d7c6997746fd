package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/waveline/waveline-backend/internal/clients/redisstore"
	"github.com/waveline/waveline-backend/internal/data/repos"
	"github.com/waveline/waveline-backend/internal/domain"
	"github.com/waveline/waveline-backend/internal/feed"
	"github.com/waveline/waveline-backend/internal/platform/apierr"
	"github.com/waveline/waveline-backend/internal/platform/logger"
)

type UserService interface {
	Register(ctx context.Context, username, displayName string) (*domain.User, error)
	Get(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	Follow(ctx context.Context, followerID, followeeID uuid.UUID) error
	Unfollow(ctx context.Context, followerID, followeeID uuid.UUID) error
	Followers(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.User, error)
}

type userService struct {
	log        *logger.Logger
	userRepo   repos.UserRepo
	followRepo repos.FollowRepo
	features   redisstore.FeatureCache
	vectors    redisstore.InterestVectors
	vectorDim  int
}

func NewUserService(log *logger.Logger, userRepo repos.UserRepo, followRepo repos.FollowRepo, features redisstore.FeatureCache, vectors redisstore.InterestVectors, vectorDim int) (UserService, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if userRepo == nil || followRepo == nil {
		return nil, fmt.Errorf("user and follow repos required")
	}
	if vectorDim <= 0 {
		vectorDim = 384
	}
	return &userService{
		log:        log.With("service", "UserService"),
		userRepo:   userRepo,
		followRepo: followRepo,
		features:   features,
		vectors:    vectors,
		vectorDim:  vectorDim,
	}, nil
}

func (s *userService) Register(ctx context.Context, username, displayName string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, apierr.New(http.StatusBadRequest, "invalid_username", fmt.Errorf("username required"))
	}
	exists, err := s.userRepo.UsernameExists(ctx, nil, username)
	if err != nil {
		return nil, fmt.Errorf("check username: %w", err)
	}
	if exists {
		return nil, apierr.New(http.StatusConflict, "username_taken", fmt.Errorf("username %q already registered", username))
	}

	user := &domain.User{
		ID:          uuid.New(),
		Username:    username,
		DisplayName: strings.TrimSpace(displayName),
		CreatedAt:   time.Now().UTC(),
	}
	vector := feed.ColdStartVector(user.ID, s.vectorDim)
	if raw, err := json.Marshal(vector); err == nil {
		user.InterestVector = raw
	}

	created, err := s.userRepo.Create(ctx, nil, []*domain.User{user})
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	user = created[0]

	// Cache seeding is best effort; the fallback resolver re-seeds on
	// read when absent.
	if s.vectors != nil {
		if err := s.vectors.Set(ctx, user.ID, vector); err != nil {
			s.log.Warn("failed to seed interest vector", "user_id", user.ID, "error", err)
		}
	}
	s.seedUserFeatures(ctx, user)

	s.log.Info("user registered", "user_id", user.ID, "username", username)
	return user, nil
}

func (s *userService) Get(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	user, err := s.userRepo.GetByID(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apierr.New(http.StatusNotFound, "user_not_found", fmt.Errorf("user %s not found", userID))
	}
	return user, nil
}

func (s *userService) Follow(ctx context.Context, followerID, followeeID uuid.UUID) error {
	if followerID == followeeID {
		return apierr.New(http.StatusBadRequest, "self_follow", fmt.Errorf("a user cannot follow themselves"))
	}
	if _, err := s.Get(ctx, followerID); err != nil {
		return err
	}
	followee, err := s.Get(ctx, followeeID)
	if err != nil {
		return err
	}

	inserted, err := s.followRepo.Create(ctx, nil, &domain.Follow{
		FollowerID: followerID,
		FolloweeID: followeeID,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("create follow: %w", err)
	}
	if !inserted {
		return nil
	}
	if err := s.userRepo.AddFollowerCount(ctx, nil, followeeID, 1); err != nil {
		return fmt.Errorf("bump follower count: %w", err)
	}
	followee.FollowerCount++
	s.seedUserFeatures(ctx, followee)
	return nil
}

func (s *userService) Unfollow(ctx context.Context, followerID, followeeID uuid.UUID) error {
	deleted, err := s.followRepo.Delete(ctx, nil, followerID, followeeID)
	if err != nil {
		return fmt.Errorf("delete follow: %w", err)
	}
	if !deleted {
		return nil
	}
	if err := s.userRepo.AddFollowerCount(ctx, nil, followeeID, -1); err != nil {
		return fmt.Errorf("drop follower count: %w", err)
	}
	if followee, gerr := s.userRepo.GetByID(ctx, nil, followeeID); gerr == nil && followee != nil {
		s.seedUserFeatures(ctx, followee)
	}
	return nil
}

func (s *userService) Followers(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.User, error) {
	if _, err := s.Get(ctx, userID); err != nil {
		return nil, err
	}
	ids, err := s.followRepo.FollowerIDs(ctx, nil, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list followers: %w", err)
	}
	if len(ids) == 0 {
		return []*domain.User{}, nil
	}
	return s.userRepo.GetByIDs(ctx, nil, ids)
}

func (s *userService) seedUserFeatures(ctx context.Context, user *domain.User) {
	if s.features == nil {
		return
	}
	err := s.features.SetUserFeatures(ctx, user.ID, map[string]float64{
		"follower_count":      float64(user.FollowerCount),
		"avg_engagement_rate": user.AvgEngagement,
	})
	if err != nil {
		s.log.Warn("failed to seed user feature cache", "user_id", user.ID, "error", err)
	}
}
