package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/waveline/waveline-backend/internal/clients/events"
	"github.com/waveline/waveline-backend/internal/clients/media"
	"github.com/waveline/waveline-backend/internal/clients/redisstore"
	"github.com/waveline/waveline-backend/internal/data/repos"
	"github.com/waveline/waveline-backend/internal/domain"
	"github.com/waveline/waveline-backend/internal/platform/apierr"
	"github.com/waveline/waveline-backend/internal/platform/logger"
)

// PostView is a post hydrated for API responses: author username and a
// servable media URL instead of the raw storage key.
type PostView struct {
	PostID         uuid.UUID `json:"post_id"`
	AuthorID       uuid.UUID `json:"user_id"`
	AuthorUsername string    `json:"author_username,omitempty"`
	Content        string    `json:"content"`
	MediaURL       string    `json:"media_url,omitempty"`
	MediaType      string    `json:"media_type,omitempty"`
	LikeCount      int       `json:"like_count"`
	CreatedAt      time.Time `json:"created_at"`
}

type CreatePostInput struct {
	AuthorID    uuid.UUID
	Content     string
	MediaBase64 string
	MediaType   string
}

type PostService interface {
	Create(ctx context.Context, in CreatePostInput) (*PostView, error)
	Get(ctx context.Context, postID uuid.UUID) (*PostView, error)
	Like(ctx context.Context, userID, postID uuid.UUID) error
}

type postService struct {
	log       *logger.Logger
	postRepo  repos.PostRepo
	userRepo  repos.UserRepo
	likeRepo  repos.LikeRepo
	features  redisstore.FeatureCache
	media     media.Store
	publisher events.Publisher
}

func NewPostService(log *logger.Logger, postRepo repos.PostRepo, userRepo repos.UserRepo, likeRepo repos.LikeRepo, features redisstore.FeatureCache, mediaStore media.Store, publisher events.Publisher) (PostService, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if postRepo == nil || userRepo == nil || likeRepo == nil {
		return nil, fmt.Errorf("post, user and like repos required")
	}
	return &postService{
		log:       log.With("service", "PostService"),
		postRepo:  postRepo,
		userRepo:  userRepo,
		likeRepo:  likeRepo,
		features:  features,
		media:     mediaStore,
		publisher: publisher,
	}, nil
}

func (s *postService) Create(ctx context.Context, in CreatePostInput) (*PostView, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" && in.MediaBase64 == "" {
		return nil, apierr.New(http.StatusBadRequest, "empty_post", fmt.Errorf("post needs content or media"))
	}
	author, err := s.userRepo.GetByID(ctx, nil, in.AuthorID)
	if err != nil {
		return nil, err
	}
	if author == nil {
		return nil, apierr.New(http.StatusNotFound, "user_not_found", fmt.Errorf("author %s not found", in.AuthorID))
	}

	post := &domain.Post{
		ID:        uuid.New(),
		AuthorID:  in.AuthorID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if in.MediaBase64 != "" {
		if s.media == nil {
			return nil, apierr.New(http.StatusServiceUnavailable, "media_unavailable", fmt.Errorf("media storage not configured"))
		}
		key, err := s.media.UploadMediaBase64(ctx, post.ID, in.MediaType, in.MediaBase64)
		if err != nil {
			return nil, fmt.Errorf("upload media: %w", err)
		}
		post.MediaKey = key
		post.MediaType = in.MediaType
	}

	created, err := s.postRepo.Create(ctx, nil, []*domain.Post{post})
	if err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	post = created[0]

	s.seedPostFeatures(ctx, post)

	// Fan-out and embedding both hang off this event. Publish failure
	// leaves the post reachable through the author's profile only; a
	// warn is the trade against failing the write.
	if s.publisher != nil {
		err := s.publisher.PublishNewPost(ctx, events.NewPostEvent{
			PostID:    post.ID,
			AuthorID:  post.AuthorID,
			Content:   post.Content,
			CreatedAt: post.CreatedAt,
		})
		if err != nil {
			s.log.Warn("failed to publish new-post event", "post_id", post.ID, "error", err)
		}
	}

	s.log.Info("post created", "post_id", post.ID, "author_id", post.AuthorID, "has_media", post.MediaKey != "")
	return s.view(post, author), nil
}

func (s *postService) Get(ctx context.Context, postID uuid.UUID) (*PostView, error) {
	post, err := s.postRepo.GetByID(ctx, nil, postID)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, apierr.New(http.StatusNotFound, "post_not_found", fmt.Errorf("post %s not found", postID))
	}
	author, err := s.userRepo.GetByID(ctx, nil, post.AuthorID)
	if err != nil {
		return nil, err
	}
	return s.view(post, author), nil
}

func (s *postService) Like(ctx context.Context, userID, postID uuid.UUID) error {
	user, err := s.userRepo.GetByID(ctx, nil, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return apierr.New(http.StatusNotFound, "user_not_found", fmt.Errorf("user %s not found", userID))
	}
	post, err := s.postRepo.GetByID(ctx, nil, postID)
	if err != nil {
		return err
	}
	if post == nil {
		return apierr.New(http.StatusNotFound, "post_not_found", fmt.Errorf("post %s not found", postID))
	}

	inserted, err := s.likeRepo.Create(ctx, nil, &domain.Like{
		UserID:    userID,
		PostID:    postID,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("create like: %w", err)
	}
	if !inserted {
		// Already liked; nothing to recount.
		return nil
	}
	if err := s.postRepo.AddLikeCount(ctx, nil, postID, 1); err != nil {
		return fmt.Errorf("bump like count: %w", err)
	}
	post.LikeCount++
	s.seedPostFeatures(ctx, post)
	return nil
}

func (s *postService) view(post *domain.Post, author *domain.User) *PostView {
	v := &PostView{
		PostID:    post.ID,
		AuthorID:  post.AuthorID,
		Content:   post.Content,
		MediaType: post.MediaType,
		LikeCount: post.LikeCount,
		CreatedAt: post.CreatedAt,
	}
	if author != nil {
		v.AuthorUsername = author.Username
	}
	if post.MediaKey != "" && s.media != nil {
		v.MediaURL = s.media.PublicURL(post.MediaKey)
	}
	return v
}

func (s *postService) seedPostFeatures(ctx context.Context, post *domain.Post) {
	if s.features == nil {
		return
	}
	hasMedia := 0.0
	if post.MediaKey != "" {
		hasMedia = 1
	}
	err := s.features.SetPostFeatures(ctx, post.ID, map[string]float64{
		"like_count":     float64(post.LikeCount),
		"created_at_ts":  float64(post.CreatedAt.Unix()),
		"content_length": float64(len(post.Content)),
		"has_media":      hasMedia,
	})
	if err != nil {
		s.log.Warn("failed to seed post feature cache", "post_id", post.ID, "error", err)
	}
}
