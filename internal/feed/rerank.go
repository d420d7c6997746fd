package feed

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/waveline/waveline-backend/internal/data/repos"
	"github.com/waveline/waveline-backend/internal/domain"
	"github.com/waveline/waveline-backend/internal/platform/logger"
)

const (
	// Max posts from one author within a served page.
	maxPerAuthor = 2
	// Hydration considers this many times the page size so backfill
	// has headroom past over-quota and missing posts.
	hydrateWindowFactor = 3
)

// FeedItem is one fully hydrated entry of a served feed page.
type FeedItem struct {
	PostID         uuid.UUID `json:"post_id"`
	AuthorID       uuid.UUID `json:"author_id"`
	AuthorUsername string    `json:"author_username"`
	Content        string    `json:"content"`
	MediaURL       string    `json:"media_url,omitempty"`
	MediaType      string    `json:"media_type,omitempty"`
	LikeCount      int       `json:"like_count"`
	CreatedAt      time.Time `json:"created_at"`
	Score          float64   `json:"score"`
	Source         Source    `json:"source"`
}

// MediaURLResolver maps a stored media key to a servable URL.
type MediaURLResolver interface {
	PublicURL(key string) string
}

// Reranker orders scored candidates, applies the per-author diversity
// cap and hydrates the final page from the metadata store. Candidates
// that fail hydration are skipped and backfilled from the remainder.
type Reranker interface {
	Finalize(ctx context.Context, scored []Scored, pageSize int) ([]FeedItem, error)
}

type reranker struct {
	log      *logger.Logger
	postRepo repos.PostRepo
	userRepo repos.UserRepo
	media    MediaURLResolver
}

func NewReranker(log *logger.Logger, postRepo repos.PostRepo, userRepo repos.UserRepo, media MediaURLResolver) (Reranker, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if postRepo == nil || userRepo == nil {
		return nil, fmt.Errorf("post and user repos required")
	}
	return &reranker{
		log:      log.With("service", "Reranker"),
		postRepo: postRepo,
		userRepo: userRepo,
		media:    media,
	}, nil
}

func (r *reranker) Finalize(ctx context.Context, scored []Scored, pageSize int) ([]FeedItem, error) {
	if pageSize <= 0 {
		pageSize = 20
	}

	ranked := make([]Scored, 0, len(scored))
	for _, s := range scored {
		if s.Err != nil {
			continue
		}
		ranked = append(ranked, s)
	}
	// Stable: equal scores keep their upstream order.
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	window := pageSize * hydrateWindowFactor
	if window > len(ranked) {
		window = len(ranked)
	}
	ranked = ranked[:window]
	if len(ranked) == 0 {
		return []FeedItem{}, nil
	}

	postIDs := make([]uuid.UUID, len(ranked))
	for i, s := range ranked {
		postIDs[i] = s.Candidate.PostID
	}
	posts, err := r.postRepo.GetByIDs(ctx, nil, postIDs)
	if err != nil {
		return nil, fmt.Errorf("hydrate posts: %w", err)
	}
	postByID := make(map[uuid.UUID]*domain.Post, len(posts))
	authorIDs := make([]uuid.UUID, 0, len(posts))
	authorSeen := make(map[uuid.UUID]struct{}, len(posts))
	for _, p := range posts {
		postByID[p.ID] = p
		if _, ok := authorSeen[p.AuthorID]; !ok {
			authorSeen[p.AuthorID] = struct{}{}
			authorIDs = append(authorIDs, p.AuthorID)
		}
	}
	authors, err := r.userRepo.GetByIDs(ctx, nil, authorIDs)
	if err != nil {
		return nil, fmt.Errorf("hydrate authors: %w", err)
	}
	authorByID := make(map[uuid.UUID]*domain.User, len(authors))
	for _, u := range authors {
		authorByID[u.ID] = u
	}

	items := make([]FeedItem, 0, pageSize)
	perAuthor := make(map[uuid.UUID]int)
	for _, s := range ranked {
		if len(items) == pageSize {
			break
		}
		post, ok := postByID[s.Candidate.PostID]
		if !ok {
			// Deleted or never persisted; the next ranked candidate
			// backfills the slot.
			r.log.Warn("skipping candidate missing from metadata store", "post_id", s.Candidate.PostID)
			continue
		}
		if perAuthor[post.AuthorID] >= maxPerAuthor {
			continue
		}
		item := FeedItem{
			PostID:    post.ID,
			AuthorID:  post.AuthorID,
			Content:   post.Content,
			MediaType: post.MediaType,
			LikeCount: post.LikeCount,
			CreatedAt: post.CreatedAt,
			Score:     s.Score,
			Source:    s.Candidate.Source,
		}
		if author, ok := authorByID[post.AuthorID]; ok {
			item.AuthorUsername = author.Username
		}
		if post.MediaKey != "" && r.media != nil {
			item.MediaURL = r.media.PublicURL(post.MediaKey)
		}
		perAuthor[post.AuthorID]++
		items = append(items, item)
	}
	return items, nil
}
