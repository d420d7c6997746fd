package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/waveline/waveline-backend/internal/clients/featurestore"
	"github.com/waveline/waveline-backend/internal/clients/redisstore"
	"github.com/waveline/waveline-backend/internal/platform/logger"
)

const (
	FeatureSourcePrimary  = "primary"
	FeatureSourceFallback = "fallback"

	neutralTopicSim = 0.5
)

type UserFeatures struct {
	FollowerCount  float64
	AvgEngagement  float64
	InterestVector []float32
}

// PostFeatures is the ranking bundle for one candidate. TopicSim and
// Affinity are already resolved to [0,1] values here; a zero CreatedAtTS
// marks the bundle malformed.
type PostFeatures struct {
	AuthorID      uuid.UUID
	LikeCount     float64
	CreatedAtTS   float64
	HasMedia      bool
	ContentLength float64
	TopicSim      float64
	Affinity      float64
}

// FeatureSet tags the resolved bundles with the source that produced
// them so diagnostics can report primary vs fallback serving.
type FeatureSet struct {
	Source string
	User   UserFeatures
	Posts  map[uuid.UUID]PostFeatures
}

type Resolver interface {
	Resolve(ctx context.Context, userID uuid.UUID, candidates []Candidate) (FeatureSet, error)
}

// --- primary: feature server ---

type primaryResolver struct {
	log    *logger.Logger
	client featurestore.Client
}

func NewPrimaryResolver(log *logger.Logger, client featurestore.Client) (Resolver, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if client == nil {
		return nil, fmt.Errorf("feature store client required")
	}
	return &primaryResolver{log: log.With("service", "PrimaryFeatureResolver"), client: client}, nil
}

func (r *primaryResolver) Resolve(ctx context.Context, userID uuid.UUID, candidates []Candidate) (FeatureSet, error) {
	set := FeatureSet{Source: FeatureSourcePrimary, Posts: make(map[uuid.UUID]PostFeatures, len(candidates))}
	if len(candidates) == 0 {
		return set, nil
	}

	postIDs := make([]uuid.UUID, len(candidates))
	for i, c := range candidates {
		postIDs[i] = c.PostID
	}

	userRec, postRecs, err := r.client.RankingFeatures(ctx, userID, postIDs)
	if err != nil {
		return FeatureSet{}, err
	}

	set.User = UserFeatures{
		FollowerCount:  userRec.FollowerCount,
		AvgEngagement:  userRec.AvgEngagementRate,
		InterestVector: decodeVector(userRec.InterestVectorJSON),
	}

	authorSet := make(map[uuid.UUID]struct{})
	for _, rec := range postRecs {
		if rec.AuthorID != uuid.Nil {
			authorSet[rec.AuthorID] = struct{}{}
		}
	}
	authorIDs := make([]uuid.UUID, 0, len(authorSet))
	for aid := range authorSet {
		authorIDs = append(authorIDs, aid)
	}
	affinities, err := r.client.AffinityScores(ctx, userID, authorIDs)
	if err != nil {
		// Affinity is one term of five; serve the rest with the default.
		r.log.Warn("affinity lookup failed; using engagement default", "user_id", userID, "error", err)
		affinities = nil
	}

	for pid, rec := range postRecs {
		pf := PostFeatures{
			AuthorID:      rec.AuthorID,
			LikeCount:     rec.LikeCount,
			CreatedAtTS:   rec.CreatedAtTS,
			HasMedia:      rec.HasMedia,
			ContentLength: rec.ContentLength,
			TopicSim:      neutralTopicSim,
			Affinity:      set.User.AvgEngagement,
		}
		if emb := decodeVector(rec.EmbeddingJSON); emb != nil && set.User.InterestVector != nil {
			pf.TopicSim = shiftedCosine(set.User.InterestVector, emb)
		}
		if affinities != nil {
			if a, ok := affinities[rec.AuthorID]; ok && a > 0 {
				pf.Affinity = a
			}
		}
		set.Posts[pid] = pf
	}
	return set, nil
}

// --- fallback: Redis feature caches ---

type fallbackResolver struct {
	log     *logger.Logger
	cache   redisstore.FeatureCache
	vectors redisstore.InterestVectors
}

func NewFallbackResolver(log *logger.Logger, cache redisstore.FeatureCache, vectors redisstore.InterestVectors) (Resolver, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cache == nil {
		return nil, fmt.Errorf("feature cache required")
	}
	return &fallbackResolver{
		log:     log.With("service", "FallbackFeatureResolver"),
		cache:   cache,
		vectors: vectors,
	}, nil
}

func (r *fallbackResolver) Resolve(ctx context.Context, userID uuid.UUID, candidates []Candidate) (FeatureSet, error) {
	set := FeatureSet{Source: FeatureSourceFallback, Posts: make(map[uuid.UUID]PostFeatures, len(candidates))}
	if len(candidates) == 0 {
		return set, nil
	}

	uf, err := r.cache.UserFeatures(ctx, userID)
	if err != nil {
		return FeatureSet{}, err
	}
	set.User = UserFeatures{
		FollowerCount: uf["follower_count"],
		AvgEngagement: uf["avg_engagement_rate"],
	}
	if r.vectors != nil {
		if vec, verr := r.vectors.Get(ctx, userID); verr == nil {
			set.User.InterestVector = vec
		}
	}

	postIDs := make([]uuid.UUID, len(candidates))
	for i, c := range candidates {
		postIDs[i] = c.PostID
	}
	hashes, err := r.cache.PostFeatures(ctx, postIDs)
	if err != nil {
		return FeatureSet{}, err
	}

	now := float64(time.Now().Unix())
	for _, pid := range postIDs {
		// The cache carries no embedding or affinity; both terms serve
		// their neutral defaults. A missing or expired pf: hash still
		// yields a complete bundle: created_at defaults to now so the
		// candidate ranks as fresh instead of being dropped as malformed.
		h := hashes[pid]
		pf := PostFeatures{
			LikeCount:     h["like_count"],
			CreatedAtTS:   h["created_at_ts"],
			HasMedia:      h["has_media"] != 0,
			ContentLength: h["content_length"],
			TopicSim:      neutralTopicSim,
			Affinity:      set.User.AvgEngagement,
		}
		if pf.CreatedAtTS <= 0 {
			pf.CreatedAtTS = now
		}
		set.Posts[pid] = pf
	}
	return set, nil
}

// --- failover composition ---

type failoverResolver struct {
	log      *logger.Logger
	primary  Resolver
	fallback Resolver
}

// NewFailoverResolver serves from primary and degrades to fallback on
// any primary error. Both failing is a FEATURE_FETCH stage error; the
// orchestrator then ranks by recency alone.
func NewFailoverResolver(log *logger.Logger, primary, fallback Resolver) (Resolver, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if fallback == nil {
		return nil, fmt.Errorf("fallback resolver required")
	}
	return &failoverResolver{log: log.With("service", "FeatureResolver"), primary: primary, fallback: fallback}, nil
}

func (r *failoverResolver) Resolve(ctx context.Context, userID uuid.UUID, candidates []Candidate) (FeatureSet, error) {
	if r.primary != nil {
		set, err := r.primary.Resolve(ctx, userID, candidates)
		if err == nil {
			return set, nil
		}
		r.log.Warn("primary feature resolution failed; falling back", "user_id", userID, "error", err)
	}
	return r.fallback.Resolve(ctx, userID, candidates)
}

// --- helpers ---

func decodeVector(raw string) []float32 {
	if raw == "" {
		return nil
	}
	var vec []float32
	if err := json.Unmarshal([]byte(raw), &vec); err != nil {
		return nil
	}
	if len(vec) == 0 {
		return nil
	}
	return vec
}

// shiftedCosine maps cosine similarity from [-1,1] to [0,1], clamped.
func shiftedCosine(a, b []float32) float64 {
	cos, ok := cosine(a, b)
	if !ok {
		return neutralTopicSim
	}
	s := (cos + 1) / 2
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

func cosine(a, b []float32) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}
