package feed

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/waveline/waveline-backend/internal/clients/redisstore"
	"github.com/waveline/waveline-backend/internal/clients/vectorindex"
	"github.com/waveline/waveline-backend/internal/platform/logger"
)

type Source string

const (
	SourceSocial    Source = "social"
	SourceDiscovery Source = "discovery"
)

// Candidate is one post id in the retrieval pool. RawScore carries the
// vector-index similarity for discovery candidates; social candidates
// have no retrieval score.
type Candidate struct {
	PostID   uuid.UUID
	Source   Source
	RawScore float64
}

// RetrievalResult is the merged candidate pool plus per-source counts
// and degradation markers for diagnostics.
type RetrievalResult struct {
	Candidates        []Candidate
	SocialCount       int
	DiscoveryCount    int
	SocialDegraded    bool
	DiscoveryDegraded bool
}

// Generator pulls the social pool from the mailbox and the discovery
// pool from the vector index concurrently. Either source failing or
// timing out degrades that pool to empty; retrieval itself never fails.
type Generator interface {
	Retrieve(ctx context.Context, userID uuid.UUID) (RetrievalResult, error)
}

type generator struct {
	log     *logger.Logger
	mailbox redisstore.Mailbox
	index   vectorindex.Index
	vectors redisstore.InterestVectors
	cfg     GeneratorConfig
}

type GeneratorConfig struct {
	// Per-source retrieval cap.
	CandidateLimit int
	// Shared deadline for both retrieval legs.
	Timeout time.Duration
	// Interest vector dimension for cold-start generation.
	VectorDim int
}

func NewGenerator(log *logger.Logger, mailbox redisstore.Mailbox, index vectorindex.Index, vectors redisstore.InterestVectors, cfg GeneratorConfig) (Generator, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if mailbox == nil {
		return nil, fmt.Errorf("mailbox required")
	}
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 800 * time.Millisecond
	}
	if cfg.VectorDim <= 0 {
		cfg.VectorDim = 384
	}
	return &generator{
		log:     log.With("service", "CandidateGenerator"),
		mailbox: mailbox,
		index:   index,
		vectors: vectors,
		cfg:     cfg,
	}, nil
}

func (g *generator) Retrieve(ctx context.Context, userID uuid.UUID) (RetrievalResult, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	var (
		social    []uuid.UUID
		discovery []vectorindex.Match
		res       RetrievalResult
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		ids, err := g.mailbox.TopN(egCtx, userID, g.cfg.CandidateLimit)
		if err != nil {
			g.log.Warn("social retrieval degraded", "user_id", userID, "error", err)
			res.SocialDegraded = true
			return nil
		}
		social = ids
		return nil
	})
	eg.Go(func() error {
		matches, err := g.searchDiscovery(egCtx, userID)
		if err != nil {
			g.log.Warn("discovery retrieval degraded", "user_id", userID, "error", err)
			res.DiscoveryDegraded = true
			return nil
		}
		discovery = matches
		return nil
	})
	// Legs swallow their own errors; Wait only propagates ctx teardown.
	_ = eg.Wait()

	res.SocialCount = len(social)
	res.DiscoveryCount = len(discovery)

	// Merge preferring the social tag for posts present in both pools.
	seen := make(map[uuid.UUID]struct{}, len(social)+len(discovery))
	out := make([]Candidate, 0, len(social)+len(discovery))
	for _, id := range social {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, Candidate{PostID: id, Source: SourceSocial})
	}
	for _, m := range discovery {
		if _, dup := seen[m.PostID]; dup {
			continue
		}
		seen[m.PostID] = struct{}{}
		out = append(out, Candidate{PostID: m.PostID, Source: SourceDiscovery, RawScore: m.Score})
	}
	res.Candidates = out
	return res, nil
}

func (g *generator) searchDiscovery(ctx context.Context, userID uuid.UUID) ([]vectorindex.Match, error) {
	if g.index == nil || g.vectors == nil {
		return nil, nil
	}
	vec, err := g.interestVector(ctx, userID)
	if err != nil {
		return nil, err
	}
	return g.index.Search(ctx, vec, g.cfg.CandidateLimit, userID)
}

// interestVector loads the cached vector, generating and storing a
// cold-start random one in [-1,1) on first use.
func (g *generator) interestVector(ctx context.Context, userID uuid.UUID) ([]float32, error) {
	vec, err := g.vectors.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if vec != nil {
		return vec, nil
	}
	vec = ColdStartVector(userID, g.cfg.VectorDim)
	if err := g.vectors.Set(ctx, userID, vec); err != nil {
		g.log.Warn("failed to persist cold-start interest vector", "user_id", userID, "error", err)
	}
	return vec, nil
}

// ColdStartVector generates a reproducible random interest vector with
// values in [-1,1), seeded from the user id so retries produce the same
// vector.
func ColdStartVector(userID uuid.UUID, dim int) []float32 {
	var seed int64
	for _, b := range userID {
		seed = seed*31 + int64(b)
	}
	rng := rand.New(rand.NewSource(seed))
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = float32(rng.Float64()*2 - 1)
	}
	return vec
}
