package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/waveline/waveline-backend/internal/observability"
	"github.com/waveline/waveline-backend/internal/platform/logger"
)

type Stage string

const (
	StageRetrieval     Stage = "RETRIEVAL"
	StageFiltering     Stage = "FILTERING"
	StageFeatureFetch  Stage = "FEATURE_FETCH"
	StageRanking       Stage = "RANKING"
	StageRerankHydrate Stage = "RERANK_HYDRATE"
	StageDone          Stage = "DONE"
	StageError         Stage = "ERROR"
)

// DegradedEvent records one stage that served reduced quality instead
// of failing the feed.
type DegradedEvent struct {
	Stage  Stage  `json:"stage"`
	Reason string `json:"reason"`
}

type Diagnostics struct {
	SocialCandidates    int             `json:"social_candidates"`
	DiscoveryCandidates int             `json:"discovery_candidates"`
	AfterFilter         int             `json:"after_filter"`
	Ranked              int             `json:"ranked"`
	Returned            int             `json:"returned"`
	FeatureSource       string          `json:"feature_source"`
	Degraded            []DegradedEvent `json:"degraded,omitempty"`
	LatencyMS           int64           `json:"latency_ms"`
}

type Feed struct {
	Items       []FeedItem  `json:"items"`
	Diagnostics Diagnostics `json:"diagnostics"`
}

// Orchestrator drives one feed build through the stage machine
// RETRIEVAL, FILTERING, FEATURE_FETCH, RANKING, RERANK_HYDRATE, DONE.
// Collaborator failures degrade the result; only hydration failure is
// fatal. An empty feed is a valid DONE outcome.
type Orchestrator interface {
	Build(ctx context.Context, userID uuid.UUID) (*Feed, error)
}

type OrchestratorConfig struct {
	PageSize       int
	FilterTimeout  time.Duration
	FeatureTimeout time.Duration
	HydrateTimeout time.Duration
}

type orchestrator struct {
	log       *logger.Logger
	generator Generator
	filter    Filter
	resolver  Resolver
	ranker    Ranker
	reranker  Reranker
	cfg       OrchestratorConfig
}

func NewOrchestrator(log *logger.Logger, generator Generator, filter Filter, resolver Resolver, ranker Ranker, reranker Reranker, cfg OrchestratorConfig) (Orchestrator, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if generator == nil || filter == nil || ranker == nil || reranker == nil {
		return nil, fmt.Errorf("generator, filter, ranker and reranker required")
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	if cfg.FilterTimeout <= 0 {
		cfg.FilterTimeout = 500 * time.Millisecond
	}
	if cfg.FeatureTimeout <= 0 {
		cfg.FeatureTimeout = 2 * time.Second
	}
	if cfg.HydrateTimeout <= 0 {
		cfg.HydrateTimeout = time.Second
	}
	return &orchestrator{
		log:       log.With("service", "FeedOrchestrator"),
		generator: generator,
		filter:    filter,
		resolver:  resolver,
		ranker:    ranker,
		reranker:  reranker,
		cfg:       cfg,
	}, nil
}

func (o *orchestrator) Build(ctx context.Context, userID uuid.UUID) (*Feed, error) {
	start := time.Now()
	feed := &Feed{Items: []FeedItem{}}
	diag := &feed.Diagnostics
	m := observability.Current()

	degrade := func(stage Stage, reason string) {
		diag.Degraded = append(diag.Degraded, DegradedEvent{Stage: stage, Reason: reason})
		m.IncFeedDegraded(string(stage), reason)
	}

	// RETRIEVAL
	retrieved, err := o.generator.Retrieve(ctx, userID)
	if err != nil {
		// Retrieve degrades internally; an error here is ctx teardown.
		o.finish(m, diag, start, "error")
		return nil, fmt.Errorf("retrieval: %w", err)
	}
	diag.SocialCandidates = retrieved.SocialCount
	diag.DiscoveryCandidates = retrieved.DiscoveryCount
	m.AddFeedCandidates(string(SourceSocial), retrieved.SocialCount)
	m.AddFeedCandidates(string(SourceDiscovery), retrieved.DiscoveryCount)
	if retrieved.SocialDegraded {
		degrade(StageRetrieval, "social_unavailable")
	}
	if retrieved.DiscoveryDegraded {
		degrade(StageRetrieval, "discovery_unavailable")
	}

	candidates := retrieved.Candidates
	if len(candidates) == 0 {
		o.finish(m, diag, start, outcomeFor(diag))
		return feed, nil
	}

	// FILTERING
	filterCtx, cancelFilter := context.WithTimeout(ctx, o.cfg.FilterTimeout)
	filtered := o.filter.Apply(filterCtx, userID, candidates)
	cancelFilter()
	if filtered.Degraded {
		degrade(StageFiltering, "ledger_unavailable")
	}
	candidates = filtered.Candidates
	diag.AfterFilter = len(candidates)
	if len(candidates) == 0 {
		o.finish(m, diag, start, outcomeFor(diag))
		return feed, nil
	}
	// Cap after filtering so seen posts never consume batch slots.
	if len(candidates) > MaxRankBatch {
		candidates = candidates[:MaxRankBatch]
	}

	// FEATURE_FETCH + RANKING
	scored := o.rank(ctx, userID, candidates, diag, degrade)
	diag.Ranked = len(scored)

	// RERANK_HYDRATE
	hydrateCtx, cancelHydrate := context.WithTimeout(ctx, o.cfg.HydrateTimeout)
	items, err := o.reranker.Finalize(hydrateCtx, scored, o.cfg.PageSize)
	cancelHydrate()
	if err != nil {
		o.finish(m, diag, start, "error")
		return nil, fmt.Errorf("rerank/hydrate: %w", err)
	}
	feed.Items = items
	diag.Returned = len(items)

	o.finish(m, diag, start, outcomeFor(diag))
	return feed, nil
}

// rank resolves features and scores candidates, degrading to the
// recency-only ordering when either step is wholly unavailable.
func (o *orchestrator) rank(ctx context.Context, userID uuid.UUID, candidates []Candidate, diag *Diagnostics, degrade func(Stage, string)) []Scored {
	if o.resolver == nil {
		degrade(StageFeatureFetch, "resolver_unavailable")
		return RecencyOnly(candidates)
	}

	featureCtx, cancel := context.WithTimeout(ctx, o.cfg.FeatureTimeout)
	features, err := o.resolver.Resolve(featureCtx, userID, candidates)
	cancel()
	if err != nil {
		o.log.Warn("feature resolution failed; ranking by recency", "user_id", userID, "error", err)
		degrade(StageFeatureFetch, "features_unavailable")
		return RecencyOnly(candidates)
	}
	diag.FeatureSource = features.Source
	observability.Current().IncFeatureSource(features.Source)
	if features.Source == FeatureSourceFallback {
		degrade(StageFeatureFetch, "fallback_features")
	}

	scored, err := o.ranker.ScoreBatch(time.Now(), candidates, features)
	if err != nil {
		o.log.Warn("scoring failed; ranking by recency", "user_id", userID, "error", err)
		degrade(StageRanking, "scoring_unavailable")
		return RecencyOnly(candidates)
	}
	for _, s := range scored {
		if s.Err != nil {
			degrade(StageRanking, "malformed_features")
		}
	}
	return scored
}

func (o *orchestrator) finish(m *observability.Metrics, diag *Diagnostics, start time.Time, outcome string) {
	diag.LatencyMS = time.Since(start).Milliseconds()
	m.ObserveFeedBuild(outcome, time.Since(start), diag.Returned)
}

func outcomeFor(diag *Diagnostics) string {
	if len(diag.Degraded) > 0 {
		return "degraded"
	}
	return "ok"
}
