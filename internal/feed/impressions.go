package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/waveline/waveline-backend/internal/clients/impressions"
	"github.com/waveline/waveline-backend/internal/platform/logger"
)

// FilterResult carries the surviving candidates and whether the ledger
// lookup failed (fail-open: all candidates pass, marked degraded).
type FilterResult struct {
	Candidates []Candidate
	Degraded   bool
}

// Filter drops candidates the user has seen within the freshness
// window. Filtering twice is a no-op; ledger errors fail open.
type Filter interface {
	Apply(ctx context.Context, userID uuid.UUID, candidates []Candidate) FilterResult
}

type filter struct {
	log    *logger.Logger
	ledger impressions.Ledger
	window time.Duration
}

func NewFilter(log *logger.Logger, ledger impressions.Ledger, window time.Duration) (Filter, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &filter{
		log:    log.With("service", "ImpressionFilter"),
		ledger: ledger,
		window: window,
	}, nil
}

func (f *filter) Apply(ctx context.Context, userID uuid.UUID, candidates []Candidate) FilterResult {
	if len(candidates) == 0 {
		return FilterResult{Candidates: candidates}
	}
	if f.ledger == nil {
		return FilterResult{Candidates: candidates, Degraded: true}
	}
	seen, err := f.ledger.SeenPostIDs(ctx, userID, time.Now().Add(-f.window))
	if err != nil {
		// A broken ledger costs freshness, not the feed.
		f.log.Warn("impression ledger unavailable; passing all candidates", "user_id", userID, "error", err)
		return FilterResult{Candidates: candidates, Degraded: true}
	}
	kept := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if _, hit := seen[c.PostID]; hit {
			continue
		}
		kept = append(kept, c)
	}
	return FilterResult{Candidates: kept}
}
