package feed

import (
	"fmt"
	"hash/fnv"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/waveline/waveline-backend/internal/platform/logger"
)

const (
	weightRecency    = 0.35
	weightEngagement = 0.25
	weightAffinity   = 0.20
	weightTopicSim   = 0.15
	weightJitter     = 0.05

	recencyHalfLifeHours = 24.0
	engagementSaturation = 10.0
	mediaBonus           = 0.1
	jitterBound          = 0.10

	// MaxRankBatch bounds one scoring call; the orchestrator never
	// sends more than this many candidates.
	MaxRankBatch = 150
)

// Scored pairs a candidate with its final rank score. Err is set for
// candidates whose feature bundle was malformed; those carry no usable
// score and are dropped downstream.
type Scored struct {
	Candidate Candidate
	Score     float64
	Features  PostFeatures
	Err       error
}

// Ranker applies the weighted scoring formula. Scoring is fully
// deterministic for a fixed seed: the jitter term is derived from the
// seed and the post id, not from call order.
type Ranker interface {
	ScoreBatch(now time.Time, candidates []Candidate, features FeatureSet) ([]Scored, error)
}

type ranker struct {
	log  *logger.Logger
	seed int64
}

func NewRanker(log *logger.Logger, seed int64) (Ranker, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &ranker{log: log.With("service", "Ranker"), seed: seed}, nil
}

func (r *ranker) ScoreBatch(now time.Time, candidates []Candidate, features FeatureSet) ([]Scored, error) {
	if len(candidates) > MaxRankBatch {
		return nil, fmt.Errorf("rank batch too large: %d > %d", len(candidates), MaxRankBatch)
	}

	out := make([]Scored, len(candidates))
	for i, c := range candidates {
		out[i].Candidate = c
		pf, ok := features.Posts[c.PostID]
		if !ok {
			out[i].Err = fmt.Errorf("no feature bundle for post %s", c.PostID)
			continue
		}
		if pf.CreatedAtTS <= 0 {
			out[i].Err = fmt.Errorf("malformed feature bundle for post %s: missing created_at", c.PostID)
			continue
		}
		out[i].Features = pf
		out[i].Score = r.score(now, c.PostID, pf)
	}
	return out, nil
}

func (r *ranker) score(now time.Time, postID uuid.UUID, pf PostFeatures) float64 {
	ageHours := now.Sub(time.Unix(int64(pf.CreatedAtTS), 0)).Hours()
	if ageHours < 0 {
		ageHours = 0
	}
	recency := math.Exp(-ageHours / recencyHalfLifeHours)

	engagement := pf.LikeCount / (pf.LikeCount + engagementSaturation)
	if pf.HasMedia {
		engagement += mediaBonus
	}

	return weightRecency*recency +
		weightEngagement*engagement +
		weightAffinity*clamp01(pf.Affinity) +
		weightTopicSim*clamp01(pf.TopicSim) +
		weightJitter*(0.5+r.jitter(postID))
}

// jitter maps (seed, post id) to a uniform value in [-0.10, 0.10]. Its
// maximum contribution to the final score is 0.005, enough to break
// near-ties without reordering clearly separated candidates.
func (r *ranker) jitter(postID uuid.UUID) float64 {
	h := fnv.New64a()
	var seedBytes [8]byte
	for i := 0; i < 8; i++ {
		seedBytes[i] = byte(r.seed >> (8 * i))
	}
	_, _ = h.Write(seedBytes[:])
	_, _ = h.Write(postID[:])
	u := float64(h.Sum64()) / float64(math.MaxUint64)
	return (u*2 - 1) * jitterBound
}

// RecencyOnly is the degraded ranking used when scoring is unavailable
// end to end. The mailbox already returns posts newest-first and the
// vector index most-similar-first, so candidates keep their retrieval
// order (social first) via descending positional scores.
func RecencyOnly(candidates []Candidate) []Scored {
	ordered := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Source == SourceSocial {
			ordered = append(ordered, c)
		}
	}
	for _, c := range candidates {
		if c.Source != SourceSocial {
			ordered = append(ordered, c)
		}
	}
	out := make([]Scored, len(ordered))
	for i, c := range ordered {
		out[i] = Scored{Candidate: c, Score: float64(len(ordered) - i)}
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
