package feed

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/waveline/waveline-backend/internal/data/repos/testutil"
)

func TestFallbackResolverServesNeutralDefaults(t *testing.T) {
	ctx := context.Background()
	log := testutil.Logger(t)
	userID := uuid.New()
	postID := uuid.New()

	cache := &fakeFeatureCache{
		user: map[string]float64{"follower_count": 12, "avg_engagement_rate": 0.3},
		posts: map[uuid.UUID]map[string]float64{
			postID: {"like_count": 4, "created_at_ts": 1700000000, "has_media": 1, "content_length": 80},
		},
	}
	vecs := newFakeVectors()

	r, err := NewFallbackResolver(log, cache, vecs)
	if err != nil {
		t.Fatalf("NewFallbackResolver: %v", err)
	}
	set, err := r.Resolve(ctx, userID, []Candidate{{PostID: postID}})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if set.Source != FeatureSourceFallback {
		t.Fatalf("expected fallback source tag, got %q", set.Source)
	}
	pf, ok := set.Posts[postID]
	if !ok {
		t.Fatalf("missing post bundle")
	}
	if pf.TopicSim != 0.5 {
		t.Fatalf("fallback topic similarity must default to 0.5, got %f", pf.TopicSim)
	}
	if pf.Affinity != 0.3 {
		t.Fatalf("fallback affinity must default to the user's avg engagement, got %f", pf.Affinity)
	}
	if pf.LikeCount != 4 || !pf.HasMedia {
		t.Fatalf("cached features not carried through: %+v", pf)
	}
	if set.User.FollowerCount != 12 {
		t.Fatalf("user features not carried through: %+v", set.User)
	}
}

func TestFallbackResolverDefaultsExpiredPostHash(t *testing.T) {
	ctx := context.Background()
	log := testutil.Logger(t)
	userID := uuid.New()
	cachedID := uuid.New()
	expiredID := uuid.New()

	cache := &fakeFeatureCache{
		user: map[string]float64{"avg_engagement_rate": 0.2},
		posts: map[uuid.UUID]map[string]float64{
			cachedID: {"like_count": 2, "created_at_ts": 1700000000},
		},
	}

	r, err := NewFallbackResolver(log, cache, newFakeVectors())
	if err != nil {
		t.Fatalf("NewFallbackResolver: %v", err)
	}
	before := time.Now().Unix()
	set, err := r.Resolve(ctx, userID, []Candidate{{PostID: cachedID}, {PostID: expiredID}})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	pf, ok := set.Posts[expiredID]
	if !ok {
		t.Fatalf("expired post must still get a bundle")
	}
	if pf.CreatedAtTS < float64(before) {
		t.Fatalf("expired post must default created_at to now, got %f", pf.CreatedAtTS)
	}
	if pf.TopicSim != 0.5 || pf.Affinity != 0.2 {
		t.Fatalf("expired post must carry neutral defaults: %+v", pf)
	}

	// The defaulted bundle must survive scoring instead of erroring out.
	ranker, err := NewRanker(log, 1)
	if err != nil {
		t.Fatalf("NewRanker: %v", err)
	}
	scored, err := ranker.ScoreBatch(time.Now(), []Candidate{{PostID: expiredID}}, set)
	if err != nil {
		t.Fatalf("ScoreBatch: %v", err)
	}
	if scored[0].Err != nil {
		t.Fatalf("defaulted bundle rejected as malformed: %v", scored[0].Err)
	}

	if got := set.Posts[cachedID].CreatedAtTS; got != 1700000000 {
		t.Fatalf("cached created_at must not be overwritten, got %f", got)
	}
}

func TestFailoverResolverFallsBackOnPrimaryError(t *testing.T) {
	ctx := context.Background()
	log := testutil.Logger(t)
	postID := uuid.New()

	primary := &fakeResolver{err: fmt.Errorf("feature server down")}
	fallback := &fakeResolver{set: FeatureSet{
		Source: FeatureSourceFallback,
		Posts:  map[uuid.UUID]PostFeatures{postID: {CreatedAtTS: 1700000000}},
	}}

	r, err := NewFailoverResolver(log, primary, fallback)
	if err != nil {
		t.Fatalf("NewFailoverResolver: %v", err)
	}
	set, err := r.Resolve(ctx, uuid.New(), []Candidate{{PostID: postID}})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if set.Source != FeatureSourceFallback {
		t.Fatalf("expected fallback source, got %q", set.Source)
	}
	if _, ok := set.Posts[postID]; !ok {
		t.Fatalf("fallback bundle missing requested post")
	}
}

func TestFailoverResolverPrefersPrimary(t *testing.T) {
	ctx := context.Background()
	log := testutil.Logger(t)

	primary := &fakeResolver{set: FeatureSet{Source: FeatureSourcePrimary, Posts: map[uuid.UUID]PostFeatures{}}}
	fallback := &fakeResolver{set: FeatureSet{Source: FeatureSourceFallback, Posts: map[uuid.UUID]PostFeatures{}}}

	r, err := NewFailoverResolver(log, primary, fallback)
	if err != nil {
		t.Fatalf("NewFailoverResolver: %v", err)
	}
	set, err := r.Resolve(ctx, uuid.New(), nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if set.Source != FeatureSourcePrimary {
		t.Fatalf("expected primary source, got %q", set.Source)
	}
}

func TestFailoverResolverBothFailing(t *testing.T) {
	log := testutil.Logger(t)
	r, err := NewFailoverResolver(log,
		&fakeResolver{err: fmt.Errorf("primary down")},
		&fakeResolver{err: fmt.Errorf("redis down")},
	)
	if err != nil {
		t.Fatalf("NewFailoverResolver: %v", err)
	}
	if _, err := r.Resolve(context.Background(), uuid.New(), nil); err == nil {
		t.Fatalf("expected error when both paths fail")
	}
}

func TestShiftedCosine(t *testing.T) {
	a := []float32{1, 0}
	if got := shiftedCosine(a, []float32{1, 0}); got != 1 {
		t.Fatalf("identical vectors: expected 1, got %f", got)
	}
	if got := shiftedCosine(a, []float32{-1, 0}); got != 0 {
		t.Fatalf("opposite vectors: expected 0, got %f", got)
	}
	if got := shiftedCosine(a, []float32{0, 1}); got != 0.5 {
		t.Fatalf("orthogonal vectors: expected 0.5, got %f", got)
	}
	// Dimension mismatch and zero vectors serve the neutral value.
	if got := shiftedCosine(a, []float32{1, 0, 0}); got != neutralTopicSim {
		t.Fatalf("mismatched dims: expected neutral, got %f", got)
	}
	if got := shiftedCosine(a, []float32{0, 0}); got != neutralTopicSim {
		t.Fatalf("zero vector: expected neutral, got %f", got)
	}
}
