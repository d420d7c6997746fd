package feed

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/waveline/waveline-backend/internal/clients/vectorindex"
	"github.com/waveline/waveline-backend/internal/data/repos"
	"github.com/waveline/waveline-backend/internal/data/repos/testutil"
	"github.com/waveline/waveline-backend/internal/domain"
	"gorm.io/gorm"
)

type orchestratorFixture struct {
	db       *gorm.DB
	mailbox  *fakeMailbox
	index    *fakeIndex
	vectors  *fakeVectors
	ledger   *fakeLedger
	resolver *fakeResolver
	orch     Orchestrator
}

func newOrchestratorFixture(t *testing.T) *orchestratorFixture {
	t.Helper()
	log := testutil.Logger(t)
	db := testutil.DB(t)

	fx := &orchestratorFixture{
		db:       db,
		mailbox:  newFakeMailbox(),
		index:    &fakeIndex{},
		vectors:  newFakeVectors(),
		ledger:   &fakeLedger{},
		resolver: &fakeResolver{set: FeatureSet{Source: FeatureSourcePrimary, Posts: map[uuid.UUID]PostFeatures{}}},
	}

	gen, err := NewGenerator(log, fx.mailbox, fx.index, fx.vectors, GeneratorConfig{VectorDim: 4})
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	filter, err := NewFilter(log, fx.ledger, 24*time.Hour)
	if err != nil {
		t.Fatalf("NewFilter: %v", err)
	}
	ranker, err := NewRanker(log, 42)
	if err != nil {
		t.Fatalf("NewRanker: %v", err)
	}
	reranker, err := NewReranker(log, repos.NewPostRepo(db, log), repos.NewUserRepo(db, log), fakeMediaURLs{})
	if err != nil {
		t.Fatalf("NewReranker: %v", err)
	}
	fx.orch, err = NewOrchestrator(log, gen, filter, fx.resolver, ranker, reranker, OrchestratorConfig{PageSize: 20})
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	return fx
}

func (fx *orchestratorFixture) seedPost(t *testing.T, ctx context.Context, author *domain.User, content string) *domain.Post {
	t.Helper()
	p := testutil.SeedPost(t, ctx, fx.db, author.ID, content)
	fx.resolver.set.Posts[p.ID] = PostFeatures{
		AuthorID:    author.ID,
		CreatedAtTS: float64(p.CreatedAt.Unix()),
		TopicSim:    0.5,
		Affinity:    0.5,
	}
	return p
}

func TestBuildEmptyPoolsIsValidDone(t *testing.T) {
	ctx := context.Background()
	fx := newOrchestratorFixture(t)

	feed, err := fx.orch.Build(ctx, uuid.New())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(feed.Items) != 0 {
		t.Fatalf("expected empty feed, got %d items", len(feed.Items))
	}
	if len(feed.Diagnostics.Degraded) != 0 {
		t.Fatalf("empty pools are not a degradation: %+v", feed.Diagnostics.Degraded)
	}
}

func TestBuildServesSocialOnlyWhenIndexDown(t *testing.T) {
	ctx := context.Background()
	fx := newOrchestratorFixture(t)
	userID := uuid.New()
	author := testutil.SeedUser(t, ctx, fx.db, "carol")
	p := fx.seedPost(t, ctx, author, "hello")

	fx.mailbox.posts[userID] = []uuid.UUID{p.ID}
	fx.index.err = fmt.Errorf("index down")

	feed, err := fx.orch.Build(ctx, userID)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if feed.Diagnostics.DiscoveryCandidates != 0 {
		t.Fatalf("expected 0 discovery candidates, got %d", feed.Diagnostics.DiscoveryCandidates)
	}
	if feed.Diagnostics.SocialCandidates != 1 || len(feed.Items) != 1 {
		t.Fatalf("social path should still serve: %+v", feed.Diagnostics)
	}
	found := false
	for _, d := range feed.Diagnostics.Degraded {
		if d.Stage == StageRetrieval {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a RETRIEVAL degradation event, got %+v", feed.Diagnostics.Degraded)
	}
}

func TestBuildRecencyFallbackWhenFeaturesUnavailable(t *testing.T) {
	ctx := context.Background()
	fx := newOrchestratorFixture(t)
	userID := uuid.New()
	author := testutil.SeedUser(t, ctx, fx.db, "dan")
	newest := fx.seedPost(t, ctx, author, "newest")
	older := fx.seedPost(t, ctx, author, "older")

	// Mailbox order is newest-first; with scoring down the feed must
	// preserve it.
	fx.mailbox.posts[userID] = []uuid.UUID{newest.ID, older.ID}
	fx.resolver.err = fmt.Errorf("all feature paths down")

	feed, err := fx.orch.Build(ctx, userID)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(feed.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(feed.Items))
	}
	if feed.Items[0].PostID != newest.ID {
		t.Fatalf("recency fallback must keep mailbox order")
	}
	found := false
	for _, d := range feed.Diagnostics.Degraded {
		if d.Stage == StageFeatureFetch {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected FEATURE_FETCH degradation, got %+v", feed.Diagnostics.Degraded)
	}
}

func TestBuildFiltersSeenPosts(t *testing.T) {
	ctx := context.Background()
	fx := newOrchestratorFixture(t)
	userID := uuid.New()
	author := testutil.SeedUser(t, ctx, fx.db, "erin")
	seen := fx.seedPost(t, ctx, author, "seen")
	fresh := fx.seedPost(t, ctx, author, "fresh")

	fx.mailbox.posts[userID] = []uuid.UUID{seen.ID, fresh.ID}
	fx.ledger.seen = map[uuid.UUID]struct{}{seen.ID: {}}

	feed, err := fx.orch.Build(ctx, userID)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if feed.Diagnostics.AfterFilter != 1 {
		t.Fatalf("expected 1 candidate after filter, got %d", feed.Diagnostics.AfterFilter)
	}
	if len(feed.Items) != 1 || feed.Items[0].PostID != fresh.ID {
		t.Fatalf("seen post should be filtered: %+v", feed.Items)
	}
}

func TestBuildCapsBatchAfterFiltering(t *testing.T) {
	ctx := context.Background()
	log := testutil.Logger(t)
	db := testutil.DB(t)

	mailbox := newFakeMailbox()
	ledger := &fakeLedger{seen: map[uuid.UUID]struct{}{}}
	resolver := &fakeResolver{set: FeatureSet{Source: FeatureSourcePrimary, Posts: map[uuid.UUID]PostFeatures{}}}

	gen, err := NewGenerator(log, mailbox, &fakeIndex{}, newFakeVectors(), GeneratorConfig{
		CandidateLimit: MaxRankBatch + 50,
		VectorDim:      4,
	})
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	filter, err := NewFilter(log, ledger, 24*time.Hour)
	if err != nil {
		t.Fatalf("NewFilter: %v", err)
	}
	ranker, err := NewRanker(log, 42)
	if err != nil {
		t.Fatalf("NewRanker: %v", err)
	}
	reranker, err := NewReranker(log, repos.NewPostRepo(db, log), repos.NewUserRepo(db, log), fakeMediaURLs{})
	if err != nil {
		t.Fatalf("NewReranker: %v", err)
	}
	orch, err := NewOrchestrator(log, gen, filter, resolver, ranker, reranker, OrchestratorConfig{PageSize: 20})
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}

	// 10 more candidates than the rank batch holds, the first 10 of
	// which the user has already seen. Filtering must run before the
	// cap so every unseen candidate keeps its slot.
	userID := uuid.New()
	now := float64(time.Now().Unix())
	for i := 0; i < MaxRankBatch+10; i++ {
		id := uuid.New()
		mailbox.posts[userID] = append(mailbox.posts[userID], id)
		resolver.set.Posts[id] = PostFeatures{CreatedAtTS: now, TopicSim: 0.5, Affinity: 0.5}
		if i < 10 {
			ledger.seen[id] = struct{}{}
		}
	}

	feed, err := orch.Build(ctx, userID)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if feed.Diagnostics.AfterFilter != MaxRankBatch {
		t.Fatalf("expected %d candidates after filter, got %d", MaxRankBatch, feed.Diagnostics.AfterFilter)
	}
	if feed.Diagnostics.Ranked != MaxRankBatch {
		t.Fatalf("seen posts must not consume rank slots: ranked %d, want %d", feed.Diagnostics.Ranked, MaxRankBatch)
	}
}

func TestBuildReportsFeatureSourceAndLatency(t *testing.T) {
	ctx := context.Background()
	fx := newOrchestratorFixture(t)
	userID := uuid.New()
	author := testutil.SeedUser(t, ctx, fx.db, "fay")
	p := fx.seedPost(t, ctx, author, "post")
	fx.mailbox.posts[userID] = []uuid.UUID{p.ID}

	feed, err := fx.orch.Build(ctx, userID)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if feed.Diagnostics.FeatureSource != FeatureSourcePrimary {
		t.Fatalf("expected primary feature source, got %q", feed.Diagnostics.FeatureSource)
	}
	if feed.Diagnostics.LatencyMS < 0 {
		t.Fatalf("latency must be recorded")
	}
	if feed.Diagnostics.Returned != 1 {
		t.Fatalf("expected returned count 1, got %d", feed.Diagnostics.Returned)
	}
}

func TestBuildDiscoveryMatchesServe(t *testing.T) {
	ctx := context.Background()
	fx := newOrchestratorFixture(t)
	userID := uuid.New()
	author := testutil.SeedUser(t, ctx, fx.db, "gus")
	p := fx.seedPost(t, ctx, author, "discovered")

	fx.vectors.vectors[userID] = []float32{1, 0, 0, 0}
	fx.index.matches = []vectorindex.Match{{PostID: p.ID, Score: 0.87}}

	feed, err := fx.orch.Build(ctx, userID)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if feed.Diagnostics.DiscoveryCandidates != 1 {
		t.Fatalf("expected 1 discovery candidate, got %d", feed.Diagnostics.DiscoveryCandidates)
	}
	if len(feed.Items) != 1 || feed.Items[0].Source != SourceDiscovery {
		t.Fatalf("discovery candidate should serve with its source tag: %+v", feed.Items)
	}
}
