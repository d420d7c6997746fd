package feed

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/waveline/waveline-backend/internal/clients/vectorindex"
	"github.com/waveline/waveline-backend/internal/data/repos/testutil"
)

func TestRetrieveMergesPoolsPreferringSocial(t *testing.T) {
	ctx := context.Background()
	log := testutil.Logger(t)
	userID := uuid.New()

	shared := uuid.New()
	socialOnly := uuid.New()
	discoveryOnly := uuid.New()

	mb := newFakeMailbox()
	mb.posts[userID] = []uuid.UUID{socialOnly, shared}
	idx := &fakeIndex{matches: []vectorindex.Match{
		{PostID: shared, Score: 0.9},
		{PostID: discoveryOnly, Score: 0.8},
	}}
	vecs := newFakeVectors()
	vecs.vectors[userID] = []float32{0.1, 0.2, 0.3}

	gen, err := NewGenerator(log, mb, idx, vecs, GeneratorConfig{VectorDim: 3})
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}

	res, err := gen.Retrieve(ctx, userID)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if res.SocialCount != 2 || res.DiscoveryCount != 2 {
		t.Fatalf("expected counts 2/2, got %d/%d", res.SocialCount, res.DiscoveryCount)
	}
	if len(res.Candidates) != 3 {
		t.Fatalf("expected 3 deduped candidates, got %d", len(res.Candidates))
	}
	sources := map[uuid.UUID]Source{}
	for _, c := range res.Candidates {
		sources[c.PostID] = c.Source
	}
	if sources[shared] != SourceSocial {
		t.Fatalf("shared candidate should keep the social tag, got %s", sources[shared])
	}
	if sources[discoveryOnly] != SourceDiscovery {
		t.Fatalf("discovery-only candidate mis-tagged: %s", sources[discoveryOnly])
	}
}

func TestRetrieveDegradesDiscoveryOnIndexFailure(t *testing.T) {
	ctx := context.Background()
	log := testutil.Logger(t)
	userID := uuid.New()

	mb := newFakeMailbox()
	mb.posts[userID] = []uuid.UUID{uuid.New(), uuid.New()}
	idx := &fakeIndex{err: fmt.Errorf("index down")}
	vecs := newFakeVectors()
	vecs.vectors[userID] = []float32{1, 0, 0}

	gen, err := NewGenerator(log, mb, idx, vecs, GeneratorConfig{VectorDim: 3})
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}

	res, err := gen.Retrieve(ctx, userID)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if !res.DiscoveryDegraded {
		t.Fatalf("expected discovery degradation marker")
	}
	if res.DiscoveryCount != 0 {
		t.Fatalf("expected 0 discovery candidates, got %d", res.DiscoveryCount)
	}
	if res.SocialCount != 2 || len(res.Candidates) != 2 {
		t.Fatalf("social pool should survive: counts %d/%d", res.SocialCount, len(res.Candidates))
	}
	for _, c := range res.Candidates {
		if c.Source != SourceSocial {
			t.Fatalf("unexpected source %s in social-only result", c.Source)
		}
	}
}

func TestRetrieveDegradesSocialOnMailboxFailure(t *testing.T) {
	ctx := context.Background()
	log := testutil.Logger(t)
	userID := uuid.New()

	mb := newFakeMailbox()
	mb.err = fmt.Errorf("redis down")
	idx := &fakeIndex{matches: []vectorindex.Match{{PostID: uuid.New(), Score: 0.5}}}
	vecs := newFakeVectors()
	vecs.vectors[userID] = []float32{1, 0, 0}

	gen, err := NewGenerator(log, mb, idx, vecs, GeneratorConfig{VectorDim: 3})
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}

	res, err := gen.Retrieve(ctx, userID)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if !res.SocialDegraded || res.SocialCount != 0 {
		t.Fatalf("expected degraded empty social pool, got degraded=%v count=%d", res.SocialDegraded, res.SocialCount)
	}
	if res.DiscoveryCount != 1 {
		t.Fatalf("discovery pool should survive, got %d", res.DiscoveryCount)
	}
}

func TestColdStartVectorSeedsLazily(t *testing.T) {
	ctx := context.Background()
	log := testutil.Logger(t)
	userID := uuid.New()

	mb := newFakeMailbox()
	idx := &fakeIndex{}
	vecs := newFakeVectors()

	gen, err := NewGenerator(log, mb, idx, vecs, GeneratorConfig{VectorDim: 8})
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	if _, err := gen.Retrieve(ctx, userID); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	stored := vecs.vectors[userID]
	if len(stored) != 8 {
		t.Fatalf("expected stored cold-start vector of dim 8, got %d", len(stored))
	}
	for i, v := range stored {
		if v < -1 || v >= 1 {
			t.Fatalf("component %d out of [-1,1): %f", i, v)
		}
	}
	// Same user must regenerate the identical vector on retry.
	again := ColdStartVector(userID, 8)
	for i := range stored {
		if stored[i] != again[i] {
			t.Fatalf("cold-start vector not reproducible at %d", i)
		}
	}
}
