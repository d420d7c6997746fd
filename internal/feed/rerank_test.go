package feed

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/waveline/waveline-backend/internal/data/repos"
	"github.com/waveline/waveline-backend/internal/data/repos/testutil"
)

func TestFinalizeSortsAndHydrates(t *testing.T) {
	ctx := context.Background()
	log := testutil.Logger(t)
	db := testutil.DB(t)
	postRepo := repos.NewPostRepo(db, log)
	userRepo := repos.NewUserRepo(db, log)
	r, err := NewReranker(log, postRepo, userRepo, fakeMediaURLs{})
	if err != nil {
		t.Fatalf("NewReranker: %v", err)
	}

	author := testutil.SeedUser(t, ctx, db, "ada")
	low := testutil.SeedPost(t, ctx, db, author.ID, "low")
	high := testutil.SeedPost(t, ctx, db, author.ID, "high")
	if err := db.Model(high).Update("media_key", "media/"+high.ID.String()+".jpg").Error; err != nil {
		t.Fatalf("set media key: %v", err)
	}

	items, err := r.Finalize(ctx, []Scored{
		{Candidate: Candidate{PostID: low.ID, Source: SourceSocial}, Score: 0.2},
		{Candidate: Candidate{PostID: high.ID, Source: SourceDiscovery}, Score: 0.9},
	}, 20)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].PostID != high.ID {
		t.Fatalf("expected score-descending order")
	}
	if items[0].AuthorUsername != "ada" {
		t.Fatalf("author not hydrated: %+v", items[0])
	}
	if items[0].MediaURL == "" {
		t.Fatalf("media URL not resolved for post with media key")
	}
	if items[1].MediaURL != "" {
		t.Fatalf("media URL set for post without media")
	}
}

func TestFinalizeAuthorDiversityCapWithBackfill(t *testing.T) {
	ctx := context.Background()
	log := testutil.Logger(t)
	db := testutil.DB(t)
	postRepo := repos.NewPostRepo(db, log)
	userRepo := repos.NewUserRepo(db, log)
	r, err := NewReranker(log, postRepo, userRepo, fakeMediaURLs{})
	if err != nil {
		t.Fatalf("NewReranker: %v", err)
	}

	prolific := testutil.SeedUser(t, ctx, db, "prolific")
	other := testutil.SeedUser(t, ctx, db, "other")
	p1 := testutil.SeedPost(t, ctx, db, prolific.ID, "p1")
	p2 := testutil.SeedPost(t, ctx, db, prolific.ID, "p2")
	p3 := testutil.SeedPost(t, ctx, db, prolific.ID, "p3")
	o1 := testutil.SeedPost(t, ctx, db, other.ID, "o1")

	// The prolific author holds the top three scores; the cap admits
	// two and the other author's post backfills the page.
	items, err := r.Finalize(ctx, []Scored{
		{Candidate: Candidate{PostID: p1.ID, Source: SourceSocial}, Score: 0.9},
		{Candidate: Candidate{PostID: p2.ID, Source: SourceSocial}, Score: 0.8},
		{Candidate: Candidate{PostID: p3.ID, Source: SourceSocial}, Score: 0.7},
		{Candidate: Candidate{PostID: o1.ID, Source: SourceSocial}, Score: 0.1},
	}, 3)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected full page of 3, got %d", len(items))
	}
	counts := map[uuid.UUID]int{}
	for _, it := range items {
		counts[it.AuthorID]++
	}
	if counts[prolific.ID] != 2 {
		t.Fatalf("expected 2 posts from the prolific author, got %d", counts[prolific.ID])
	}
	if counts[other.ID] != 1 {
		t.Fatalf("expected the other author's post to backfill, got %d", counts[other.ID])
	}
	if items[2].PostID != o1.ID {
		t.Fatalf("backfilled post should rank last")
	}
}

func TestFinalizeBackfillsPastHydrationFailures(t *testing.T) {
	ctx := context.Background()
	log := testutil.Logger(t)
	db := testutil.DB(t)
	postRepo := repos.NewPostRepo(db, log)
	userRepo := repos.NewUserRepo(db, log)
	r, err := NewReranker(log, postRepo, userRepo, fakeMediaURLs{})
	if err != nil {
		t.Fatalf("NewReranker: %v", err)
	}

	author := testutil.SeedUser(t, ctx, db, "bob")
	kept := testutil.SeedPost(t, ctx, db, author.ID, "kept")
	deleted := uuid.New() // never persisted

	items, err := r.Finalize(ctx, []Scored{
		{Candidate: Candidate{PostID: deleted, Source: SourceSocial}, Score: 0.9},
		{Candidate: Candidate{PostID: kept.ID, Source: SourceSocial}, Score: 0.5},
	}, 1)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if len(items) != 1 || items[0].PostID != kept.ID {
		t.Fatalf("expected the persisted post to backfill the page, got %+v", items)
	}
}

func TestFinalizeDropsErroredCandidates(t *testing.T) {
	ctx := context.Background()
	log := testutil.Logger(t)
	db := testutil.DB(t)
	r, err := NewReranker(log, repos.NewPostRepo(db, log), repos.NewUserRepo(db, log), fakeMediaURLs{})
	if err != nil {
		t.Fatalf("NewReranker: %v", err)
	}
	items, err := r.Finalize(ctx, []Scored{
		{Candidate: Candidate{PostID: uuid.New()}, Err: context.DeadlineExceeded},
	}, 20)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("errored candidates must not surface, got %d items", len(items))
	}
}
