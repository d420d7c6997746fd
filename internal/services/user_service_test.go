package services

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/google/uuid"

	"github.com/waveline/waveline-backend/internal/data/repos"
	"github.com/waveline/waveline-backend/internal/data/repos/testutil"
	"github.com/waveline/waveline-backend/internal/platform/apierr"
)

func newUserService(t *testing.T) (UserService, *memFeatureCache, *memVectors) {
	t.Helper()
	log := testutil.Logger(t)
	db := testutil.DB(t)
	cache := newMemFeatureCache()
	vectors := newMemVectors()
	svc, err := NewUserService(log, repos.NewUserRepo(db, log), repos.NewFollowRepo(db, log), cache, vectors, 16)
	if err != nil {
		t.Fatalf("NewUserService: %v", err)
	}
	return svc, cache, vectors
}

func apiStatus(t *testing.T, err error) int {
	t.Helper()
	var ae *apierr.Error
	if !errors.As(err, &ae) {
		t.Fatalf("expected apierr, got %v", err)
	}
	return ae.Status
}

func TestRegisterSeedsVectorAndFeatures(t *testing.T) {
	ctx := context.Background()
	svc, cache, vectors := newUserService(t)

	user, err := svc.Register(ctx, "ada", "Ada L")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.ID == uuid.Nil {
		t.Fatalf("missing user id")
	}

	vec := vectors.vectors[user.ID]
	if len(vec) != 16 {
		t.Fatalf("expected seeded interest vector of dim 16, got %d", len(vec))
	}
	for i, v := range vec {
		if v < -1 || v >= 1 {
			t.Fatalf("vector component %d out of range: %f", i, v)
		}
	}
	uf := cache.users[user.ID]
	if uf == nil {
		t.Fatalf("user feature cache not seeded")
	}
	if uf["follower_count"] != 0 || uf["avg_engagement_rate"] != 0 {
		t.Fatalf("fresh user features should be zero: %+v", uf)
	}
}

func TestRegisterRejectsDuplicateUsername(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newUserService(t)

	if _, err := svc.Register(ctx, "ada", ""); err != nil {
		t.Fatalf("first register: %v", err)
	}
	_, err := svc.Register(ctx, "ada", "")
	if err == nil {
		t.Fatalf("expected conflict")
	}
	if got := apiStatus(t, err); got != http.StatusConflict {
		t.Fatalf("expected 409, got %d", got)
	}
}

func TestFollowIsIdempotentAndCountsOnce(t *testing.T) {
	ctx := context.Background()
	svc, cache, _ := newUserService(t)

	alice, err := svc.Register(ctx, "alice", "")
	if err != nil {
		t.Fatalf("register alice: %v", err)
	}
	bob, err := svc.Register(ctx, "bob", "")
	if err != nil {
		t.Fatalf("register bob: %v", err)
	}

	if err := svc.Follow(ctx, alice.ID, bob.ID); err != nil {
		t.Fatalf("follow: %v", err)
	}
	if err := svc.Follow(ctx, alice.ID, bob.ID); err != nil {
		t.Fatalf("repeat follow: %v", err)
	}

	got, err := svc.Get(ctx, bob.ID)
	if err != nil {
		t.Fatalf("get bob: %v", err)
	}
	if got.FollowerCount != 1 {
		t.Fatalf("repeat follow must not double count, got %d", got.FollowerCount)
	}
	if cache.users[bob.ID]["follower_count"] != 1 {
		t.Fatalf("feature cache not refreshed: %+v", cache.users[bob.ID])
	}
}

func TestFollowRejectsSelfFollow(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newUserService(t)

	u, err := svc.Register(ctx, "solo", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	err = svc.Follow(ctx, u.ID, u.ID)
	if err == nil {
		t.Fatalf("expected self-follow rejection")
	}
	if got := apiStatus(t, err); got != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", got)
	}
}

func TestFollowUnknownUserIs404(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newUserService(t)

	u, err := svc.Register(ctx, "known", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	err = svc.Follow(ctx, u.ID, uuid.New())
	if err == nil {
		t.Fatalf("expected not-found")
	}
	if got := apiStatus(t, err); got != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", got)
	}
}

func TestUnfollowDropsCount(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newUserService(t)

	alice, _ := svc.Register(ctx, "alice", "")
	bob, _ := svc.Register(ctx, "bob", "")
	if err := svc.Follow(ctx, alice.ID, bob.ID); err != nil {
		t.Fatalf("follow: %v", err)
	}
	if err := svc.Unfollow(ctx, alice.ID, bob.ID); err != nil {
		t.Fatalf("unfollow: %v", err)
	}
	// Unfollowing again is a no-op.
	if err := svc.Unfollow(ctx, alice.ID, bob.ID); err != nil {
		t.Fatalf("repeat unfollow: %v", err)
	}
	got, err := svc.Get(ctx, bob.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.FollowerCount != 0 {
		t.Fatalf("expected follower count back to 0, got %d", got.FollowerCount)
	}
}

func TestFollowersList(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newUserService(t)

	star, _ := svc.Register(ctx, "star", "")
	f1, _ := svc.Register(ctx, "f1", "")
	f2, _ := svc.Register(ctx, "f2", "")
	if err := svc.Follow(ctx, f1.ID, star.ID); err != nil {
		t.Fatalf("follow f1: %v", err)
	}
	if err := svc.Follow(ctx, f2.ID, star.ID); err != nil {
		t.Fatalf("follow f2: %v", err)
	}

	followers, err := svc.Followers(ctx, star.ID, 10)
	if err != nil {
		t.Fatalf("Followers: %v", err)
	}
	if len(followers) != 2 {
		t.Fatalf("expected 2 followers, got %d", len(followers))
	}
}
