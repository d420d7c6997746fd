package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/waveline/waveline-backend/internal/clients/vectorindex"
)

type fakeMailbox struct {
	mu    sync.Mutex
	posts map[uuid.UUID][]uuid.UUID
	err   error
}

func newFakeMailbox() *fakeMailbox {
	return &fakeMailbox{posts: map[uuid.UUID][]uuid.UUID{}}
}

func (f *fakeMailbox) Push(ctx context.Context, userID, postID uuid.UUID, score float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.posts[userID] = append(f.posts[userID], postID)
	return nil
}

func (f *fakeMailbox) TopN(ctx context.Context, userID uuid.UUID, n int) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	ids := f.posts[userID]
	if len(ids) > n {
		ids = ids[:n]
	}
	out := make([]uuid.UUID, len(ids))
	copy(out, ids)
	return out, nil
}

type fakeIndex struct {
	matches []vectorindex.Match
	err     error
}

func (f *fakeIndex) Upsert(ctx context.Context, postID uuid.UUID, vector []float32, payload map[string]any) error {
	return f.err
}

func (f *fakeIndex) Search(ctx context.Context, query []float32, topK int, excludeAuthor uuid.UUID) ([]vectorindex.Match, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.matches) > topK {
		return f.matches[:topK], nil
	}
	return f.matches, nil
}

type fakeVectors struct {
	vectors map[uuid.UUID][]float32
	getErr  error
}

func newFakeVectors() *fakeVectors {
	return &fakeVectors{vectors: map[uuid.UUID][]float32{}}
}

func (f *fakeVectors) Get(ctx context.Context, userID uuid.UUID) ([]float32, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.vectors[userID], nil
}

func (f *fakeVectors) Set(ctx context.Context, userID uuid.UUID, vector []float32) error {
	f.vectors[userID] = vector
	return nil
}

type fakeLedger struct {
	seen map[uuid.UUID]struct{}
	err  error
}

func (f *fakeLedger) SeenPostIDs(ctx context.Context, userID uuid.UUID, since time.Time) (map[uuid.UUID]struct{}, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.seen, nil
}

type fakeFeatureCache struct {
	user  map[string]float64
	posts map[uuid.UUID]map[string]float64
	err   error
}

func (f *fakeFeatureCache) UserFeatures(ctx context.Context, userID uuid.UUID) (map[string]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.user, nil
}

func (f *fakeFeatureCache) SetUserFeatures(ctx context.Context, userID uuid.UUID, features map[string]float64) error {
	return nil
}

func (f *fakeFeatureCache) PostFeatures(ctx context.Context, postIDs []uuid.UUID) (map[uuid.UUID]map[string]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	// Mirrors the real cache: one entry per requested id, empty hash
	// when the key is absent or expired.
	out := map[uuid.UUID]map[string]float64{}
	for _, id := range postIDs {
		if h, ok := f.posts[id]; ok {
			out[id] = h
		} else {
			out[id] = map[string]float64{}
		}
	}
	return out, nil
}

func (f *fakeFeatureCache) SetPostFeatures(ctx context.Context, postID uuid.UUID, features map[string]float64) error {
	return nil
}

type fakeResolver struct {
	set FeatureSet
	err error
}

func (f *fakeResolver) Resolve(ctx context.Context, userID uuid.UUID, candidates []Candidate) (FeatureSet, error) {
	if f.err != nil {
		return FeatureSet{}, f.err
	}
	return f.set, nil
}

type fakeMediaURLs struct{}

func (fakeMediaURLs) PublicURL(key string) string {
	return fmt.Sprintf("https://cdn.test/%s", key)
}
