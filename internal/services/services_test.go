package services

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/waveline/waveline-backend/internal/clients/events"
)

type memFeatureCache struct {
	mu    sync.Mutex
	users map[uuid.UUID]map[string]float64
	posts map[uuid.UUID]map[string]float64
}

func newMemFeatureCache() *memFeatureCache {
	return &memFeatureCache{
		users: map[uuid.UUID]map[string]float64{},
		posts: map[uuid.UUID]map[string]float64{},
	}
}

func (m *memFeatureCache) UserFeatures(ctx context.Context, userID uuid.UUID) (map[string]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[userID], nil
}

func (m *memFeatureCache) SetUserFeatures(ctx context.Context, userID uuid.UUID, features map[string]float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[userID] = features
	return nil
}

func (m *memFeatureCache) PostFeatures(ctx context.Context, postIDs []uuid.UUID) (map[uuid.UUID]map[string]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[uuid.UUID]map[string]float64{}
	for _, id := range postIDs {
		if h, ok := m.posts[id]; ok {
			out[id] = h
		}
	}
	return out, nil
}

func (m *memFeatureCache) SetPostFeatures(ctx context.Context, postID uuid.UUID, features map[string]float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts[postID] = features
	return nil
}

type memVectors struct {
	mu      sync.Mutex
	vectors map[uuid.UUID][]float32
}

func newMemVectors() *memVectors {
	return &memVectors{vectors: map[uuid.UUID][]float32{}}
}

func (m *memVectors) Get(ctx context.Context, userID uuid.UUID) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vectors[userID], nil
}

func (m *memVectors) Set(ctx context.Context, userID uuid.UUID, vector []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vectors[userID] = vector
	return nil
}

type memMediaStore struct {
	uploaded map[uuid.UUID]string
	err      error
}

func newMemMediaStore() *memMediaStore {
	return &memMediaStore{uploaded: map[uuid.UUID]string{}}
}

func (m *memMediaStore) UploadMedia(ctx context.Context, postID uuid.UUID, mediaType string, payload io.Reader) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	key := fmt.Sprintf("media/%s", postID)
	m.uploaded[postID] = key
	return key, nil
}

func (m *memMediaStore) UploadMediaBase64(ctx context.Context, postID uuid.UUID, mediaType, encoded string) (string, error) {
	return m.UploadMedia(ctx, postID, mediaType, nil)
}

func (m *memMediaStore) DeleteMedia(ctx context.Context, key string) error { return nil }

func (m *memMediaStore) PublicURL(key string) string {
	return "https://cdn.test/" + key
}

type memPublisher struct {
	mu       sync.Mutex
	newPosts []events.NewPostEvent
	err      error
}

func (m *memPublisher) PublishNewPost(ctx context.Context, ev events.NewPostEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.newPosts = append(m.newPosts, ev)
	return nil
}

func (m *memPublisher) PublishImpressions(ctx context.Context, userID uuid.UUID, postIDs []uuid.UUID) error {
	return m.err
}
