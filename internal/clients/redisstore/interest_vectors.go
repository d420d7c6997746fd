package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/waveline/waveline-backend/internal/platform/logger"
)

// InterestVectors stores the per-user interest embedding under
// iv:{user} as a JSON float array. Get returns (nil, nil) when the user
// has no vector yet; callers decide how to cold-start.
type InterestVectors interface {
	Get(ctx context.Context, userID uuid.UUID) ([]float32, error)
	Set(ctx context.Context, userID uuid.UUID, vector []float32) error
}

type interestVectors struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

func NewInterestVectors(log *logger.Logger, rdb *goredis.Client) (InterestVectors, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	return &interestVectors{
		log: log.With("service", "InterestVectors"),
		rdb: rdb,
		ttl: 24 * time.Hour,
	}, nil
}

func interestVectorKey(userID uuid.UUID) string { return "iv:" + userID.String() }

func (s *interestVectors) Get(ctx context.Context, userID uuid.UUID) ([]float32, error) {
	raw, err := s.rdb.Get(ctx, interestVectorKey(userID)).Result()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("interest vector read: %w", err)
	}
	var vec []float32
	if err := json.Unmarshal([]byte(raw), &vec); err != nil {
		return nil, fmt.Errorf("interest vector decode: %w", err)
	}
	return vec, nil
}

func (s *interestVectors) Set(ctx context.Context, userID uuid.UUID, vector []float32) error {
	raw, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("interest vector encode: %w", err)
	}
	return s.rdb.Set(ctx, interestVectorKey(userID), raw, s.ttl).Err()
}
