package redisstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/waveline/waveline-backend/internal/platform/logger"
)

// FeatureCache is the degraded-mode feature source: flat hashes keyed
// uf:{user} and pf:{post}, seeded on the write path and refreshed on
// likes. It only carries numeric features; anything it cannot supply is
// defaulted by the resolver.
type FeatureCache interface {
	UserFeatures(ctx context.Context, userID uuid.UUID) (map[string]float64, error)
	SetUserFeatures(ctx context.Context, userID uuid.UUID, features map[string]float64) error
	PostFeatures(ctx context.Context, postIDs []uuid.UUID) (map[uuid.UUID]map[string]float64, error)
	SetPostFeatures(ctx context.Context, postID uuid.UUID, features map[string]float64) error
}

type featureCache struct {
	log     *logger.Logger
	rdb     *goredis.Client
	userTTL time.Duration
	postTTL time.Duration
}

func NewFeatureCache(log *logger.Logger, rdb *goredis.Client) (FeatureCache, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	return &featureCache{
		log:     log.With("service", "FeatureCache"),
		rdb:     rdb,
		userTTL: time.Hour,
		postTTL: 2 * time.Hour,
	}, nil
}

func userFeatureKey(userID uuid.UUID) string { return "uf:" + userID.String() }
func postFeatureKey(postID uuid.UUID) string { return "pf:" + postID.String() }

func (c *featureCache) UserFeatures(ctx context.Context, userID uuid.UUID) (map[string]float64, error) {
	raw, err := c.rdb.HGetAll(ctx, userFeatureKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("user feature read: %w", err)
	}
	return parseFeatureHash(raw), nil
}

func (c *featureCache) SetUserFeatures(ctx context.Context, userID uuid.UUID, features map[string]float64) error {
	key := userFeatureKey(userID)
	pipe := c.rdb.Pipeline()
	pipe.HSet(ctx, key, formatFeatureHash(features))
	pipe.Expire(ctx, key, c.userTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (c *featureCache) PostFeatures(ctx context.Context, postIDs []uuid.UUID) (map[uuid.UUID]map[string]float64, error) {
	out := make(map[uuid.UUID]map[string]float64, len(postIDs))
	if len(postIDs) == 0 {
		return out, nil
	}
	pipe := c.rdb.Pipeline()
	cmds := make([]*goredis.MapStringStringCmd, len(postIDs))
	for i, pid := range postIDs {
		cmds[i] = pipe.HGetAll(ctx, postFeatureKey(pid))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("post feature read: %w", err)
	}
	for i, pid := range postIDs {
		out[pid] = parseFeatureHash(cmds[i].Val())
	}
	return out, nil
}

func (c *featureCache) SetPostFeatures(ctx context.Context, postID uuid.UUID, features map[string]float64) error {
	key := postFeatureKey(postID)
	pipe := c.rdb.Pipeline()
	pipe.HSet(ctx, key, formatFeatureHash(features))
	pipe.Expire(ctx, key, c.postTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func parseFeatureHash(raw map[string]string) map[string]float64 {
	out := make(map[string]float64, len(raw))
	for k, v := range raw {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			continue
		}
		out[k] = f
	}
	return out
}

func formatFeatureHash(features map[string]float64) map[string]string {
	out := make(map[string]string, len(features))
	for k, v := range features {
		out[k] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return out
}
