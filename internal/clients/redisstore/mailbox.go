package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/waveline/waveline-backend/internal/platform/logger"
)

// Mailbox is the per-user sorted set of candidate post ids written by
// fan-out and read by candidate generation. The member is the post id
// and the score is the post creation time, so ZREVRANGE yields newest
// first. Pushing the same post twice only updates its score, which is
// what makes fan-out retries safe.
type Mailbox interface {
	Push(ctx context.Context, userID, postID uuid.UUID, score float64) error
	TopN(ctx context.Context, userID uuid.UUID, n int) ([]uuid.UUID, error)
}

type MailboxConfig struct {
	MaxSize int
	TTL     time.Duration
}

type mailbox struct {
	log *logger.Logger
	rdb *goredis.Client
	cfg MailboxConfig
}

func NewMailbox(log *logger.Logger, rdb *goredis.Client, cfg MailboxConfig) (Mailbox, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 500
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	return &mailbox{
		log: log.With("service", "Mailbox"),
		rdb: rdb,
		cfg: cfg,
	}, nil
}

func mailboxKey(userID uuid.UUID) string {
	return "feed:" + userID.String()
}

func (m *mailbox) Push(ctx context.Context, userID, postID uuid.UUID, score float64) error {
	if m == nil || m.rdb == nil {
		return fmt.Errorf("mailbox not initialized")
	}
	key := mailboxKey(userID)
	pipe := m.rdb.Pipeline()
	pipe.ZAdd(ctx, key, goredis.Z{Score: score, Member: postID.String()})
	// Keep the mailbox bounded; lowest-score (oldest) entries go first.
	pipe.ZRemRangeByRank(ctx, key, 0, int64(-(m.cfg.MaxSize + 1)))
	pipe.Expire(ctx, key, m.cfg.TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mailbox push: %w", err)
	}
	return nil
}

func (m *mailbox) TopN(ctx context.Context, userID uuid.UUID, n int) ([]uuid.UUID, error) {
	if m == nil || m.rdb == nil {
		return nil, fmt.Errorf("mailbox not initialized")
	}
	if n <= 0 {
		return nil, nil
	}
	members, err := m.rdb.ZRevRange(ctx, mailboxKey(userID), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("mailbox read: %w", err)
	}
	out := make([]uuid.UUID, 0, len(members))
	for _, member := range members {
		id, err := uuid.Parse(member)
		if err != nil {
			m.log.Warn("skipping malformed mailbox member", "member", member)
			continue
		}
		out = append(out, id)
	}
	return out, nil
}
