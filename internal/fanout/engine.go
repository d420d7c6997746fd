package fanout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/waveline/waveline-backend/internal/clients/events"
	"github.com/waveline/waveline-backend/internal/clients/redisstore"
	"github.com/waveline/waveline-backend/internal/data/repos"
	"github.com/waveline/waveline-backend/internal/observability"
	"github.com/waveline/waveline-backend/internal/platform/logger"
)

const (
	ModeFull       = "full"
	ModePartial    = "partial"
	ModeSuppressed = "suppressed"
)

type Config struct {
	// Authors above this follower count skip per-follower delivery.
	CelebrityThreshold int
	// Mailboxes written for a celebrity post; 0 suppresses fan-out
	// entirely and leaves delivery to discovery retrieval.
	PartialFanoutLimit int
	// Concurrent mailbox writes per run.
	Parallelism int
}

// Result summarizes one fan-out run. Failed lists followers whose
// mailbox write failed; the rest of the run is unaffected and a retry
// is safe because mailbox pushes are idempotent.
type Result struct {
	PostID        uuid.UUID
	FollowerCount int
	Written       int
	Failed        []uuid.UUID
	Celebrity     bool
	Mode          string
}

// Engine delivers a new post into follower mailboxes.
type Engine interface {
	OnNewPost(ctx context.Context, ev events.NewPostEvent) (Result, error)
}

type engine struct {
	log        *logger.Logger
	followRepo repos.FollowRepo
	mailbox    redisstore.Mailbox
	cfg        Config
}

func NewEngine(log *logger.Logger, followRepo repos.FollowRepo, mailbox redisstore.Mailbox, cfg Config) (Engine, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if followRepo == nil {
		return nil, fmt.Errorf("follow repo required")
	}
	if mailbox == nil {
		return nil, fmt.Errorf("mailbox required")
	}
	if cfg.CelebrityThreshold <= 0 {
		cfg.CelebrityThreshold = 10000
	}
	if cfg.PartialFanoutLimit < 0 {
		cfg.PartialFanoutLimit = 0
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 16
	}
	return &engine{
		log:        log.With("service", "FanoutEngine"),
		followRepo: followRepo,
		mailbox:    mailbox,
		cfg:        cfg,
	}, nil
}

func (e *engine) OnNewPost(ctx context.Context, ev events.NewPostEvent) (Result, error) {
	start := time.Now()
	res := Result{PostID: ev.PostID, Mode: ModeFull}

	count, err := e.followRepo.CountFollowers(ctx, nil, ev.AuthorID)
	if err != nil {
		return res, fmt.Errorf("count followers: %w", err)
	}
	res.FollowerCount = int(count)

	limit := res.FollowerCount
	if res.FollowerCount > e.cfg.CelebrityThreshold {
		res.Celebrity = true
		limit = e.cfg.PartialFanoutLimit
		res.Mode = ModePartial
		if limit == 0 {
			res.Mode = ModeSuppressed
			e.log.Info("fan-out suppressed for celebrity author",
				"post_id", ev.PostID,
				"author_id", ev.AuthorID,
				"follower_count", res.FollowerCount,
			)
			e.observe(res, start)
			return res, nil
		}
	}

	followerIDs, err := e.followRepo.FollowerIDs(ctx, nil, ev.AuthorID, limit)
	if err != nil {
		return res, fmt.Errorf("fetch followers: %w", err)
	}

	score := float64(ev.CreatedAt.Unix())
	var (
		mu      sync.Mutex
		written int
		failed  []uuid.UUID
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(e.cfg.Parallelism)
	for _, fid := range followerIDs {
		fid := fid
		eg.Go(func() error {
			if err := e.mailbox.Push(egCtx, fid, ev.PostID, score); err != nil {
				e.log.Warn("mailbox write failed",
					"post_id", ev.PostID,
					"follower_id", fid,
					"error", err,
				)
				mu.Lock()
				failed = append(failed, fid)
				mu.Unlock()
				return nil
			}
			mu.Lock()
			written++
			mu.Unlock()
			return nil
		})
	}
	// Per-follower failures are collected, never propagated.
	_ = eg.Wait()

	res.Written = written
	res.Failed = failed
	e.observe(res, start)

	if len(failed) > 0 {
		e.log.Warn("fan-out completed with failures",
			"post_id", ev.PostID,
			"written", written,
			"failed", len(failed),
		)
	}
	return res, nil
}

func (e *engine) observe(res Result, start time.Time) {
	observability.Current().ObserveFanout(res.Mode, res.FollowerCount, res.Written, len(res.Failed), time.Since(start))
}
