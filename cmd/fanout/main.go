package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/waveline/waveline-backend/internal/app"
	"github.com/waveline/waveline-backend/internal/clients/events"
	"github.com/waveline/waveline-backend/internal/clients/redisstore"
	"github.com/waveline/waveline-backend/internal/data/repos"
	"github.com/waveline/waveline-backend/internal/db"
	"github.com/waveline/waveline-backend/internal/fanout"
	"github.com/waveline/waveline-backend/internal/observability"
	"github.com/waveline/waveline-backend/internal/platform/logger"
)

const consumerName = "fanout-worker"

func main() {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg := app.LoadConfig(log)
	observability.Init(log)

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("postgres init failed", "error", err)
	}
	followRepo := repos.NewFollowRepo(pg.DB(), log)

	rdb, err := redisstore.NewClient(log)
	if err != nil {
		log.Fatal("redis init failed", "error", err)
	}
	mailbox, err := redisstore.NewMailbox(log, rdb, redisstore.MailboxConfig{
		MaxSize: cfg.MailboxMaxSize,
		TTL:     cfg.MailboxTTL,
	})
	if err != nil {
		log.Fatal("mailbox init failed", "error", err)
	}

	engine, err := fanout.NewEngine(log, followRepo, mailbox, fanout.Config{
		CelebrityThreshold: cfg.CelebrityThreshold,
		PartialFanoutLimit: cfg.PartialFanoutLimit,
		Parallelism:        cfg.FanoutParallelism,
	})
	if err != nil {
		log.Fatal("fanout engine init failed", "error", err)
	}

	bus, err := events.NewBus(log)
	if err != nil {
		log.Fatal("event bus init failed", "error", err)
	}
	defer bus.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stopConsume, err := bus.ConsumeNewPosts(ctx, consumerName, func(ctx context.Context, ev events.NewPostEvent) error {
		res, err := engine.OnNewPost(ctx, ev)
		if err != nil {
			return err
		}
		log.Info("fanout complete",
			"post_id", ev.PostID,
			"mode", res.Mode,
			"followers", res.FollowerCount,
			"written", res.Written,
			"failed", len(res.Failed),
		)
		return nil
	})
	if err != nil {
		log.Fatal("consumer start failed", "error", err)
	}
	defer stopConsume()

	log.Info("fanout worker running", "consumer", consumerName)
	<-ctx.Done()
	log.Info("fanout worker shutting down")
}
