package app

import (
	"fmt"

	"github.com/waveline/waveline-backend/internal/fanout"
	"github.com/waveline/waveline-backend/internal/feed"
	"github.com/waveline/waveline-backend/internal/platform/logger"
	"github.com/waveline/waveline-backend/internal/services"
)

type Services struct {
	User         services.UserService
	Post         services.PostService
	Orchestrator feed.Orchestrator
	Fanout       fanout.Engine
}

func wireServices(log *logger.Logger, cfg Config, clients Clients, reposet Repos) (Services, error) {
	log.Info("Wiring services...")
	var out Services
	var err error

	out.User, err = services.NewUserService(log, reposet.User, reposet.Follow, clients.FeatureCache, clients.InterestVectors, cfg.VectorDim)
	if err != nil {
		return out, fmt.Errorf("init user service: %w", err)
	}
	out.Post, err = services.NewPostService(log, reposet.Post, reposet.User, reposet.Like, clients.FeatureCache, clients.Media, clients.Publisher())
	if err != nil {
		return out, fmt.Errorf("init post service: %w", err)
	}

	generator, err := feed.NewGenerator(log, clients.Mailbox, clients.VectorIndex, clients.InterestVectors, feed.GeneratorConfig{
		CandidateLimit: cfg.CandidateLimit,
		Timeout:        cfg.RetrievalTimeout,
		VectorDim:      cfg.VectorDim,
	})
	if err != nil {
		return out, fmt.Errorf("init candidate generator: %w", err)
	}
	filter, err := feed.NewFilter(log, clients.Ledger, cfg.ImpressionWindow)
	if err != nil {
		return out, fmt.Errorf("init impression filter: %w", err)
	}

	fallback, err := feed.NewFallbackResolver(log, clients.FeatureCache, clients.InterestVectors)
	if err != nil {
		return out, fmt.Errorf("init fallback resolver: %w", err)
	}
	var primary feed.Resolver
	if clients.FeatureStore != nil {
		primary, err = feed.NewPrimaryResolver(log, clients.FeatureStore)
		if err != nil {
			return out, fmt.Errorf("init primary resolver: %w", err)
		}
	}
	resolver, err := feed.NewFailoverResolver(log, primary, fallback)
	if err != nil {
		return out, fmt.Errorf("init feature resolver: %w", err)
	}

	ranker, err := feed.NewRanker(log, cfg.JitterSeed)
	if err != nil {
		return out, fmt.Errorf("init ranker: %w", err)
	}
	reranker, err := feed.NewReranker(log, reposet.Post, reposet.User, clients.Media)
	if err != nil {
		return out, fmt.Errorf("init reranker: %w", err)
	}
	out.Orchestrator, err = feed.NewOrchestrator(log, generator, filter, resolver, ranker, reranker, feed.OrchestratorConfig{
		PageSize:       cfg.PageSize,
		FilterTimeout:  cfg.FilterTimeout,
		FeatureTimeout: cfg.FeatureTimeout,
		HydrateTimeout: cfg.HydrateTimeout,
	})
	if err != nil {
		return out, fmt.Errorf("init orchestrator: %w", err)
	}

	out.Fanout, err = fanout.NewEngine(log, reposet.Follow, clients.Mailbox, fanout.Config{
		CelebrityThreshold: cfg.CelebrityThreshold,
		PartialFanoutLimit: cfg.PartialFanoutLimit,
		Parallelism:        cfg.FanoutParallelism,
	})
	if err != nil {
		return out, fmt.Errorf("init fanout engine: %w", err)
	}

	return out, nil
}
