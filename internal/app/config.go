package app

import (
	"time"

	"github.com/waveline/waveline-backend/internal/platform/envutil"
	"github.com/waveline/waveline-backend/internal/platform/logger"
)

type Config struct {
	Environment string
	Version     string

	VectorDim      int
	PageSize       int
	CandidateLimit int

	CelebrityThreshold int
	PartialFanoutLimit int
	FanoutParallelism  int

	ImpressionWindow time.Duration
	RetrievalTimeout time.Duration
	FilterTimeout    time.Duration
	FeatureTimeout   time.Duration
	HydrateTimeout   time.Duration

	JitterSeed int64

	MailboxMaxSize int
	MailboxTTL     time.Duration

	MetricsAddr string
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		Environment: envutil.Str("ENVIRONMENT", "development"),
		Version:     envutil.Str("SERVICE_VERSION", "dev"),

		VectorDim:      envutil.Int("EMBEDDING_DIMENSION", 384),
		PageSize:       envutil.Int("FEED_PAGE_SIZE", 20),
		CandidateLimit: envutil.Int("FEED_CANDIDATE_LIMIT", 100),

		CelebrityThreshold: envutil.Int("CELEBRITY_FOLLOWER_THRESHOLD", 10000),
		PartialFanoutLimit: envutil.Int("CELEBRITY_PARTIAL_FANOUT_LIMIT", 0),
		FanoutParallelism:  envutil.Int("FANOUT_PARALLELISM", 16),

		ImpressionWindow: envutil.Duration("IMPRESSION_WINDOW", 24*time.Hour),
		RetrievalTimeout: envutil.Duration("FEED_RETRIEVAL_TIMEOUT", 800*time.Millisecond),
		FilterTimeout:    envutil.Duration("FEED_FILTER_TIMEOUT", 500*time.Millisecond),
		FeatureTimeout:   envutil.Duration("FEED_FEATURE_TIMEOUT", 2*time.Second),
		HydrateTimeout:   envutil.Duration("FEED_HYDRATE_TIMEOUT", time.Second),

		JitterSeed: envutil.Int64("RANKER_JITTER_SEED", 0),

		MailboxMaxSize: envutil.Int("MAILBOX_MAX_SIZE", 500),
		MailboxTTL:     envutil.Duration("MAILBOX_TTL", 24*time.Hour),

		MetricsAddr: envutil.Str("METRICS_ADDR", ""),
	}
	log.Info("configuration loaded",
		"environment", cfg.Environment,
		"vector_dim", cfg.VectorDim,
		"page_size", cfg.PageSize,
		"celebrity_threshold", cfg.CelebrityThreshold,
	)
	return cfg
}
