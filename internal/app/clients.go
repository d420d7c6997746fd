package app

import (
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/waveline/waveline-backend/internal/clients/events"
	"github.com/waveline/waveline-backend/internal/clients/featurestore"
	"github.com/waveline/waveline-backend/internal/clients/impressions"
	"github.com/waveline/waveline-backend/internal/clients/media"
	"github.com/waveline/waveline-backend/internal/clients/redisstore"
	"github.com/waveline/waveline-backend/internal/clients/vectorindex"
	"github.com/waveline/waveline-backend/internal/platform/envutil"
	"github.com/waveline/waveline-backend/internal/platform/logger"
)

type Clients struct {
	Redis           *goredis.Client
	Mailbox         redisstore.Mailbox
	FeatureCache    redisstore.FeatureCache
	InterestVectors redisstore.InterestVectors
	VectorIndex     vectorindex.Index
	Ledger          impressions.Ledger
	FeatureStore    featurestore.Client
	Media           media.Store
	Bus             *events.Bus
}

// wireClients builds the collaborator set. Redis is required; every
// other collaborator is optional and its absence degrades the feature
// it backs (discovery retrieval, impression filtering, primary
// features, media URLs, eventing).
func wireClients(log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")
	var out Clients

	rdb, err := redisstore.NewClient(log)
	if err != nil {
		return out, fmt.Errorf("init redis: %w", err)
	}
	out.Redis = rdb

	out.Mailbox, err = redisstore.NewMailbox(log, rdb, redisstore.MailboxConfig{
		MaxSize: cfg.MailboxMaxSize,
		TTL:     cfg.MailboxTTL,
	})
	if err != nil {
		return out, fmt.Errorf("init mailbox: %w", err)
	}
	out.FeatureCache, err = redisstore.NewFeatureCache(log, rdb)
	if err != nil {
		return out, fmt.Errorf("init feature cache: %w", err)
	}
	out.InterestVectors, err = redisstore.NewInterestVectors(log, rdb)
	if err != nil {
		return out, fmt.Errorf("init interest vectors: %w", err)
	}

	out.VectorIndex, err = vectorindex.NewQdrantIndex(log, vectorindex.ConfigFromEnv())
	if err != nil {
		log.Warn("vector index unavailable; discovery retrieval disabled", "error", err)
		out.VectorIndex = nil
	}

	if envutil.Str("PINOT_BROKER_URL", "") != "" {
		out.Ledger, err = impressions.NewPinotLedger(log)
		if err != nil {
			log.Warn("impression ledger unavailable; filter will fail open", "error", err)
			out.Ledger = nil
		}
	} else {
		log.Warn("PINOT_BROKER_URL not set; impression filter will fail open")
	}

	if envutil.Str("FEATURE_SERVER_URL", "") != "" {
		out.FeatureStore, err = featurestore.NewClient(log)
		if err != nil {
			log.Warn("feature server unavailable; serving fallback features", "error", err)
			out.FeatureStore = nil
		}
	} else {
		log.Warn("FEATURE_SERVER_URL not set; serving fallback features")
	}

	if envutil.Str("MEDIA_GCS_BUCKET_NAME", "") != "" {
		out.Media, err = media.NewBucketStore(log)
		if err != nil {
			log.Warn("media storage unavailable; posts are text-only", "error", err)
			out.Media = nil
		}
	} else {
		log.Warn("MEDIA_GCS_BUCKET_NAME not set; posts are text-only")
	}

	out.Bus, err = events.NewBus(log)
	if err != nil {
		log.Warn("event bus unavailable; fan-out and impressions disabled", "error", err)
		out.Bus = nil
	}

	return out, nil
}

// Publisher returns the event publisher or nil when the bus is down.
// Callers treat nil as "events disabled".
func (c Clients) Publisher() events.Publisher {
	if c.Bus == nil {
		return nil
	}
	return c.Bus
}
