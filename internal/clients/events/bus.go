package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/waveline/waveline-backend/internal/platform/envutil"
	"github.com/waveline/waveline-backend/internal/platform/logger"
)

const (
	streamName         = "WAVELINE"
	SubjectNewPosts    = "posts.new"
	SubjectImpressions = "impressions.recorded"
)

// NewPostEvent triggers fan-out and (externally) the embedding
// pipeline. Delivery is at-least-once; consumers must be idempotent per
// post id.
type NewPostEvent struct {
	PostID    uuid.UUID `json:"post_id"`
	AuthorID  uuid.UUID `json:"user_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ImpressionEvent feeds the impression ledger. Timestamp is unix millis
// to match the ledger's ts column.
type ImpressionEvent struct {
	UserID    uuid.UUID `json:"user_id"`
	PostID    uuid.UUID `json:"post_id"`
	Timestamp int64     `json:"timestamp"`
}

type Publisher interface {
	PublishNewPost(ctx context.Context, ev NewPostEvent) error
	PublishImpressions(ctx context.Context, userID uuid.UUID, postIDs []uuid.UUID) error
}

type Bus struct {
	log *logger.Logger
	nc  *nats.Conn
	js  jetstream.JetStream
}

// NewBus connects to NATS and makes sure the JetStream stream backing
// both subjects exists. Stream creation is idempotent so every binary
// (API, fan-out worker, seeder) can call this at startup.
func NewBus(log *logger.Logger) (*Bus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	url := envutil.Str("NATS_URL", nats.DefaultURL)

	nc, err := nats.Connect(url,
		nats.Name("waveline"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{SubjectNewPosts, SubjectImpressions},
		Storage:  jetstream.FileStorage,
		// The broker drops duplicate publishes inside this window; the
		// fan-out engine's idempotent writes cover redeliveries beyond it.
		Duplicates: 2 * time.Minute,
		MaxAge:     envutil.Duration("EVENT_STREAM_MAX_AGE", 48*time.Hour),
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream %s: %w", streamName, err)
	}

	log.Info("NATS event bus connected", "url", url, "stream", streamName)
	return &Bus{log: log.With("service", "EventBus"), nc: nc, js: js}, nil
}

func (b *Bus) PublishNewPost(ctx context.Context, ev NewPostEvent) error {
	if b == nil || b.js == nil {
		return fmt.Errorf("event bus not initialized")
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode new-post event: %w", err)
	}
	// The post id doubles as the dedup key for the broker's duplicate
	// window.
	_, err = b.js.Publish(ctx, SubjectNewPosts, raw, jetstream.WithMsgID(ev.PostID.String()))
	if err != nil {
		return fmt.Errorf("publish new-post event: %w", err)
	}
	return nil
}

func (b *Bus) PublishImpressions(ctx context.Context, userID uuid.UUID, postIDs []uuid.UUID) error {
	if b == nil || b.js == nil {
		return fmt.Errorf("event bus not initialized")
	}
	ts := time.Now().UnixMilli()
	for _, pid := range postIDs {
		raw, err := json.Marshal(ImpressionEvent{UserID: userID, PostID: pid, Timestamp: ts})
		if err != nil {
			return fmt.Errorf("encode impression event: %w", err)
		}
		if _, err := b.js.Publish(ctx, SubjectImpressions, raw); err != nil {
			return fmt.Errorf("publish impression event: %w", err)
		}
	}
	return nil
}

// ConsumeNewPosts binds a durable consumer and invokes handle for every
// new-post event. A handler error naks the message for redelivery;
// success acks it. Returns a stop function.
func (b *Bus) ConsumeNewPosts(ctx context.Context, durable string, handle func(context.Context, NewPostEvent) error) (func(), error) {
	if b == nil || b.js == nil {
		return nil, fmt.Errorf("event bus not initialized")
	}
	cons, err := b.js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		Durable:       durable,
		FilterSubject: SubjectNewPosts,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
	})
	if err != nil {
		return nil, fmt.Errorf("bind consumer %s: %w", durable, err)
	}

	cctx, err := cons.Consume(func(msg jetstream.Msg) {
		var ev NewPostEvent
		if err := json.Unmarshal(msg.Data(), &ev); err != nil {
			b.log.Warn("dropping malformed new-post event", "error", err)
			_ = msg.Term()
			return
		}
		if err := handle(ctx, ev); err != nil {
			b.log.Warn("new-post handler failed; redelivering", "post_id", ev.PostID, "error", err)
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	})
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", SubjectNewPosts, err)
	}
	return cctx.Stop, nil
}

func (b *Bus) Close() {
	if b == nil || b.nc == nil {
		return
	}
	b.nc.Close()
}
