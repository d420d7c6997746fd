package featurestore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/waveline/waveline-backend/internal/platform/envutil"
	"github.com/waveline/waveline-backend/internal/platform/logger"
)

// Feature view prefixes follow the feature server's
// <feature_view>__<feature_name> column naming.
const (
	userPrefix     = "user_stats__"
	postPrefix     = "post_stats__"
	affinityPrefix = "user_author_affinity__"
)

// UserRecord and PostRecord are raw feature rows as served by the
// feature server; vector fields arrive JSON-encoded.
type UserRecord struct {
	FollowerCount      float64
	AvgEngagementRate  float64
	InterestVectorJSON string
}

type PostRecord struct {
	AuthorID      uuid.UUID
	LikeCount     float64
	CreatedAtTS   float64
	HasMedia      bool
	ContentLength float64
	EmbeddingJSON string
}

// Client is the primary online feature source. Any transport or decode
// error is returned to the caller, which degrades to the cache-backed
// fallback.
type Client interface {
	RankingFeatures(ctx context.Context, userID uuid.UUID, postIDs []uuid.UUID) (UserRecord, map[uuid.UUID]PostRecord, error)
	AffinityScores(ctx context.Context, userID uuid.UUID, authorIDs []uuid.UUID) (map[uuid.UUID]float64, error)
}

type client struct {
	log     *logger.Logger
	baseURL string
	http    *http.Client
}

func NewClient(log *logger.Logger) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	baseURL := envutil.Str("FEATURE_SERVER_URL", "")
	if baseURL == "" {
		return nil, fmt.Errorf("missing FEATURE_SERVER_URL")
	}
	return &client{
		log:     log.With("service", "FeatureStoreClient"),
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			// The feature server sits on the request hot path; a slow
			// answer is worse than a fallback answer.
			Timeout: 1500 * time.Millisecond,
		},
	}, nil
}

type onlineFeaturesRequest struct {
	FeatureService string              `json:"feature_service,omitempty"`
	Features       []string            `json:"features,omitempty"`
	Entities       map[string][]string `json:"entities"`
}

type onlineFeaturesResponse struct {
	Metadata struct {
		FeatureNames []string `json:"feature_names"`
	} `json:"metadata"`
	Results []struct {
		Values []any `json:"values"`
	} `json:"results"`
}

func (c *client) RankingFeatures(ctx context.Context, userID uuid.UUID, postIDs []uuid.UUID) (UserRecord, map[uuid.UUID]PostRecord, error) {
	var user UserRecord
	if len(postIDs) == 0 {
		return user, map[uuid.UUID]PostRecord{}, nil
	}

	n := len(postIDs)
	userIDs := make([]string, n)
	postIDStrs := make([]string, n)
	for i, pid := range postIDs {
		userIDs[i] = userID.String()
		postIDStrs[i] = pid.String()
	}

	rows, names, err := c.getOnlineFeatures(ctx, onlineFeaturesRequest{
		FeatureService: "ranking_features",
		Entities: map[string][]string{
			"user_id": userIDs,
			"post_id": postIDStrs,
		},
	}, n)
	if err != nil {
		return user, nil, err
	}

	if len(rows) > 0 {
		user = parseUserRecord(names, rows[0])
	}
	posts := make(map[uuid.UUID]PostRecord, n)
	for i, pid := range postIDs {
		posts[pid] = parsePostRecord(names, rows[i])
	}
	return user, posts, nil
}

func (c *client) AffinityScores(ctx context.Context, userID uuid.UUID, authorIDs []uuid.UUID) (map[uuid.UUID]float64, error) {
	out := make(map[uuid.UUID]float64, len(authorIDs))
	if len(authorIDs) == 0 {
		return out, nil
	}

	n := len(authorIDs)
	userIDs := make([]string, n)
	authorIDStrs := make([]string, n)
	for i, aid := range authorIDs {
		userIDs[i] = userID.String()
		authorIDStrs[i] = aid.String()
	}

	rows, _, err := c.getOnlineFeatures(ctx, onlineFeaturesRequest{
		Features: []string{"user_author_affinity:affinity_score"},
		Entities: map[string][]string{
			"user_id":   userIDs,
			"author_id": authorIDStrs,
		},
	}, n)
	if err != nil {
		return nil, err
	}

	for i, aid := range authorIDs {
		row := rows[i]
		v, ok := row[affinityPrefix+"affinity_score"]
		if !ok {
			v = row["affinity_score"]
		}
		out[aid] = toFloat(v)
	}
	return out, nil
}

// getOnlineFeatures posts the request and pivots the column-oriented
// response into one map per entity row.
func (c *client) getOnlineFeatures(ctx context.Context, reqBody onlineFeaturesRequest, nRows int) ([]map[string]any, []string, error) {
	raw, err := json.Marshal(reqBody)
	if err != nil {
		return nil, nil, fmt.Errorf("encode feature request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/get-online-features", bytes.NewReader(raw))
	if err != nil {
		return nil, nil, fmt.Errorf("build feature request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("feature server call: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, nil, fmt.Errorf("feature server call: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var parsed onlineFeaturesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, nil, fmt.Errorf("decode feature response: %w", err)
	}

	names := parsed.Metadata.FeatureNames
	rows := make([]map[string]any, nRows)
	for i := range rows {
		rows[i] = make(map[string]any, len(names))
	}
	for col, name := range names {
		if col >= len(parsed.Results) {
			break
		}
		values := parsed.Results[col].Values
		for row := 0; row < nRows && row < len(values); row++ {
			rows[row][name] = values[row]
		}
	}
	return rows, names, nil
}

func parseUserRecord(names []string, row map[string]any) UserRecord {
	var rec UserRecord
	for _, name := range names {
		if !strings.HasPrefix(name, userPrefix) {
			continue
		}
		switch strings.TrimPrefix(name, userPrefix) {
		case "follower_count":
			rec.FollowerCount = toFloat(row[name])
		case "avg_engagement_rate":
			rec.AvgEngagementRate = toFloat(row[name])
		case "interest_vector_json":
			rec.InterestVectorJSON, _ = row[name].(string)
		}
	}
	return rec
}

func parsePostRecord(names []string, row map[string]any) PostRecord {
	var rec PostRecord
	for _, name := range names {
		if !strings.HasPrefix(name, postPrefix) {
			continue
		}
		switch strings.TrimPrefix(name, postPrefix) {
		case "author_id":
			if s, ok := row[name].(string); ok {
				if id, err := uuid.Parse(s); err == nil {
					rec.AuthorID = id
				}
			}
		case "like_count":
			rec.LikeCount = toFloat(row[name])
		case "created_at_ts":
			rec.CreatedAtTS = toFloat(row[name])
		case "has_media":
			rec.HasMedia = toFloat(row[name]) != 0
		case "content_length":
			rec.ContentLength = toFloat(row[name])
		case "embedding_json":
			rec.EmbeddingJSON, _ = row[name].(string)
		}
	}
	return rec
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case json.Number:
		f, _ := t.Float64()
		return f
	case bool:
		if t {
			return 1
		}
		return 0
	default:
		return 0
	}
}
