package vectorindex

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

	"github.com/waveline/waveline-backend/internal/platform/logger"
)

const maxErrorBodyBytes = 1024

// Match is one ANN search hit; Score is cosine similarity, higher is
// closer.
type Match struct {
	PostID uuid.UUID
	Score  float64
}

// Index is the discovery retrieval collaborator. Upsert is called by
// the embedding pipeline; Search serves discovery candidate retrieval.
type Index interface {
	Upsert(ctx context.Context, postID uuid.UUID, vector []float32, payload map[string]any) error
	Search(ctx context.Context, query []float32, topK int, excludeAuthor uuid.UUID) ([]Match, error)
}

type qdrantIndex struct {
	log     *logger.Logger
	cfg     Config
	baseURL string
	http    *http.Client
}

type qdrantEnvelope struct {
	Result json.RawMessage `json:"result"`
}

type qdrantSearchHit struct {
	ID    json.RawMessage `json:"id"`
	Score float64         `json:"score"`
}

// NewQdrantIndex builds the HTTP client and makes sure the posts
// collection exists with the configured dimension.
func NewQdrantIndex(log *logger.Logger, cfg Config) (Index, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	idx := &qdrantIndex{
		log:     log.With("service", "QdrantIndex"),
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	if err := idx.ensureCollection(context.Background()); err != nil {
		return nil, err
	}
	idx.log.Info("Qdrant index ready",
		"url", idx.baseURL,
		"collection", cfg.Collection,
		"vector_dim", cfg.VectorDim,
	)
	return idx, nil
}

func (s *qdrantIndex) collectionPath(suffix string) string {
	return fmt.Sprintf("/collections/%s%s", s.cfg.Collection, suffix)
}

func (s *qdrantIndex) ensureCollection(ctx context.Context) error {
	err := s.doJSON(ctx, http.MethodGet, s.collectionPath(""), nil, nil)
	if err == nil {
		return nil
	}
	req := map[string]any{
		"vectors": map[string]any{
			"size":     s.cfg.VectorDim,
			"distance": "Cosine",
		},
	}
	if err := s.doJSON(ctx, http.MethodPut, s.collectionPath(""), req, nil); err != nil {
		return fmt.Errorf("create collection %q: %w", s.cfg.Collection, err)
	}
	return nil
}

func (s *qdrantIndex) Upsert(ctx context.Context, postID uuid.UUID, vector []float32, payload map[string]any) error {
	if s == nil {
		return fmt.Errorf("vector index unavailable")
	}
	if len(vector) != s.cfg.VectorDim {
		return fmt.Errorf("vector dimension mismatch: expected=%d got=%d", s.cfg.VectorDim, len(vector))
	}
	req := map[string]any{
		"points": []map[string]any{
			{
				"id":      postID.String(),
				"vector":  vector,
				"payload": payload,
			},
		},
	}
	return s.doJSON(ctx, http.MethodPut, s.collectionPath("/points?wait=true"), req, nil)
}

func (s *qdrantIndex) Search(ctx context.Context, query []float32, topK int, excludeAuthor uuid.UUID) ([]Match, error) {
	if s == nil {
		return nil, fmt.Errorf("vector index unavailable")
	}
	if len(query) == 0 {
		return nil, fmt.Errorf("query vector required")
	}
	if len(query) != s.cfg.VectorDim {
		return nil, fmt.Errorf("query vector dimension mismatch: expected=%d got=%d", s.cfg.VectorDim, len(query))
	}
	if topK <= 0 {
		topK = 10
	}

	req := map[string]any{
		"vector":       query,
		"limit":        topK,
		"with_payload": false,
		"with_vector":  false,
	}
	if excludeAuthor != uuid.Nil {
		// Own posts never surface in the author's discovery pool.
		req["filter"] = map[string]any{
			"must_not": []map[string]any{
				{"key": "author_id", "match": map[string]any{"value": excludeAuthor.String()}},
			},
		}
	}

	var hits []qdrantSearchHit
	if err := s.doJSON(ctx, http.MethodPost, s.collectionPath("/points/search"), req, &hits); err != nil {
		return nil, err
	}

	out := make([]Match, 0, len(hits))
	for _, hit := range hits {
		var idStr string
		if err := json.Unmarshal(hit.ID, &idStr); err != nil {
			continue
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			continue
		}
		out = append(out, Match{PostID: id, Score: hit.Score})
	}
	return out, nil
}

func (s *qdrantIndex) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode qdrant request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build qdrant request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return fmt.Errorf("qdrant %s %s: status=%d body=%s", method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if result == nil {
		return nil
	}

	var envelope qdrantEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode qdrant response: %w", err)
	}
	if err := json.Unmarshal(envelope.Result, result); err != nil {
		return fmt.Errorf("decode qdrant result: %w", err)
	}
	return nil
}
