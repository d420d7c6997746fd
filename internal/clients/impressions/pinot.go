package impressions

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

// Ledger exposes the append-only impression log kept in the OLAP store.
// The write side is fed by the impression event stream; the read side
// answers "which posts has this user seen since t". Errors here are a
// quality problem, not a correctness one, so the caller fails open.
type Ledger interface {
	SeenPostIDs(ctx context.Context, userID uuid.UUID, since time.Time) (map[uuid.UUID]struct{}, error)
}

type pinotLedger struct {
	log     *logger.Logger
	baseURL string
	table   string
	http    *http.Client
}

type pinotQueryRequest struct {
	SQL string `json:"sql"`
}

type pinotQueryResponse struct {
	ResultTable struct {
		Rows [][]any `json:"rows"`
	} `json:"resultTable"`
}

func NewPinotLedger(log *logger.Logger) (Ledger, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	baseURL := envutil.Str("PINOT_BROKER_URL", "")
	if baseURL == "" {
		return nil, fmt.Errorf("missing PINOT_BROKER_URL")
	}
	return &pinotLedger{
		log:     log.With("service", "PinotLedger"),
		baseURL: strings.TrimRight(baseURL, "/"),
		table:   envutil.Str("PINOT_IMPRESSIONS_TABLE", "impressions"),
		http: &http.Client{
			Timeout: 5 * time.Second,
		},
	}, nil
}

func (l *pinotLedger) SeenPostIDs(ctx context.Context, userID uuid.UUID, since time.Time) (map[uuid.UUID]struct{}, error) {
	if l == nil {
		return nil, fmt.Errorf("impression ledger unavailable")
	}
	sql := fmt.Sprintf(
		"SELECT post_id FROM %s WHERE user_id = '%s' AND ts >= %d LIMIT 10000",
		l.table, userID.String(), since.UnixMilli(),
	)
	raw, err := json.Marshal(pinotQueryRequest{SQL: sql})
	if err != nil {
		return nil, fmt.Errorf("encode pinot query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/query/sql", bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("build pinot request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pinot query: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("pinot query: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var parsed pinotQueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode pinot response: %w", err)
	}

	seen := make(map[uuid.UUID]struct{}, len(parsed.ResultTable.Rows))
	for _, row := range parsed.ResultTable.Rows {
		if len(row) == 0 {
			continue
		}
		s, ok := row[0].(string)
		if !ok {
			continue
		}
		id, err := uuid.Parse(s)
		if err != nil {
			continue
		}
		seen[id] = struct{}{}
	}
	return seen, nil
}
