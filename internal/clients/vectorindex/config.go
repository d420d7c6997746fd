package vectorindex

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/waveline/waveline-backend/internal/platform/envutil"
)

type Config struct {
	URL        string
	Collection string
	VectorDim  int
}

func ConfigFromEnv() Config {
	return Config{
		URL:        envutil.Str("QDRANT_URL", "http://localhost:6333"),
		Collection: envutil.Str("QDRANT_COLLECTION", "posts"),
		VectorDim:  envutil.Int("EMBEDDING_DIMENSION", 384),
	}
}

func ValidateConfig(cfg Config) error {
	u := strings.TrimSpace(cfg.URL)
	if u == "" {
		return fmt.Errorf("qdrant url is required")
	}
	parsed, err := url.Parse(u)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("qdrant url %q is not a valid absolute URL", cfg.URL)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("qdrant url scheme %q not supported", parsed.Scheme)
	}
	if strings.TrimSpace(cfg.Collection) == "" {
		return fmt.Errorf("qdrant collection is required")
	}
	if cfg.VectorDim <= 0 {
		return fmt.Errorf("vector dimension must be positive, got %d", cfg.VectorDim)
	}
	return nil
}
