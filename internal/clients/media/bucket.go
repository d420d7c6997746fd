package media

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"github.com/waveline/waveline-backend/internal/platform/logger"
)

// Store holds post media objects. Keys are media/<post_id>.<ext>; the
// public URL goes through the CDN domain when one is configured.
type Store interface {
	UploadMedia(ctx context.Context, postID uuid.UUID, mediaType string, payload io.Reader) (string, error)
	UploadMediaBase64(ctx context.Context, postID uuid.UUID, mediaType, encoded string) (string, error)
	DeleteMedia(ctx context.Context, key string) error
	PublicURL(key string) string
}

type bucketStore struct {
	log       *logger.Logger
	client    *storage.Client
	bucket    string
	cdnDomain string
}

func NewBucketStore(log *logger.Logger) (Store, error) {
	serviceLog := log.With("service", "MediaStore")

	bucketName := os.Getenv("MEDIA_GCS_BUCKET_NAME")
	if bucketName == "" {
		return nil, fmt.Errorf("missing env var MEDIA_GCS_BUCKET_NAME")
	}

	ctx := context.Background()
	opts := clientOptionsFromEnv()
	opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
	stClient, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &bucketStore{
		log:       serviceLog,
		client:    stClient,
		bucket:    bucketName,
		cdnDomain: os.Getenv("MEDIA_CDN_DOMAIN"),
	}, nil
}

func clientOptionsFromEnv() []option.ClientOption {
	creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	if creds == "" {
		creds = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	opts := []option.ClientOption{}
	if creds == "" {
		return opts
	}
	if strings.HasPrefix(creds, "{") {
		opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
	} else {
		opts = append(opts, option.WithCredentialsFile(creds))
	}
	return opts
}

// mediaKey maps a post id and declared media type to an object key.
// Unknown types fall back to a bare key with no extension.
func mediaKey(postID uuid.UUID, mediaType string) string {
	switch strings.ToLower(strings.TrimSpace(mediaType)) {
	case "image", "image/jpeg", "jpg", "jpeg":
		return fmt.Sprintf("media/%s.jpg", postID)
	case "image/png", "png":
		return fmt.Sprintf("media/%s.png", postID)
	case "image/gif", "gif":
		return fmt.Sprintf("media/%s.gif", postID)
	case "video", "video/mp4", "mp4":
		return fmt.Sprintf("media/%s.mp4", postID)
	default:
		return fmt.Sprintf("media/%s", postID)
	}
}

func contentTypeForKey(key string) string {
	s := strings.ToLower(strings.TrimSpace(key))
	switch {
	case strings.HasSuffix(s, ".png"):
		return "image/png"
	case strings.HasSuffix(s, ".jpg"), strings.HasSuffix(s, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(s, ".gif"):
		return "image/gif"
	case strings.HasSuffix(s, ".webp"):
		return "image/webp"
	case strings.HasSuffix(s, ".mp4"), strings.HasSuffix(s, ".m4v"):
		return "video/mp4"
	case strings.HasSuffix(s, ".webm"):
		return "video/webm"
	default:
		return ""
	}
}

func (bs *bucketStore) UploadMedia(ctx context.Context, postID uuid.UUID, mediaType string, payload io.Reader) (string, error) {
	key := mediaKey(postID, mediaType)
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := bs.client.Bucket(bs.bucket).Object(key).NewWriter(ctx)
	if ct := contentTypeForKey(key); ct != "" {
		w.ContentType = ct
	}
	if _, err := io.Copy(w, payload); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write media to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return key, nil
}

func (bs *bucketStore) UploadMediaBase64(ctx context.Context, postID uuid.UUID, mediaType, encoded string) (string, error) {
	// Data-URL prefixes ("data:image/png;base64,...") are tolerated.
	if i := strings.Index(encoded, ","); i >= 0 && strings.Contains(encoded[:i], ";base64") {
		encoded = encoded[i+1:]
	}
	dec := base64.NewDecoder(base64.StdEncoding, strings.NewReader(encoded))
	return bs.UploadMedia(ctx, postID, mediaType, dec)
}

func (bs *bucketStore) DeleteMedia(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := bs.client.Bucket(bs.bucket).Object(key).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete GCS object %q in bucket %q: %w", key, bs.bucket, err)
	}
	return nil
}

func (bs *bucketStore) PublicURL(key string) string {
	if key == "" {
		return ""
	}
	if bs.cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s", bs.cdnDomain, key)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", bs.bucket, key)
}
