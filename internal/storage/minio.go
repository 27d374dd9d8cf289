package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"

	"fish-assistant/internal/faults"
	"fish-assistant/internal/observability/logging"
)

// objectAPI is the part of *minio.Client the store uses.
type objectAPI interface {
	PutObject(ctx context.Context, bucket, name string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucket, name string, expiry time.Duration, params url.Values) (*url.URL, error)
}

// MinioConfig configures an S3-compatible bucket.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Prefix    string        // object key prefix, default "tts"
	URLExpiry time.Duration // lifetime of presigned URLs, default 15 minutes
}

// Minio uploads clips to a bucket and hands out presigned GET URLs.
type Minio struct {
	client objectAPI
	cfg    MinioConfig
	logger zerolog.Logger
}

// NewMinio connects to the bucket and checks that it exists.
func NewMinio(ctx context.Context, cfg MinioConfig) (*Minio, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("minio store: endpoint and bucket are required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %q: %w", cfg.Bucket, err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %q does not exist", cfg.Bucket)
	}
	return newMinio(client, cfg), nil
}

func newMinio(client objectAPI, cfg MinioConfig) *Minio {
	if cfg.Prefix == "" {
		cfg.Prefix = "tts"
	}
	if cfg.URLExpiry <= 0 {
		cfg.URLExpiry = 15 * time.Minute
	}
	return &Minio{client: client, cfg: cfg, logger: logging.WithComponent("storage.minio")}
}

// Put uploads data and returns a presigned URL for it.
func (m *Minio) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	key := path.Join(m.cfg.Prefix, uuid.NewString()+extension(contentType))

	_, err := m.client.PutObject(ctx, m.cfg.Bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{"uploaded-at": time.Now().UTC().Format(time.RFC3339)},
	})
	if err != nil {
		return "", &faults.TransportError{Op: "store_audio", Err: err}
	}

	u, err := m.client.PresignedGetObject(ctx, m.cfg.Bucket, key, m.cfg.URLExpiry, nil)
	if err != nil {
		return "", &faults.TransportError{Op: "presign_audio", Err: err}
	}

	m.logger.Debug().
		Str("bucket", m.cfg.Bucket).
		Str("key", key).
		Int("bytes", len(data)).
		Msg("Audio stored")
	return u.String(), nil
}

func extension(contentType string) string {
	switch contentType {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/mpeg":
		return ".mp3"
	default:
		return ""
	}
}
