package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioPresigner signs PUT URLs with minio-go.
type MinioPresigner struct {
	client *minio.Client
	bucket string
}

// NewMinioPresigner builds a client for endpoint. The region is fixed so signing never needs a
// bucket-location round trip.
func NewMinioPresigner(cfg S3Config) (*MinioPresigner, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("minio configuration incomplete")
	}
	endpoint, secure, err := normaliseEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
		Region: region,
	})
	if err != nil {
		return nil, err
	}
	return &MinioPresigner{client: client, bucket: cfg.Bucket}, nil
}

// PresignPut signs a PUT for key.
func (p *MinioPresigner) PresignPut(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := p.client.PresignedPutObject(ctx, p.bucket, key, ttl)
	if err != nil {
		return "", fmt.Errorf("minio presign: %w", err)
	}
	return u.String(), nil
}

// normaliseEndpoint accepts host:port or a URL and reports whether TLS is implied.
func normaliseEndpoint(raw string) (string, bool, error) {
	if !strings.Contains(raw, "://") {
		return raw, false, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("parse storage endpoint: %w", err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("storage endpoint %q has no host", raw)
	}
	return u.Host, u.Scheme == "https", nil
}
