package attachments

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/zulandar/mailroom/internal/config"
)

// S3Store keeps blobs in an S3-compatible bucket.
type S3Store struct {
	client  *minio.Client
	bucket  string
	baseURL string // public base URL; presigned URLs are used when empty
}

// NewS3Store connects to the object store and ensures the bucket exists.
func NewS3Store(cfg config.S3Config) (*S3Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("attachments: init s3 client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("attachments: check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("attachments: create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &S3Store{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: strings.TrimSuffix(cfg.PublicBaseURL, "/"),
	}, nil
}

// Save uploads the blob.
func (s *S3Store) Save(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("attachments: put %s: %w", key, err)
	}
	return nil
}

// Open downloads the blob.
func (s *S3Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("attachments: get %s: %w", key, err)
	}
	return obj, nil
}

// URL returns the public URL for the blob. With a configured public base the
// URL is stable; otherwise a 7-day presigned URL is generated, falling back
// to the path-style address if presigning fails.
func (s *S3Store) URL(key string) string {
	if s.baseURL != "" {
		parts := strings.Split(key, "/")
		for i, p := range parts {
			parts[i] = url.PathEscape(p)
		}
		return s.baseURL + "/" + strings.Join(parts, "/")
	}

	presigned, err := s.client.PresignedGetObject(context.Background(), s.bucket, key, 7*24*time.Hour, nil)
	if err != nil {
		return fmt.Sprintf("%s/%s/%s", s.client.EndpointURL(), s.bucket, key)
	}
	return presigned.String()
}
