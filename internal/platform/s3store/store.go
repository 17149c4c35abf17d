// Package s3store is the S3-compatible (MinIO, R2, AWS) print asset bucket.
package s3store

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/yungbote/artprint-backend/internal/platform/envutil"
	"github.com/yungbote/artprint-backend/internal/platform/logger"
	"github.com/yungbote/artprint-backend/internal/platform/objectstore"
)

const (
	defaultRegion        = "us-east-1"
	defaultLookupTimeout = 10 * time.Second
	defaultUploadTimeout = 2 * time.Minute
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

func ConfigFromEnv() Config {
	return Config{
		Endpoint:  envutil.String("S3_ENDPOINT", ""),
		AccessKey: envutil.String("S3_ACCESS_KEY", ""),
		SecretKey: envutil.String("S3_SECRET_KEY", ""),
		Bucket:    envutil.String("PRINT_ASSET_BUCKET", ""),
		Region:    envutil.String("S3_REGION", defaultRegion),
		UseSSL:    envutil.Bool("S3_USE_SSL", true),
	}
}

type Store struct {
	log           *logger.Logger
	client        *minio.Client
	bucket        string
	lookupTimeout time.Duration
	uploadTimeout time.Duration
}

var _ objectstore.Store = (*Store)(nil)

func New(log *logger.Logger, cfg Config) (*Store, error) {
	if log == nil {
		log = logger.NewNop()
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "https://"), "http://")
	endpoint = strings.TrimRight(endpoint, "/")
	if endpoint == "" {
		return nil, &objectstore.ConfigError{Code: objectstore.ConfigErrorMissingS3Endpoint, Mode: string(objectstore.ModeS3)}
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("missing env var PRINT_ASSET_BUCKET: %w", objectstore.ErrNotConfigured)
	}
	if strings.TrimSpace(cfg.AccessKey) == "" || strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, fmt.Errorf("missing S3_ACCESS_KEY/S3_SECRET_KEY: %w", objectstore.ErrNotConfigured)
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = defaultRegion
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	serviceLog := log.With("service", "S3Store")
	serviceLog.Info("Object storage initialized",
		"mode", objectstore.ModeS3,
		"endpoint", endpoint,
		"bucket", cfg.Bucket,
		"region", region,
		"ssl", cfg.UseSSL,
	)
	return &Store{
		log:           serviceLog,
		client:        client,
		bucket:        strings.TrimSpace(cfg.Bucket),
		lookupTimeout: defaultLookupTimeout,
		uploadTimeout: defaultUploadTimeout,
	}, nil
}

func (s *Store) Bucket() string { return s.bucket }

func (s *Store) CanonicalURI(key string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, strings.TrimLeft(strings.TrimSpace(key), "/"))
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	ctx2, cancel := context.WithTimeout(ctx, s.lookupTimeout)
	defer cancel()

	_, err := s.client.StatObject(ctx2, s.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	return false, fmt.Errorf("stat s3 object %q: %w", key, err)
}

func (s *Store) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", fmt.Errorf("signed url ttl must be positive, got %s", ttl)
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, ttl, nil)
	if err != nil {
		return "", fmt.Errorf("presign s3 object %q: %w", key, err)
	}
	return u.String(), nil
}

func (s *Store) Upload(ctx context.Context, key string, body io.Reader, opts objectstore.UploadOptions) error {
	ctx2, cancel := context.WithTimeout(ctx, s.uploadTimeout)
	defer cancel()

	ct := opts.ContentType
	if ct == "" {
		ct = objectstore.ContentTypeForKey(key)
	}
	size := int64(-1)
	if l, ok := body.(interface{ Len() int }); ok {
		size = int64(l.Len())
	}
	_, err := s.client.PutObject(ctx2, s.bucket, key, body, size, minio.PutObjectOptions{
		ContentType:  ct,
		CacheControl: opts.CacheControl,
		UserMetadata: opts.Metadata,
	})
	if err != nil {
		return fmt.Errorf("put s3 object %q: %w", key, err)
	}
	return nil
}

// Close is a no-op; the minio client holds no resources beyond its transport.
func (s *Store) Close() error { return nil }
