package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/yungbote/artprint-backend/internal/platform/logger"
	"github.com/yungbote/artprint-backend/internal/platform/objectstore"
)

const (
	defaultLookupTimeout = 10 * time.Second
	defaultUploadTimeout = 2 * time.Minute
)

// BucketService is the print asset bucket on GCS or the fake-gcs emulator.
type BucketService struct {
	log           *logger.Logger
	storageClient *storage.Client
	httpClient    *http.Client
	storageMode   objectstore.Mode
	emulatorHost  string
	bucket        string
	publicBaseURL string
	lookupTimeout time.Duration
	uploadTimeout time.Duration
	now           func() time.Time
	sign          func(key string, opts *storage.SignedURLOptions) (string, error)
}

var _ objectstore.Store = (*BucketService)(nil)

func NewBucketService(log *logger.Logger) (*BucketService, error) {
	storageCfg, err := objectstore.ResolveConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("resolve object storage config: %w", err)
	}
	return NewBucketServiceWithConfig(log, storageCfg)
}

func NewBucketServiceWithConfig(log *logger.Logger, storageCfg objectstore.Config) (*BucketService, error) {
	if err := objectstore.ValidateConfig(storageCfg); err != nil {
		return nil, fmt.Errorf("validate object storage config: %w", err)
	}
	if storageCfg.Mode == objectstore.ModeS3 {
		return nil, &objectstore.ConfigError{Code: objectstore.ConfigErrorInvalidMode, Mode: string(storageCfg.Mode)}
	}
	if log == nil {
		log = logger.NewNop()
	}
	serviceLog := log.With("service", "BucketService")

	bucketName := strings.TrimSpace(storageCfg.Bucket)
	if bucketName == "" {
		return nil, fmt.Errorf("missing print asset bucket (PRINT_ASSET_BUCKET): %w", objectstore.ErrNotConfigured)
	}
	publicBaseURL, publicBaseSource, err := resolveObjectStoragePublicBaseURL(storageCfg)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	stClient, err := newStorageClientForMode(ctx, storageCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: create storage client: %w", objectstore.ErrNotConfigured, err)
	}

	serviceLog.Info(
		"Object storage initialized",
		"mode", storageCfg.Mode,
		"mode_source", storageCfg.ModeSource(),
		"emulator_host", storageCfg.EmulatorHost,
		"public_base_source", publicBaseSource,
		"public_base_url", publicBaseURL,
		"bucket", bucketName,
	)

	return &BucketService{
		log:           serviceLog,
		storageClient: stClient,
		httpClient:    http.DefaultClient,
		storageMode:   storageCfg.Mode,
		emulatorHost:  strings.TrimRight(strings.TrimSpace(storageCfg.EmulatorHost), "/"),
		bucket:        bucketName,
		publicBaseURL: publicBaseURL,
		lookupTimeout: defaultLookupTimeout,
		uploadTimeout: defaultUploadTimeout,
		now:           time.Now,
		sign:          stClient.Bucket(bucketName).SignedURL,
	}, nil
}

func newStorageClientForMode(ctx context.Context, storageCfg objectstore.Config) (*storage.Client, error) {
	switch storageCfg.Mode {
	case objectstore.ModeGCS:
		opts := ClientOptionsFromEnv()
		opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
		return storage.NewClient(ctx, opts...)
	case objectstore.ModeGCSEmulator:
		endpoint := strings.TrimRight(strings.TrimSpace(storageCfg.EmulatorHost), "/")
		_ = os.Setenv("STORAGE_EMULATOR_HOST", endpoint)
		return storage.NewClient(ctx, option.WithoutAuthentication())
	default:
		return nil, &objectstore.ConfigError{Code: objectstore.ConfigErrorInvalidMode, Mode: string(storageCfg.Mode)}
	}
}

func resolveObjectStoragePublicBaseURL(storageCfg objectstore.Config) (baseURL string, source string, err error) {
	raw := strings.TrimSpace(os.Getenv("OBJECT_STORAGE_PUBLIC_BASE_URL"))
	if raw != "" {
		parsed, parseErr := url.Parse(raw)
		if parseErr != nil || strings.TrimSpace(parsed.Scheme) == "" || strings.TrimSpace(parsed.Host) == "" {
			return "", "", fmt.Errorf(
				"invalid OBJECT_STORAGE_PUBLIC_BASE_URL=%q; expected absolute URL like http://localhost:4443",
				raw,
			)
		}
		return strings.TrimRight(raw, "/"), "object_storage_public_base_url", nil
	}
	if storageCfg.IsEmulatorMode() {
		return strings.TrimRight(strings.TrimSpace(storageCfg.EmulatorHost), "/"), "storage_emulator_host", nil
	}
	return "", "gcs_default", nil
}

func (bs *BucketService) Bucket() string { return bs.bucket }

func (bs *BucketService) CanonicalURI(key string) string {
	return fmt.Sprintf("gs://%s/%s", bs.bucket, strings.TrimLeft(strings.TrimSpace(key), "/"))
}

func (bs *BucketService) Exists(ctx context.Context, key string) (bool, error) {
	ctx2, cancel := context.WithTimeout(ctx, bs.lookupTimeout)
	defer cancel()

	if bs.isEmulatorMode() {
		req, err := http.NewRequestWithContext(ctx2, http.MethodGet, bs.emulatorObjectMetaURL(key), nil)
		if err != nil {
			return false, fmt.Errorf("failed creating emulator attrs request: %w", err)
		}
		resp, err := bs.httpClient.Do(req)
		if err != nil {
			return false, fmt.Errorf("failed emulator attrs request: %w", err)
		}
		defer resp.Body.Close()
		switch resp.StatusCode {
		case http.StatusOK:
			return true, nil
		case http.StatusNotFound:
			return false, nil
		default:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return false, fmt.Errorf("emulator attrs failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
	}

	_, err := bs.storageClient.Bucket(bs.bucket).Object(key).Attrs(ctx2)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to fetch GCS object attrs: %w", err)
	}
	return true, nil
}

// SignedURL returns a V4 GET URL. The emulator does not verify signatures,
// so it gets a plain media URL instead.
//
// Without a local private key the client signs through the IAM credentials
// API, which takes no context; the call is abandoned after lookupTimeout.
func (bs *BucketService) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", fmt.Errorf("signed url ttl must be positive, got %s", ttl)
	}
	if bs.isEmulatorMode() {
		return bs.publicEmulatorObjectMediaURL(key), nil
	}
	ctx2, cancel := context.WithTimeout(ctx, bs.lookupTimeout)
	defer cancel()
	if err := ctx2.Err(); err != nil {
		return "", fmt.Errorf("sign GCS object %q: %w", key, err)
	}

	type signed struct {
		url string
		err error
	}
	done := make(chan signed, 1)
	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: bs.now().Add(ttl),
	}
	go func() {
		u, err := bs.sign(key, opts)
		done <- signed{url: u, err: err}
	}()

	select {
	case <-ctx2.Done():
		return "", fmt.Errorf("sign GCS object %q: %w", key, ctx2.Err())
	case res := <-done:
		if res.err != nil {
			return "", fmt.Errorf("sign GCS object %q: %w", key, res.err)
		}
		return res.url, nil
	}
}

func (bs *BucketService) Upload(ctx context.Context, key string, body io.Reader, opts objectstore.UploadOptions) error {
	ctx2, cancel := context.WithTimeout(ctx, bs.uploadTimeout)
	defer cancel()

	w := bs.storageClient.Bucket(bs.bucket).Object(key).NewWriter(ctx2)
	w.ContentType = opts.ContentType
	if w.ContentType == "" {
		w.ContentType = objectstore.ContentTypeForKey(key)
	}
	w.CacheControl = opts.CacheControl
	if len(opts.Metadata) > 0 {
		w.Metadata = make(map[string]string, len(opts.Metadata))
		for k, v := range opts.Metadata {
			w.Metadata[k] = v
		}
	}
	if _, err := io.Copy(w, body); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return nil
}

func (bs *BucketService) Close() error {
	if bs == nil || bs.storageClient == nil {
		return nil
	}
	return bs.storageClient.Close()
}

func (bs *BucketService) isEmulatorMode() bool {
	return bs != nil && objectstore.IsEmulatorMode(bs.storageMode) && strings.TrimSpace(bs.emulatorHost) != ""
}

func (bs *BucketService) emulatorObjectMetaURL(key string) string {
	return fmt.Sprintf(
		"%s/storage/v1/b/%s/o/%s",
		strings.TrimRight(strings.TrimSpace(bs.emulatorHost), "/"),
		url.PathEscape(bs.bucket),
		url.PathEscape(key),
	)
}

func (bs *BucketService) publicEmulatorObjectMediaURL(key string) string {
	base := strings.TrimRight(strings.TrimSpace(bs.publicBaseURL), "/")
	if base == "" {
		base = strings.TrimRight(strings.TrimSpace(bs.emulatorHost), "/")
	}
	return fmt.Sprintf(
		"%s/storage/v1/b/%s/o/%s?alt=media",
		base,
		url.PathEscape(bs.bucket),
		url.PathEscape(key),
	)
}
