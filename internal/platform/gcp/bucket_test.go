package gcp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/storage"

	"github.com/yungbote/artprint-backend/internal/platform/logger"
	"github.com/yungbote/artprint-backend/internal/platform/objectstore"
)

func TestResolveObjectStoragePublicBaseURLGCSDefault(t *testing.T) {
	t.Setenv("OBJECT_STORAGE_PUBLIC_BASE_URL", "")

	baseURL, source, err := resolveObjectStoragePublicBaseURL(objectstore.Config{Mode: objectstore.ModeGCS})
	if err != nil {
		t.Fatalf("resolveObjectStoragePublicBaseURL: %v", err)
	}
	if baseURL != "" {
		t.Fatalf("baseURL: want empty got=%q", baseURL)
	}
	if source != "gcs_default" {
		t.Fatalf("source: want=%q got=%q", "gcs_default", source)
	}
}

func TestResolveObjectStoragePublicBaseURLEmulatorFallback(t *testing.T) {
	t.Setenv("OBJECT_STORAGE_PUBLIC_BASE_URL", "")

	baseURL, source, err := resolveObjectStoragePublicBaseURL(objectstore.Config{
		Mode:         objectstore.ModeGCSEmulator,
		EmulatorHost: "http://fake-gcs:4443",
	})
	if err != nil {
		t.Fatalf("resolveObjectStoragePublicBaseURL: %v", err)
	}
	if baseURL != "http://fake-gcs:4443" {
		t.Fatalf("baseURL: want=%q got=%q", "http://fake-gcs:4443", baseURL)
	}
	if source != "storage_emulator_host" {
		t.Fatalf("source: want=%q got=%q", "storage_emulator_host", source)
	}
}

func TestResolveObjectStoragePublicBaseURLEnvOverride(t *testing.T) {
	t.Setenv("OBJECT_STORAGE_PUBLIC_BASE_URL", "http://localhost:4443/")

	baseURL, source, err := resolveObjectStoragePublicBaseURL(objectstore.Config{
		Mode:         objectstore.ModeGCSEmulator,
		EmulatorHost: "http://fake-gcs:4443",
	})
	if err != nil {
		t.Fatalf("resolveObjectStoragePublicBaseURL: %v", err)
	}
	if baseURL != "http://localhost:4443" {
		t.Fatalf("baseURL: want=%q got=%q", "http://localhost:4443", baseURL)
	}
	if source != "object_storage_public_base_url" {
		t.Fatalf("source: want=%q got=%q", "object_storage_public_base_url", source)
	}
}

func TestResolveObjectStoragePublicBaseURLInvalidEnv(t *testing.T) {
	t.Setenv("OBJECT_STORAGE_PUBLIC_BASE_URL", "localhost:4443")

	_, _, err := resolveObjectStoragePublicBaseURL(objectstore.Config{
		Mode:         objectstore.ModeGCSEmulator,
		EmulatorHost: "http://fake-gcs:4443",
	})
	if err == nil {
		t.Fatalf("resolveObjectStoragePublicBaseURL: expected error, got nil")
	}
}

func TestNewBucketServiceMissingBucketIsNotConfigured(t *testing.T) {
	t.Setenv("PRINT_ASSET_BUCKET", "from-env")

	_, err := NewBucketServiceWithConfig(logger.NewNop(), objectstore.Config{Mode: objectstore.ModeGCS})
	if !errors.Is(err, objectstore.ErrNotConfigured) {
		t.Fatalf("bucket must come from config, not env: want ErrNotConfigured, got=%v", err)
	}
}

func TestNewBucketServiceRejectsS3Mode(t *testing.T) {
	_, err := NewBucketServiceWithConfig(logger.NewNop(), objectstore.Config{Mode: objectstore.ModeS3, S3Endpoint: "minio:9000"})
	var cfgErr *objectstore.ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Code != objectstore.ConfigErrorInvalidMode {
		t.Fatalf("want invalid_mode config error, got=%v", err)
	}
}

func TestCanonicalURI(t *testing.T) {
	bs := &BucketService{bucket: "artprint-assets"}
	got := bs.CanonicalURI("/orders/o1/final/o1_a4_300dpi.png")
	want := "gs://artprint-assets/orders/o1/final/o1_a4_300dpi.png"
	if got != want {
		t.Fatalf("CanonicalURI: want=%q got=%q", want, got)
	}
}

func newEmulatorBucket(t *testing.T, handler http.HandlerFunc) *BucketService {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &BucketService{
		log:           logger.NewNop(),
		httpClient:    srv.Client(),
		storageMode:   objectstore.ModeGCSEmulator,
		emulatorHost:  srv.URL,
		bucket:        "assets",
		lookupTimeout: time.Second,
		now:           time.Now,
	}
}

func TestEmulatorExists(t *testing.T) {
	var paths []string
	bs := newEmulatorBucket(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.EscapedPath())
		switch {
		case strings.HasSuffix(r.URL.EscapedPath(), "hd.png"):
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"name":"x"}`))
		case strings.HasSuffix(r.URL.EscapedPath(), "boom.png"):
			http.Error(w, "kaput", http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	ok, err := bs.Exists(ctx, "generations/2026/05/01/a1/hd.png")
	if err != nil || !ok {
		t.Fatalf("existing key: ok=%v err=%v", ok, err)
	}
	ok, err = bs.Exists(ctx, "generations/2026/05/01/a1/preview.jpg")
	if err != nil || ok {
		t.Fatalf("missing key: want ok=false err=nil, got ok=%v err=%v", ok, err)
	}
	if _, err := bs.Exists(ctx, "boom.png"); err == nil {
		t.Fatalf("server error: want error")
	}
	if want := "/storage/v1/b/assets/o/generations%2F2026%2F05%2F01%2Fa1%2Fhd.png"; paths[0] != want {
		t.Fatalf("meta path: want=%q got=%q", want, paths[0])
	}
}

func TestEmulatorSignedURLIsMediaURL(t *testing.T) {
	bs := &BucketService{
		storageMode:   objectstore.ModeGCSEmulator,
		emulatorHost:  "http://fake-gcs:4443",
		publicBaseURL: "http://localhost:4443",
		bucket:        "assets",
	}
	got, err := bs.SignedURL(context.Background(), "orders/o1/final/a.png", time.Hour)
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	want := "http://localhost:4443/storage/v1/b/assets/o/orders%2Fo1%2Ffinal%2Fa.png?alt=media"
	if got != want {
		t.Fatalf("SignedURL: want=%q got=%q", want, got)
	}
	if _, err := bs.SignedURL(context.Background(), "a.png", 0); err == nil {
		t.Fatalf("zero ttl: want error")
	}
}

func TestSignedURLPassesV4Options(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	var got *storage.SignedURLOptions
	bs := &BucketService{
		storageMode:   objectstore.ModeGCS,
		bucket:        "assets",
		lookupTimeout: time.Second,
		now:           func() time.Time { return now },
		sign: func(key string, opts *storage.SignedURLOptions) (string, error) {
			got = opts
			return "https://storage.googleapis.com/assets/" + key + "?X-Goog-Signature=abc", nil
		},
	}
	u, err := bs.SignedURL(context.Background(), "orders/o1/final/a.png", time.Hour)
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	if !strings.Contains(u, "X-Goog-Signature") {
		t.Fatalf("SignedURL: got=%q", u)
	}
	if got.Scheme != storage.SigningSchemeV4 || got.Method != http.MethodGet {
		t.Fatalf("options: got scheme=%v method=%q", got.Scheme, got.Method)
	}
	if !got.Expires.Equal(now.Add(time.Hour)) {
		t.Fatalf("expires: want=%s got=%s", now.Add(time.Hour), got.Expires)
	}
}

func TestSignedURLGivesUpOnSlowSigner(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	bs := &BucketService{
		storageMode:   objectstore.ModeGCS,
		bucket:        "assets",
		lookupTimeout: 20 * time.Millisecond,
		now:           time.Now,
		sign: func(key string, opts *storage.SignedURLOptions) (string, error) {
			<-release
			return "late", nil
		},
	}

	start := time.Now()
	_, err := bs.SignedURL(context.Background(), "a.png", time.Hour)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("slow signer: want deadline exceeded, got=%v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("slow signer: returned after %s", elapsed)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := bs.SignedURL(ctx, "a.png", time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled ctx: want context.Canceled, got=%v", err)
	}
}
