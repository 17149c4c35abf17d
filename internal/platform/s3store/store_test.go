package s3store

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/artprint-backend/internal/platform/logger"
	"github.com/yungbote/artprint-backend/internal/platform/objectstore"
)

func fakeS3(t *testing.T, handler http.HandlerFunc) *Store {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	u, _ := url.Parse(srv.URL)
	s, err := New(logger.NewNop(), Config{
		Endpoint:  u.Host,
		AccessKey: "minio",
		SecretKey: "minio123",
		Bucket:    "assets",
		Region:    "us-east-1",
		UseSSL:    false,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestNewRequiresBucketAndKeys(t *testing.T) {
	_, err := New(nil, Config{Endpoint: "minio:9000", AccessKey: "a", SecretKey: "b"})
	if !errors.Is(err, objectstore.ErrNotConfigured) {
		t.Fatalf("missing bucket: want ErrNotConfigured got=%v", err)
	}
	_, err = New(nil, Config{Endpoint: "minio:9000", Bucket: "assets"})
	if !errors.Is(err, objectstore.ErrNotConfigured) {
		t.Fatalf("missing keys: want ErrNotConfigured got=%v", err)
	}
	_, err = New(nil, Config{Bucket: "assets", AccessKey: "a", SecretKey: "b"})
	var cfgErr *objectstore.ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Code != objectstore.ConfigErrorMissingS3Endpoint {
		t.Fatalf("missing endpoint: want config error got=%v", err)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("S3_ENDPOINT", "http://minio:9000")
	t.Setenv("S3_ACCESS_KEY", "ak")
	t.Setenv("S3_SECRET_KEY", "sk")
	t.Setenv("PRINT_ASSET_BUCKET", "assets")
	t.Setenv("S3_REGION", "")
	t.Setenv("S3_USE_SSL", "false")

	cfg := ConfigFromEnv()
	if cfg.Region != "us-east-1" || cfg.UseSSL || cfg.Bucket != "assets" {
		t.Fatalf("cfg: got=%+v", cfg)
	}
	s, err := New(nil, cfg)
	if err != nil {
		t.Fatalf("New with scheme-prefixed endpoint: %v", err)
	}
	if got := s.CanonicalURI("orders/o1/final/a.png"); got != "s3://assets/orders/o1/final/a.png" {
		t.Fatalf("CanonicalURI: got=%q", got)
	}
}

func TestExists(t *testing.T) {
	s := fakeS3(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("method: want HEAD got=%s", r.Method)
		}
		switch {
		case strings.HasSuffix(r.URL.Path, "/hd.png"):
			w.Header().Set("ETag", `"abc"`)
			w.Header().Set("Last-Modified", time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC).Format(http.TimeFormat))
			w.Header().Set("Content-Type", "image/png")
			w.Header().Set("Content-Length", "6")
			w.WriteHeader(http.StatusOK)
		case strings.HasSuffix(r.URL.Path, "/broken.png"):
			w.WriteHeader(http.StatusForbidden)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	if ok, err := s.Exists(ctx, "generations/2026/05/01/a1/hd.png"); err != nil || !ok {
		t.Fatalf("existing: ok=%v err=%v", ok, err)
	}
	if ok, err := s.Exists(ctx, "generations/2026/05/01/a1/preview.jpg"); err != nil || ok {
		t.Fatalf("missing: want ok=false err=nil got ok=%v err=%v", ok, err)
	}
	if _, err := s.Exists(ctx, "broken.png"); err == nil {
		t.Fatalf("forbidden: want error")
	}
}

func TestSignedURLIsTimeBoxed(t *testing.T) {
	s := fakeS3(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("presigning must not touch the network, got %s %s", r.Method, r.URL)
	})
	raw, err := s.SignedURL(context.Background(), "orders/o1/final/a.png", time.Hour)
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	q := u.Query()
	if q.Get("X-Amz-Expires") != "3600" {
		t.Fatalf("expires: want=3600 got=%q", q.Get("X-Amz-Expires"))
	}
	if q.Get("X-Amz-Signature") == "" {
		t.Fatalf("missing signature in %q", raw)
	}
	if !strings.HasSuffix(u.Path, "/assets/orders/o1/final/a.png") {
		t.Fatalf("path: got=%q", u.Path)
	}
	if _, err := s.SignedURL(context.Background(), "a.png", 0); err == nil {
		t.Fatalf("zero ttl: want error")
	}
}

func TestUploadSendsMetadata(t *testing.T) {
	var got http.Header
	s := fakeS3(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method: want PUT got=%s", r.Method)
		}
		got = r.Header.Clone()
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	})
	err := s.Upload(context.Background(), "orders/o1/final/a.png", strings.NewReader("pixels"), objectstore.UploadOptions{
		ContentType: "image/png",
		Metadata:    map[string]string{"order_id": "o1", "retention_class": "fulfillment_final"},
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if got.Get("Content-Type") != "image/png" {
		t.Fatalf("content type: got=%q", got.Get("Content-Type"))
	}
	if got.Get("X-Amz-Meta-Order_id") != "o1" {
		t.Fatalf("order metadata missing: %v", got)
	}
}
