package gcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/artprint-backend/internal/platform/logger"
	"github.com/yungbote/artprint-backend/internal/platform/objectstore"
)

// Runs against a fake-gcs-server, e.g.
//
//	docker run -p 4443:4443 fsouza/fake-gcs-server -scheme http
//	AP_RUN_GCS_EMULATOR_INTEGRATION=true go test ./internal/platform/gcp
func TestBucketServiceEmulatorFinalAssetRoundTrip(t *testing.T) {
	if os.Getenv("AP_RUN_GCS_EMULATOR_INTEGRATION") != "true" {
		t.Skip("AP_RUN_GCS_EMULATOR_INTEGRATION not set")
	}
	host := strings.TrimRight(firstNonEmpty(os.Getenv("AP_GCS_EMULATOR_HOST"), os.Getenv("STORAGE_EMULATOR_HOST"), "http://127.0.0.1:4443"), "/")
	httpc := &http.Client{Timeout: 5 * time.Second}
	if resp, err := httpc.Get(host + "/storage/v1/b?project=local-dev"); err != nil {
		t.Skipf("emulator unreachable at %s: %v", host, err)
	} else {
		resp.Body.Close()
	}

	run := time.Now().UnixNano()
	bucketName := fmt.Sprintf("artprint-it-%d", run)
	payload, _ := json.Marshal(map[string]string{"name": bucketName})
	resp, err := httpc.Post(host+"/storage/v1/b?project=local-dev", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("create bucket: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusConflict {
		t.Fatalf("create bucket: status=%d", resp.StatusCode)
	}

	t.Setenv("OBJECT_STORAGE_PUBLIC_BASE_URL", host)

	var store objectstore.Store
	bs, err := NewBucketServiceWithConfig(logger.NewNop(), objectstore.Config{Mode: objectstore.ModeGCSEmulator, Bucket: bucketName, EmulatorHost: host})
	if err != nil {
		t.Fatalf("NewBucketServiceWithConfig: %v", err)
	}
	store = bs
	defer store.Close()

	ctx := context.Background()
	key := fmt.Sprintf("orders/it-%d/final/it_a4_300dpi.png", run)
	if ok, err := store.Exists(ctx, key); err != nil || ok {
		t.Fatalf("Exists before upload: ok=%v err=%v", ok, err)
	}
	opts := objectstore.UploadOptions{
		ContentType: "image/png",
		Metadata:    map[string]string{"order_id": "it", "retention_class": "fulfillment_final"},
	}
	if err := store.Upload(ctx, key, strings.NewReader("pixels"), opts); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	var found bool
	for deadline := time.Now().Add(5 * time.Second); time.Now().Before(deadline); time.Sleep(100 * time.Millisecond) {
		if found, _ = store.Exists(ctx, key); found {
			break
		}
	}
	if !found {
		t.Fatalf("object %q never became visible", key)
	}

	url, err := store.SignedURL(ctx, key, time.Hour)
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	got, err := httpc.Get(url)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer got.Body.Close()
	body, _ := io.ReadAll(got.Body)
	if got.StatusCode != http.StatusOK || string(body) != "pixels" {
		t.Fatalf("download: want=200 %q got=%d %q", "pixels", got.StatusCode, body)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
