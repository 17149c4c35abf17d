package assets

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yungbote/artprint-backend/internal/platform/apierr"
	"github.com/yungbote/artprint-backend/internal/platform/objectstore"
)

func TestUploadFinal(t *testing.T) {
	store := newFakeStore()
	svc := NewService(nil, store, Config{FinalURLTTL: 48 * time.Hour, RetentionDays: 30})
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	res, err := svc.UploadFinal(context.Background(), []byte("pixels"), "ord_1_a4_300dpi.png", orderRef(), "image/png")
	if err != nil {
		t.Fatalf("UploadFinal: %v", err)
	}
	wantKey := "orders/ord_1/final/ord_1_a4_300dpi.png"
	if res.Key != wantKey {
		t.Fatalf("key: want=%q got=%q", wantKey, res.Key)
	}
	if res.CanonicalURI != "gs://test-bucket/"+wantKey {
		t.Fatalf("canonical: got=%q", res.CanonicalURI)
	}
	if res.SignedURL != "https://signed.test/"+wantKey+"?ttl=172800" {
		t.Fatalf("signed url: got=%q", res.SignedURL)
	}
	if !res.ExpiresAt.Equal(now.Add(48 * time.Hour)) {
		t.Fatalf("expires: got=%s", res.ExpiresAt)
	}

	up := store.uploads[wantKey]
	if string(up.body) != "pixels" {
		t.Fatalf("body: got=%q", up.body)
	}
	if up.opts.ContentType != "image/png" {
		t.Fatalf("content type: got=%q", up.opts.ContentType)
	}
	want := map[string]string{
		"order_id":        "ord_1",
		"asset_id":        "gen_42",
		"retention_class": "fulfillment_final",
		"retain_until":    "2026-05-31",
	}
	for k, v := range want {
		if up.opts.Metadata[k] != v {
			t.Fatalf("metadata %s: want=%q got=%q", k, v, up.opts.Metadata[k])
		}
	}
}

func TestUploadFinalFailuresAreFatalAndTyped(t *testing.T) {
	storeErr := errors.New("503 backend error")

	failing := newFakeStore()
	failing.uploadErr = storeErr
	signFailing := newFakeStore()
	signFailing.signErr["orders/ord_1/final/a.png"] = errors.New("no signer")

	cases := []struct {
		name   string
		store  ObjectStore
		buf    []byte
		wantOp string
		cause  error
	}{
		{"store write fails", failing, []byte("x"), "upload", storeErr},
		{"sign fails", signFailing, []byte("x"), "sign", nil},
		{"no store", nil, []byte("x"), "validate", objectstore.ErrNotConfigured},
		{"empty buffer", newFakeStore(), nil, "validate", nil},
	}
	for _, tc := range cases {
		svc := NewService(nil, tc.store, Config{})
		res, err := svc.UploadFinal(context.Background(), tc.buf, "a.png", orderRef(), "")
		if err == nil {
			t.Fatalf("%s: want error", tc.name)
		}
		if res != (UploadResult{}) {
			t.Fatalf("%s: want zero result got=%+v", tc.name, res)
		}
		if !apierr.Is(err, apierr.CodeUpstreamUnavailable) {
			t.Fatalf("%s: want upstream_unavailable got=%v", tc.name, err)
		}
		var ue *UploadError
		if !errors.As(err, &ue) || ue.Op != tc.wantOp {
			t.Fatalf("%s: want UploadError op=%s got=%v", tc.name, tc.wantOp, err)
		}
		if tc.cause != nil && !errors.Is(err, tc.cause) {
			t.Fatalf("%s: cause lost: %v", tc.name, err)
		}
	}
}
