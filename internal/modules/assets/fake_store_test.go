package assets

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/yungbote/artprint-backend/internal/platform/objectstore"
)

type upload struct {
	body []byte
	opts objectstore.UploadOptions
}

type fakeStore struct {
	mu        sync.Mutex
	objects   map[string]bool
	existsErr map[string]error
	signErr   map[string]error
	uploadErr error
	uploads   map[string]upload
	lookups   int
}

func newFakeStore(keys ...string) *fakeStore {
	f := &fakeStore{
		objects:   map[string]bool{},
		existsErr: map[string]error{},
		signErr:   map[string]error{},
		uploads:   map[string]upload{},
	}
	for _, k := range keys {
		f.objects[k] = true
	}
	return f
}

func (f *fakeStore) Exists(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if err := f.existsErr[key]; err != nil {
		return false, err
	}
	return f.objects[key], nil
}

func (f *fakeStore) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.signErr[key]; err != nil {
		return "", err
	}
	return fmt.Sprintf("https://signed.test/%s?ttl=%d", key, int(ttl.Seconds())), nil
}

func (f *fakeStore) Upload(ctx context.Context, key string, body io.Reader, opts objectstore.UploadOptions) error {
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.uploads[key] = upload{body: b, opts: opts}
	f.objects[key] = true
	return nil
}

func (f *fakeStore) CanonicalURI(key string) string { return "gs://test-bucket/" + key }
func (f *fakeStore) Bucket() string                 { return "test-bucket" }
func (f *fakeStore) Close() error                   { return nil }
