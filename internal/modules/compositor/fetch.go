package compositor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/yungbote/artprint-backend/internal/platform/apierr"
	"github.com/yungbote/artprint-backend/internal/platform/logger"
)

const (
	defaultFetchTimeout  = 30 * time.Second
	defaultFetchMaxBytes = 64 << 20
)

// FetchError is a failed source download. Status is 0 when no response
// arrived.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: http %d", logger.StripQuery(e.URL), e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", logger.StripQuery(e.URL), e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

type FetcherConfig struct {
	Timeout  time.Duration
	MaxBytes int64
	// RPS paces outbound fetches; zero or negative disables pacing.
	RPS   float64
	Burst int
}

// HTTPFetcher downloads source artwork from generation backends or signed
// object URLs.
type HTTPFetcher struct {
	log      *logger.Logger
	client   *http.Client
	limiter  *rate.Limiter
	timeout  time.Duration
	maxBytes int64
}

func NewHTTPFetcher(log *logger.Logger, client *http.Client, cfg FetcherConfig) *HTTPFetcher {
	if log == nil {
		log = logger.NewNop()
	}
	if client == nil {
		client = &http.Client{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultFetchTimeout
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultFetchMaxBytes
	}
	f := &HTTPFetcher{
		log:      log.With("service", "SourceFetcher"),
		client:   client,
		timeout:  cfg.Timeout,
		maxBytes: cfg.MaxBytes,
	}
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}
	return f
}

// Fetch returns the body at rawURL. Any failure is upstream_unavailable.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u := strings.TrimSpace(rawURL)
	if u == "" {
		return nil, apierr.Upstream(&FetchError{Err: fmt.Errorf("source url required")})
	}
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, apierr.Upstream(&FetchError{URL: u, Err: err})
		}
	}

	ctx2, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx2, http.MethodGet, u, nil)
	if err != nil {
		return nil, apierr.Upstream(&FetchError{URL: u, Err: err})
	}
	req.Header.Set("Accept", "image/png, image/jpeg, image/webp, image/gif;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, apierr.Upstream(&FetchError{URL: u, Err: err})
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apierr.Upstream(&FetchError{URL: u, Status: resp.StatusCode})
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, apierr.Upstream(&FetchError{URL: u, Err: err})
	}
	if int64(len(b)) > f.maxBytes {
		return nil, apierr.Upstream(&FetchError{URL: u, Err: fmt.Errorf("response too large (> %d bytes)", f.maxBytes)})
	}
	f.log.Debug("source fetched", "source_url", u, "bytes", len(b))
	return b, nil
}
