// Package admission gates expensive generation work behind a per-client
// request quota.
package admission

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/artprint-backend/internal/observability"
	"github.com/yungbote/artprint-backend/internal/platform/apierr"
	"github.com/yungbote/artprint-backend/internal/platform/logger"
)

const (
	BackendRedis = "redis"
	BackendLocal = "local"
)

const (
	defaultPrefix  = "ratelimit"
	defaultTimeout = 750 * time.Millisecond
)

type Config struct {
	Window time.Duration
	Max    int
	// Prefix namespaces keys in the shared store.
	Prefix string
	// Timeout bounds every shared-store round trip, including the
	// construction-time ping.
	Timeout time.Duration
}

type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// NotAllowedError is returned by Admit when the quota is spent.
type NotAllowedError struct {
	Identifier Identifier
	ResetAt    time.Time
}

func (e *NotAllowedError) Error() string {
	return fmt.Sprintf("quota exhausted for %s; retry after %s", e.Identifier.Type, e.ResetAt.UTC().Format(time.RFC3339))
}

// RetryAfter is the wait until the window frees a slot, never negative.
func (e *NotAllowedError) RetryAfter(now time.Time) time.Duration {
	d := e.ResetAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

type hitResult struct {
	used    int
	allowed bool
	resetAt time.Time
}

type backend interface {
	name() string
	hit(ctx context.Context, key string, now time.Time) (hitResult, error)
	count(ctx context.Context, key string, now time.Time) (int, error)
	clear(ctx context.Context, key string) error
}

type Limiter struct {
	log     *logger.Logger
	cfg     Config
	backend backend
	now     func() time.Time
}

// NewLimiter picks the backend once. A nil client, or one that does not
// answer PING within cfg.Timeout, yields the local backend for the life of
// the Limiter.
func NewLimiter(ctx context.Context, log *logger.Logger, cfg Config, rdb goredis.UniversalClient) (*Limiter, error) {
	if cfg.Window <= 0 {
		return nil, apierr.Configuration(fmt.Errorf("rate limit window must be positive, got %s", cfg.Window))
	}
	if cfg.Max <= 0 {
		return nil, apierr.Configuration(fmt.Errorf("rate limit max must be positive, got %d", cfg.Max))
	}
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if log == nil {
		log = logger.NewNop()
	}
	serviceLog := log.With("service", "AdmissionLimiter")

	var be backend
	if rdb != nil {
		pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			serviceLog.Warn(
				"shared rate-limit store unreachable; using in-process window (quota is per instance)",
				"error", err,
			)
		} else {
			be = newRedisBackend(rdb, cfg.Max, cfg.Window)
		}
	}
	if be == nil {
		be = newLocalBackend(cfg.Max, cfg.Window)
	}

	serviceLog.Info("Admission limiter initialized",
		"backend", be.name(),
		"window", cfg.Window.String(),
		"max", cfg.Max,
	)
	return &Limiter{log: serviceLog, cfg: cfg, backend: be, now: time.Now}, nil
}

func (l *Limiter) Backend() string { return l.backend.name() }

func (l *Limiter) Config() Config { return l.cfg }

// Check consumes one slot when available. On a store failure it fails
// closed: the Result is not-allowed and the error is upstream_unavailable.
func (l *Limiter) Check(ctx context.Context, id Identifier) (Result, error) {
	ctx, span := otel.Tracer("artprint/admission").Start(ctx, "admission.Check")
	defer span.End()

	now := l.now()
	key := windowKey(l.cfg.Prefix, id, now, l.cfg.Window)
	span.SetAttributes(attribute.String("admission.backend", l.backend.name()))

	callCtx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	hr, err := l.backend.hit(callCtx, key, now)
	cancel()
	if err != nil {
		span.RecordError(err)
		observability.Current().ObserveAdmission(l.backend.name(), "error")
		l.log.Warn("admission check failed closed", "identifier", id.String(), "error", err)
		return Result{Allowed: false, Remaining: 0, ResetAt: now.Add(l.cfg.Window)},
			apierr.Upstream(fmt.Errorf("admission check via %s: %w", l.backend.name(), err))
	}

	res := Result{
		Allowed:   hr.allowed,
		Remaining: l.remainingFrom(hr.used),
		ResetAt:   capAt(hr.resetAt, bucketEnd(now, l.cfg.Window)),
	}
	if !res.Allowed {
		res.Remaining = 0
	}
	outcome := "allowed"
	if !res.Allowed {
		outcome = "rejected"
	}
	span.SetAttributes(attribute.Bool("admission.allowed", res.Allowed))
	observability.Current().ObserveAdmission(l.backend.name(), outcome)
	return res, nil
}

// Admit is Check folded into a single error: nil when allowed, not_allowed
// wrapping *NotAllowedError when the quota is spent.
func (l *Limiter) Admit(ctx context.Context, id Identifier) error {
	res, err := l.Check(ctx, id)
	if err != nil {
		return err
	}
	if !res.Allowed {
		return apierr.NotAllowed(&NotAllowedError{Identifier: id, ResetAt: res.ResetAt})
	}
	return nil
}

func (l *Limiter) Reset(ctx context.Context, id Identifier) error {
	key := windowKey(l.cfg.Prefix, id, l.now(), l.cfg.Window)
	callCtx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()
	if err := l.backend.clear(callCtx, key); err != nil {
		return apierr.Upstream(fmt.Errorf("admission reset: %w", err))
	}
	return nil
}

// Remaining reports slots left without consuming one. Store failures report
// zero alongside the error.
func (l *Limiter) Remaining(ctx context.Context, id Identifier) (int, error) {
	now := l.now()
	key := windowKey(l.cfg.Prefix, id, now, l.cfg.Window)
	callCtx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()
	used, err := l.backend.count(callCtx, key, now)
	if err != nil {
		return 0, apierr.Upstream(fmt.Errorf("admission remaining: %w", err))
	}
	return l.remainingFrom(used), nil
}

func (l *Limiter) remainingFrom(used int) int {
	r := l.cfg.Max - used
	if r < 0 {
		return 0
	}
	return r
}

func capAt(t, limit time.Time) time.Time {
	if t.After(limit) {
		return limit
	}
	return t
}
