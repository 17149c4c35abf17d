// Package assets resolves generated artwork URLs through the storage tiers
// and writes finished print files to the durable store.
package assets

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/artprint-backend/internal/observability"
	"github.com/yungbote/artprint-backend/internal/platform/logger"
	"github.com/yungbote/artprint-backend/internal/platform/objectstore"
)

// ObjectStore is the durable bucket the primary tier and uploads use.
type ObjectStore = objectstore.Store

type Tier string

const (
	TierPrimary   Tier = "primary"
	TierSecondary Tier = "secondary"
	TierFallback  Tier = "fallback"
)

type MissReason string

const (
	MissStoreUnavailable MissReason = "store_unavailable"
	MissMissingKey       MissReason = "missing_key"
	MissNotFound         MissReason = "not_found"
	MissLookupFailed     MissReason = "lookup_failed"
	MissSignFailed       MissReason = "sign_failed"
	MissNoSecondary      MissReason = "no_secondary"
)

type TierMiss struct {
	Tier   Tier
	Reason MissReason
	Err    error
}

// TierResolution is the outcome for one asset. Tier is fallback and URL empty
// when every tier missed.
type TierResolution struct {
	URL    string
	Tier   Tier
	Misses []TierMiss
}

func (r TierResolution) Found() bool { return r.URL != "" }

type ResolvedAssetRefs struct {
	PreviewURL string
	HDURL      string
	// SourceTier is the most upstream tier that supplied either asset. It is
	// for logs and support views only.
	SourceTier Tier
	Preview    TierResolution
	HD         TierResolution
}

// OrderRef points at one generated artwork. PreviewURL and HDURL are the
// secondary URLs recorded when the artwork was generated.
type OrderRef struct {
	OrderID    string
	AssetID    string
	CreatedAt  time.Time
	PreviewURL string
	HDURL      string
}

type Config struct {
	AssetURLTTL   time.Duration
	FinalURLTTL   time.Duration
	RetentionDays int
}

const (
	defaultAssetURLTTL   = time.Hour
	defaultFinalURLTTL   = 7 * 24 * time.Hour
	defaultRetentionDays = 365
)

type Service struct {
	log   *logger.Logger
	store ObjectStore
	cfg   Config
	now   func() time.Time
}

// NewService accepts a nil store; the service then reports unavailable and
// resolves from recorded URLs only.
func NewService(log *logger.Logger, store ObjectStore, cfg Config) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.AssetURLTTL <= 0 {
		cfg.AssetURLTTL = defaultAssetURLTTL
	}
	if cfg.FinalURLTTL <= 0 {
		cfg.FinalURLTTL = defaultFinalURLTTL
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = defaultRetentionDays
	}
	return &Service{
		log:   log.With("service", "AssetService"),
		store: store,
		cfg:   cfg,
		now:   time.Now,
	}
}

// IsAvailable reports whether a credentialed store was supplied at
// construction. It does no I/O.
func (s *Service) IsAvailable() bool {
	return s != nil && s.store != nil
}

// ResolveImages never fails; each asset degrades independently.
func (s *Service) ResolveImages(ctx context.Context, ref OrderRef) ResolvedAssetRefs {
	ctx, span := otel.Tracer("artprint/assets").Start(ctx, "assets.ResolveImages")
	defer span.End()

	var out ResolvedAssetRefs
	var g errgroup.Group
	g.Go(func() error {
		out.Preview = s.resolveOne(ctx, PreviewKey(ref.AssetID, ref.CreatedAt), ref.PreviewURL)
		return nil
	})
	g.Go(func() error {
		out.HD = s.resolveOne(ctx, HDKey(ref.AssetID, ref.CreatedAt), ref.HDURL)
		return nil
	})
	_ = g.Wait()

	out.PreviewURL = out.Preview.URL
	out.HDURL = out.HD.URL
	out.SourceTier = summarize(out.Preview.Tier, out.HD.Tier)

	metrics := observability.Current()
	metrics.ObserveAssetResolution("preview", string(out.Preview.Tier))
	metrics.ObserveAssetResolution("hd", string(out.HD.Tier))
	span.SetAttributes(
		attribute.String("assets.preview_tier", string(out.Preview.Tier)),
		attribute.String("assets.hd_tier", string(out.HD.Tier)),
	)
	if out.Preview.Tier != TierPrimary || out.HD.Tier != TierPrimary {
		s.log.Debug("asset resolution degraded",
			"order_id", ref.OrderID,
			"asset_id", ref.AssetID,
			"source_tier", out.SourceTier,
			"preview_misses", missSummary(out.Preview.Misses),
			"hd_misses", missSummary(out.HD.Misses),
		)
	}
	return out
}

func (s *Service) resolveOne(ctx context.Context, key, secondary string) TierResolution {
	url, miss := s.tryPrimary(ctx, key)
	if miss == nil {
		return TierResolution{URL: url, Tier: TierPrimary}
	}
	res := TierResolution{Misses: []TierMiss{*miss}}
	if sec := strings.TrimSpace(secondary); sec != "" {
		res.URL, res.Tier = sec, TierSecondary
		return res
	}
	res.Misses = append(res.Misses, TierMiss{Tier: TierSecondary, Reason: MissNoSecondary})
	res.Tier = TierFallback
	return res
}

func (s *Service) tryPrimary(ctx context.Context, key string) (string, *TierMiss) {
	if s.store == nil {
		return "", &TierMiss{Tier: TierPrimary, Reason: MissStoreUnavailable}
	}
	if key == "" {
		return "", &TierMiss{Tier: TierPrimary, Reason: MissMissingKey}
	}
	ok, err := s.store.Exists(ctx, key)
	if err != nil {
		return "", &TierMiss{Tier: TierPrimary, Reason: MissLookupFailed, Err: err}
	}
	if !ok {
		return "", &TierMiss{Tier: TierPrimary, Reason: MissNotFound}
	}
	url, err := s.store.SignedURL(ctx, key, s.cfg.AssetURLTTL)
	if err != nil {
		return "", &TierMiss{Tier: TierPrimary, Reason: MissSignFailed, Err: err}
	}
	return url, nil
}

func summarize(tiers ...Tier) Tier {
	best := TierFallback
	for _, t := range tiers {
		switch t {
		case TierPrimary:
			return TierPrimary
		case TierSecondary:
			best = TierSecondary
		}
	}
	return best
}

func missSummary(misses []TierMiss) []string {
	out := make([]string, 0, len(misses))
	for _, m := range misses {
		out = append(out, string(m.Tier)+":"+string(m.Reason))
	}
	return out
}
