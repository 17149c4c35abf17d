package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yungbote/artprint-backend/internal/modules/assets"
	"github.com/yungbote/artprint-backend/internal/modules/compositor"
	"github.com/yungbote/artprint-backend/internal/platform/apierr"
	"github.com/yungbote/artprint-backend/internal/platform/logger"
)

type SourceFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type PrepareRequest struct {
	Order assets.OrderRef
	// SourceURL overrides the artwork location. When empty the HD asset is
	// resolved through the storage tiers.
	SourceURL string
	SizeID    string
}

type PreparedAsset struct {
	Spec       compositor.PrintSpec
	Asset      *compositor.PrintAsset
	Upload     assets.UploadResult
	SourceURL  string
	SourceTier assets.Tier
}

type PrintAssetService interface {
	PrepareFinal(ctx context.Context, req PrepareRequest) (PreparedAsset, error)
}

type printAssetService struct {
	log        *logger.Logger
	specs      *compositor.Catalog
	fetcher    SourceFetcher
	compositor *compositor.Compositor
	assets     *assets.Service
}

func NewPrintAssetService(log *logger.Logger, specs *compositor.Catalog, fetcher SourceFetcher, comp *compositor.Compositor, assetSvc *assets.Service) (PrintAssetService, error) {
	if log == nil {
		log = logger.NewNop()
	}
	switch {
	case specs == nil:
		return nil, fmt.Errorf("print spec catalog required")
	case fetcher == nil:
		return nil, fmt.Errorf("source fetcher required")
	case comp == nil:
		return nil, fmt.Errorf("compositor required")
	case assetSvc == nil:
		return nil, fmt.Errorf("asset service required")
	}
	return &printAssetService{
		log:        log.With("service", "PrintAssetService"),
		specs:      specs,
		fetcher:    fetcher,
		compositor: comp,
		assets:     assetSvc,
	}, nil
}

// PrepareFinal turns a paid order's artwork into the uploaded print file for
// its size. Every failure leaves the order for manual review.
func (s *printAssetService) PrepareFinal(ctx context.Context, req PrepareRequest) (PreparedAsset, error) {
	ctx, span := otel.Tracer("artprint/services").Start(ctx, "PrintAssetService.PrepareFinal")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", req.Order.OrderID),
		attribute.String("print.size_id", req.SizeID),
	)

	out, stage, err := s.prepare(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, stage)
		s.log.Error("print asset preparation failed",
			"order_id", req.Order.OrderID,
			"size_id", req.SizeID,
			"stage", stage,
			"error_code", apierr.CodeOf(err),
			"manual_review", apierr.RequiresManualReview(err),
			"error", err,
		)
		return PreparedAsset{}, err
	}
	s.log.Info("print asset ready",
		"order_id", req.Order.OrderID,
		"size_id", out.Spec.SizeID,
		"sku_ref", out.Spec.SKURef,
		"source_tier", out.SourceTier,
		"key", out.Upload.Key,
	)
	return out, nil
}

func (s *printAssetService) prepare(ctx context.Context, req PrepareRequest) (PreparedAsset, string, error) {
	if strings.TrimSpace(req.Order.OrderID) == "" {
		return PreparedAsset{}, "validate", apierr.Configuration(errors.New("order id required"))
	}
	spec, ok := s.specs.Lookup(req.SizeID)
	if !ok {
		return PreparedAsset{}, "lookup", apierr.Configuration(fmt.Errorf("unknown print size %q", req.SizeID))
	}

	out := PreparedAsset{Spec: spec, SourceURL: strings.TrimSpace(req.SourceURL)}
	if out.SourceURL == "" {
		refs := s.assets.ResolveImages(ctx, req.Order)
		if refs.HDURL == "" {
			return PreparedAsset{}, "resolve", apierr.Upstream(fmt.Errorf("no hd source for order %s", req.Order.OrderID))
		}
		out.SourceURL, out.SourceTier = refs.HDURL, refs.HD.Tier
	}

	src, err := s.fetcher.Fetch(ctx, out.SourceURL)
	if err != nil {
		return PreparedAsset{}, "fetch", err
	}
	asset, err := s.compositor.Composite(src, spec, spec.BorderMM, spec.DPI, req.Order.OrderID)
	if err != nil {
		return PreparedAsset{}, "composite", err
	}
	up, err := s.assets.UploadFinal(ctx, asset.Buffer, asset.Filename, req.Order, asset.ContentType)
	if err != nil {
		return PreparedAsset{}, "upload", err
	}
	out.Asset = asset
	out.Upload = up
	return out, "", nil
}
