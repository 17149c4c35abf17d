package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/yungbote/artprint-backend/internal/app"
	"github.com/yungbote/artprint-backend/internal/modules/admission"
	"github.com/yungbote/artprint-backend/internal/modules/assets"
	"github.com/yungbote/artprint-backend/internal/modules/routing"
	"github.com/yungbote/artprint-backend/internal/platform/apierr"
	"github.com/yungbote/artprint-backend/internal/services"
)

func main() {
	var (
		orderID  string
		assetID  string
		created  string
		source   string
		sizeID   string
		style    string
		subject  string
		setting  string
		subjects int
		closeUp  bool
		client   string
		upload   bool
		out      string
		resolve  bool
		metrics  string
	)
	flag.StringVar(&orderID, "order", "", "order id the print file belongs to")
	flag.StringVar(&assetID, "asset", "", "generation asset id (primary-tier lookup)")
	flag.StringVar(&created, "created", "", "generation time, RFC3339 (defaults to now)")
	flag.StringVar(&source, "source", "", "source artwork URL (recorded HD URL)")
	flag.StringVar(&sizeID, "size", "a4", "print size id")
	flag.StringVar(&style, "style", "", "art style; prints the routing decision when set")
	flag.StringVar(&subject, "subject", "", "subject description for the prompt")
	flag.StringVar(&setting, "setting", "", "setting description for the prompt")
	flag.IntVar(&subjects, "subjects", 1, "number of subjects in the photo")
	flag.BoolVar(&closeUp, "closeup", false, "photo is a close-up")
	flag.StringVar(&client, "client", "", "client identifier (type:value) to run through admission")
	flag.BoolVar(&upload, "upload", false, "upload the composited file to the order's final namespace")
	flag.StringVar(&out, "out", "", "write the composited file to this path")
	flag.BoolVar(&resolve, "resolve", false, "resolve preview/HD URLs through the storage tiers")
	flag.StringVar(&metrics, "metrics-out", "", "write Prometheus metrics to this textfile on exit")
	flag.Parse()

	if metrics != "" {
		_ = os.Setenv("METRICS_ENABLED", "true")
		_ = os.Setenv("METRICS_TEXTFILE", metrics)
	}

	ctx := context.Background()
	application, err := app.New(ctx)
	if err != nil {
		fmt.Printf("init app: %v\n", err)
		os.Exit(1)
	}
	defer application.Close()

	if client != "" {
		id, err := admission.ParseIdentifier(client)
		if err != nil {
			fail(application, "parse client", err)
		}
		res, err := application.Limiter.Check(ctx, id)
		if err != nil {
			fail(application, "admission", err)
		}
		fmt.Printf("admission backend=%s allowed=%v remaining=%d reset_at=%s\n",
			application.Limiter.Backend(), res.Allowed, res.Remaining, res.ResetAt.UTC().Format(time.RFC3339))
		if !res.Allowed {
			os.Exit(2)
		}
	}

	if style != "" {
		sig := routing.SubjectSignals{SubjectCount: subjects, CloseUp: closeUp}
		d := application.RouteStyle(style, sig)
		fmt.Printf("route style=%s model=%s route=%s\n", d.Style, d.Job, d.Route)
		fmt.Printf("reason: %s\n", application.Router.RoutingReason(style, sig, d.Job))
		fmt.Printf("prompt: %s\n", application.Router.PromptFor(style, subject, setting, d.Job.UseAdapter))
	}

	createdAt := time.Now().UTC()
	if created != "" {
		t, err := time.Parse(time.RFC3339, created)
		if err != nil {
			fail(application, "parse -created", err)
		}
		createdAt = t
	}
	order := assets.OrderRef{
		OrderID:   strings.TrimSpace(orderID),
		AssetID:   strings.TrimSpace(assetID),
		CreatedAt: createdAt,
		HDURL:     strings.TrimSpace(source),
	}

	if resolve {
		refs := application.Assets.ResolveImages(ctx, order)
		fmt.Printf("resolved source_tier=%s preview=%s hd=%s\n", refs.SourceTier, refs.PreviewURL, refs.HDURL)
		if refs.HDURL != "" {
			order.HDURL = refs.HDURL
		}
	}

	if order.OrderID == "" || (order.HDURL == "" && !upload) {
		return
	}

	if upload {
		prepared, err := application.PrintAsset.PrepareFinal(ctx, services.PrepareRequest{Order: order, SizeID: sizeID})
		if err != nil {
			fail(application, "prepare final", err)
		}
		writeOut(application, out, prepared.Asset.Buffer)
		fmt.Printf("uploaded %s (%dx%d @ %d dpi) uri=%s\nsigned_url=%s\nexpires_at=%s\n",
			prepared.Asset.Filename, prepared.Asset.Width, prepared.Asset.Height, prepared.Asset.DPI,
			prepared.Upload.CanonicalURI, prepared.Upload.SignedURL, prepared.Upload.ExpiresAt.Format(time.RFC3339))
		return
	}

	spec, ok := application.PrintSpecs.Lookup(sizeID)
	if !ok {
		fail(application, "lookup size", apierr.Configuration(fmt.Errorf("unknown print size %q", sizeID)))
	}
	src, err := application.Fetcher.Fetch(ctx, order.HDURL)
	if err != nil {
		fail(application, "fetch source", err)
	}
	asset, err := application.Compositor.Composite(src, spec, spec.BorderMM, spec.DPI, order.OrderID)
	if err != nil {
		fail(application, "composite", err)
	}
	writeOut(application, out, asset.Buffer)
	fmt.Printf("composited %s (%dx%d @ %d dpi, %d bytes)\n", asset.Filename, asset.Width, asset.Height, asset.DPI, len(asset.Buffer))
}

func writeOut(application *app.App, path string, buf []byte) {
	if path == "" {
		return
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		fail(application, "write output", err)
	}
	fmt.Printf("wrote %s\n", path)
}

func fail(application *app.App, step string, err error) {
	fmt.Printf("%s: %v (code=%s manual_review=%v)\n", step, err, apierr.CodeOf(err), apierr.RequiresManualReview(err))
	application.Close()
	os.Exit(1)
}
