package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/artprint-backend/internal/modules/admission"
	"github.com/yungbote/artprint-backend/internal/modules/assets"
	"github.com/yungbote/artprint-backend/internal/modules/compositor"
	"github.com/yungbote/artprint-backend/internal/modules/routing"
	"github.com/yungbote/artprint-backend/internal/observability"
	"github.com/yungbote/artprint-backend/internal/platform/envutil"
	"github.com/yungbote/artprint-backend/internal/platform/logger"
	"github.com/yungbote/artprint-backend/internal/platform/objectstore"
	"github.com/yungbote/artprint-backend/internal/platform/redis"
	"github.com/yungbote/artprint-backend/internal/services"
)

type App struct {
	Log     *logger.Logger
	Cfg     Config
	Metrics *observability.Metrics

	Redis      *goredis.Client
	Limiter    *admission.Limiter
	Router     *routing.Router
	PrintSpecs *compositor.Catalog
	Fetcher    *compositor.HTTPFetcher
	Compositor *compositor.Compositor
	Store      objectstore.Store
	Assets     *assets.Service
	PrintAsset services.PrintAssetService

	otelShutdown func(context.Context) error
}

func New(ctx context.Context) (*App, error) {
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	a := &App{Log: log, Cfg: cfg}
	a.Metrics = observability.Init(log)
	a.otelShutdown = observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "artprint-fulfillment",
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})

	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	log, cfg := a.Log, a.Cfg

	a.Redis = redis.NewClient(log, cfg.Redis)
	var rdb goredis.UniversalClient
	if a.Redis != nil {
		rdb = a.Redis
	}
	limiter, err := admission.NewLimiter(ctx, log, cfg.Admission, rdb)
	if err != nil {
		return fmt.Errorf("init admission limiter: %w", err)
	}
	a.Limiter = limiter

	styles, err := routing.LoadCatalog(cfg.StyleCatalogPath)
	if err != nil {
		return fmt.Errorf("load style catalog: %w", err)
	}
	a.Router = routing.NewRouter(styles)

	specs, err := compositor.LoadPrintSpecs(cfg.PrintSpecCatalogPath)
	if err != nil {
		return fmt.Errorf("load print spec catalog: %w", err)
	}
	a.PrintSpecs = specs

	a.Fetcher = compositor.NewHTTPFetcher(log, &http.Client{}, cfg.Fetch)
	a.Compositor = compositor.New(log, compositor.Options{MaxSourcePixels: cfg.MaxSourcePixels})

	store, err := resolveObjectStore(log, cfg)
	if err != nil {
		return err
	}
	a.Store = store
	a.Assets = assets.NewService(log, store, cfg.Assets)

	printAsset, err := services.NewPrintAssetService(log, a.PrintSpecs, a.Fetcher, a.Compositor, a.Assets)
	if err != nil {
		return fmt.Errorf("init print asset service: %w", err)
	}
	a.PrintAsset = printAsset

	log.Info("Fulfillment pipeline ready",
		"admission_backend", a.Limiter.Backend(),
		"styles", len(styles.Styles()),
		"print_sizes", len(specs.SizeIDs()),
		"object_store", a.Assets.IsAvailable(),
	)
	return nil
}

// RouteStyle picks the generation job for a style and records the decision.
func (a *App) RouteStyle(style string, sig routing.SubjectSignals) routing.Decision {
	d := a.Router.Decide(style, sig)
	a.Metrics.ObserveRouting(d.Style, string(d.Route))
	return d
}

func (a *App) flushMetrics() {
	if a.Metrics == nil || a.Cfg.MetricsTextfile == "" {
		return
	}
	if err := a.Metrics.WriteTextfile(a.Cfg.MetricsTextfile); err != nil && a.Log != nil {
		a.Log.Warn("metrics textfile write failed", "path", a.Cfg.MetricsTextfile, "error", err)
	}
}

func (a *App) Close() {
	if a == nil {
		return
	}
	a.flushMetrics()
	if a.Store != nil {
		_ = a.Store.Close()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.otelShutdown(ctx)
		cancel()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
