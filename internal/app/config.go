package app

import (
	"strings"
	"time"

	"github.com/yungbote/artprint-backend/internal/modules/admission"
	"github.com/yungbote/artprint-backend/internal/modules/assets"
	"github.com/yungbote/artprint-backend/internal/modules/compositor"
	"github.com/yungbote/artprint-backend/internal/platform/envutil"
	"github.com/yungbote/artprint-backend/internal/platform/logger"
	"github.com/yungbote/artprint-backend/internal/platform/objectstore"
	"github.com/yungbote/artprint-backend/internal/platform/redis"
	"github.com/yungbote/artprint-backend/internal/platform/s3store"
)

type Config struct {
	LogMode     string
	Environment string
	Version     string

	MetricsTextfile string

	Redis     redis.Config
	Admission admission.Config

	StyleCatalogPath     string
	PrintSpecCatalogPath string

	ObjectStorageMode         string
	PrintAssetBucket          string
	StorageEmulatorHost       string
	StorageModeCompatFallback bool
	S3                        s3store.Config

	Assets          assets.Config
	Fetch           compositor.FetcherConfig
	MaxSourcePixels int64
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		LogMode:     envutil.String("LOG_MODE", "development"),
		Environment: envutil.String("APP_ENV", "development"),
		Version:     envutil.String("APP_VERSION", ""),

		MetricsTextfile: envutil.String("METRICS_TEXTFILE", ""),

		Redis: redis.ConfigFromEnv(),
		Admission: admission.Config{
			Window:  envutil.Duration("RATE_LIMIT_WINDOW", 24*time.Hour),
			Max:     envutil.Int("RATE_LIMIT_MAX", 3),
			Prefix:  envutil.String("RATE_LIMIT_PREFIX", "ratelimit"),
			Timeout: envutil.Duration("RATE_LIMIT_TIMEOUT", 750*time.Millisecond),
		},

		StyleCatalogPath:     envutil.String("STYLE_CATALOG_PATH", ""),
		PrintSpecCatalogPath: envutil.String("PRINT_SPEC_CATALOG_PATH", ""),

		ObjectStorageMode:   strings.ToLower(envutil.String("OBJECT_STORAGE_MODE", "")),
		PrintAssetBucket:    envutil.String("PRINT_ASSET_BUCKET", ""),
		StorageEmulatorHost: envutil.String("STORAGE_EMULATOR_HOST", ""),
		S3:                  s3store.ConfigFromEnv(),

		Assets: assets.Config{
			AssetURLTTL:   envutil.Duration("ASSET_SIGNED_URL_TTL", time.Hour),
			FinalURLTTL:   envutil.Duration("FINAL_SIGNED_URL_TTL", 7*24*time.Hour),
			RetentionDays: envutil.Int("ASSET_RETENTION_DAYS", 365),
		},
		Fetch: compositor.FetcherConfig{
			Timeout:  envutil.Duration("SOURCE_FETCH_TIMEOUT", 30*time.Second),
			MaxBytes: envutil.Int64("SOURCE_FETCH_MAX_BYTES", 64<<20),
			RPS:      envutil.Float("SOURCE_FETCH_RPS", 5),
			Burst:    envutil.Int("SOURCE_FETCH_BURST", 2),
		},
		MaxSourcePixels: envutil.Int64("SOURCE_MAX_PIXELS", 120_000_000),
	}

	// An emulator host with no explicit mode keeps older deployments on the
	// emulator.
	if cfg.ObjectStorageMode == "" {
		if cfg.StorageEmulatorHost != "" {
			cfg.ObjectStorageMode = string(objectstore.ModeGCSEmulator)
			cfg.StorageModeCompatFallback = true
		} else {
			cfg.ObjectStorageMode = string(objectstore.ModeGCS)
		}
	}

	if log != nil {
		log.Info("Configuration loaded",
			"object_storage_mode", cfg.ObjectStorageMode,
			"rate_limit_window", cfg.Admission.Window.String(),
			"rate_limit_max", cfg.Admission.Max,
			"redis_configured", cfg.Redis.Addr != "",
		)
	}
	return cfg
}
