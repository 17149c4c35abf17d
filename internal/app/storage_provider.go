package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/artprint-backend/internal/observability"
	"github.com/yungbote/artprint-backend/internal/platform/gcp"
	"github.com/yungbote/artprint-backend/internal/platform/logger"
	"github.com/yungbote/artprint-backend/internal/platform/objectstore"
	"github.com/yungbote/artprint-backend/internal/platform/s3store"
)

var (
	newBucketServiceWithConfig = func(log *logger.Logger, cfg objectstore.Config) (objectstore.Store, error) {
		b, err := gcp.NewBucketServiceWithConfig(log, cfg)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
	newS3Store = func(log *logger.Logger, cfg s3store.Config) (objectstore.Store, error) {
		s, err := s3store.New(log, cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
)

type StorageProviderBootstrapErrorCode string

const (
	StorageProviderBootstrapErrorInvalidMode         StorageProviderBootstrapErrorCode = "invalid_mode"
	StorageProviderBootstrapErrorMissingEmulatorHost StorageProviderBootstrapErrorCode = "missing_emulator_host"
	StorageProviderBootstrapErrorInvalidEmulatorHost StorageProviderBootstrapErrorCode = "invalid_emulator_host"
	StorageProviderBootstrapErrorMissingS3Endpoint   StorageProviderBootstrapErrorCode = "missing_s3_endpoint"
	StorageProviderBootstrapErrorConnectFailed       StorageProviderBootstrapErrorCode = "connect_failed"
)

type StorageProviderBootstrapError struct {
	Code         StorageProviderBootstrapErrorCode
	Mode         string
	EmulatorHost string
	Cause        error
}

func (e *StorageProviderBootstrapError) Error() string {
	if e == nil {
		return "object storage bootstrap failed"
	}
	return fmt.Sprintf(
		"object storage bootstrap failed (code=%s mode=%q emulator_host=%q): %v",
		e.Code,
		e.Mode,
		e.EmulatorHost,
		e.Cause,
	)
}

func (e *StorageProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func storageConfigFrom(cfg Config) objectstore.Config {
	return objectstore.Config{
		Mode:                  objectstore.Mode(strings.TrimSpace(cfg.ObjectStorageMode)),
		Bucket:                strings.TrimSpace(cfg.PrintAssetBucket),
		EmulatorHost:          strings.TrimSpace(cfg.StorageEmulatorHost),
		S3Endpoint:            strings.TrimSpace(cfg.S3.Endpoint),
		CompatibilityFallback: cfg.StorageModeCompatFallback,
	}
}

// resolveObjectStore builds the durable store for the configured mode. A
// backend missing its bucket or credentials yields (nil, nil): the pipeline
// runs with the primary tier disabled. Broken mode settings are fatal.
func resolveObjectStore(log *logger.Logger, cfg Config) (objectstore.Store, error) {
	storageCfg := storageConfigFrom(cfg)
	modeSource := storageCfg.ModeSource()
	metrics := observability.Current()
	metrics.SetObjectStorageModeActive(string(storageCfg.Mode))

	if !objectstore.IsSupportedMode(storageCfg.Mode) {
		err := &StorageProviderBootstrapError{
			Code:         StorageProviderBootstrapErrorInvalidMode,
			Mode:         string(storageCfg.Mode),
			EmulatorHost: storageCfg.EmulatorHost,
			Cause:        fmt.Errorf("unsupported object storage mode %q", storageCfg.Mode),
		}
		metrics.ObserveObjectStorageProviderBootstrap(string(storageCfg.Mode), "error", string(err.Code))
		log.Error(
			"Object storage provider selection failed",
			"mode", storageCfg.Mode,
			"mode_source", modeSource,
			"compatibility_fallback", storageCfg.CompatibilityFallback,
			"emulator_host", storageCfg.EmulatorHost,
			"error_code", err.Code,
			"error", err,
		)
		return nil, err
	}

	log.Info(
		"Selecting object storage provider",
		"mode", storageCfg.Mode,
		"mode_source", modeSource,
		"compatibility_fallback", storageCfg.CompatibilityFallback,
		"emulator_host", storageCfg.EmulatorHost,
	)

	var (
		store objectstore.Store
		err   error
	)
	if storageCfg.Mode == objectstore.ModeS3 {
		store, err = newS3Store(log, cfg.S3)
	} else {
		store, err = newBucketServiceWithConfig(log, storageCfg)
	}
	if errors.Is(err, objectstore.ErrNotConfigured) {
		metrics.ObserveObjectStorageProviderBootstrap(string(storageCfg.Mode), "disabled", "not_configured")
		log.Warn(
			"Object storage not configured; primary asset tier disabled",
			"mode", storageCfg.Mode,
			"error", err,
		)
		return nil, nil
	}
	if err != nil {
		classified := classifyStorageProviderBootstrapError(storageCfg, err)
		code := storageProviderBootstrapErrorCode(classified)
		metrics.ObserveObjectStorageProviderBootstrap(string(storageCfg.Mode), "error", string(code))
		log.Error(
			"Object storage provider bootstrap failed",
			"mode", storageCfg.Mode,
			"mode_source", modeSource,
			"compatibility_fallback", storageCfg.CompatibilityFallback,
			"emulator_host", storageCfg.EmulatorHost,
			"error_code", code,
			"error", classified,
		)
		return nil, classified
	}
	metrics.ObserveObjectStorageProviderBootstrap(string(storageCfg.Mode), "success", "none")
	return store, nil
}

func classifyStorageProviderBootstrapError(storageCfg objectstore.Config, err error) error {
	code := StorageProviderBootstrapErrorConnectFailed
	var cfgErr *objectstore.ConfigError
	if errors.As(err, &cfgErr) {
		switch cfgErr.Code {
		case objectstore.ConfigErrorInvalidMode:
			code = StorageProviderBootstrapErrorInvalidMode
		case objectstore.ConfigErrorMissingEmulatorHost:
			code = StorageProviderBootstrapErrorMissingEmulatorHost
		case objectstore.ConfigErrorInvalidEmulatorHost:
			code = StorageProviderBootstrapErrorInvalidEmulatorHost
		case objectstore.ConfigErrorMissingS3Endpoint:
			code = StorageProviderBootstrapErrorMissingS3Endpoint
		}
	}
	return &StorageProviderBootstrapError{
		Code:         code,
		Mode:         string(storageCfg.Mode),
		EmulatorHost: storageCfg.EmulatorHost,
		Cause:        err,
	}
}

func storageProviderBootstrapErrorCode(err error) StorageProviderBootstrapErrorCode {
	var bootstrapErr *StorageProviderBootstrapError
	if errors.As(err, &bootstrapErr) {
		if bootstrapErr.Code != "" {
			return bootstrapErr.Code
		}
	}
	return StorageProviderBootstrapErrorConnectFailed
}
