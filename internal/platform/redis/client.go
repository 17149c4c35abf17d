package redis

import (
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/artprint-backend/internal/platform/envutil"
	"github.com/yungbote/artprint-backend/internal/platform/logger"
)

type Config struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		Addr:        envutil.String("REDIS_ADDR", ""),
		Password:    envutil.String("REDIS_PASSWORD", ""),
		DB:          envutil.Int("REDIS_DB", 0),
		DialTimeout: envutil.Duration("REDIS_DIAL_TIMEOUT", 2*time.Second),
	}
}

// NewClient returns nil when no address is configured; the shared store is
// optional. Reachability is left to the caller, which decides what an
// unreachable store means.
func NewClient(log *logger.Logger, cfg Config) *goredis.Client {
	if cfg.Addr == "" {
		if log != nil {
			log.Info("REDIS_ADDR not set; shared rate-limit store disabled")
		}
		return nil
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 2 * time.Second
	}
	return goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.DialTimeout,
		WriteTimeout: cfg.DialTimeout,
		MaxRetries:   1,
	})
}
