package ratelimit

import (
	"context"
	"strings"

	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("rate.limit",
	fx.Provide(NewRedisClient),
	fx.Provide(NewCalendarLock),
	fx.Provide(NewSweepLock),
	fx.Provide(NewWebhookLimiter),
)

// NewRedisClient builds the shared redis client; a blank address
// disables redis-backed locking and limiting entirely.
func NewRedisClient(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) *redis.Client {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			_ = ctx
			log.Info("closing redis client")
			return client.Close()
		},
	})

	return client
}
