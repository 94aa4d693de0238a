package redis_fx

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"payflow/internal/config"
	"payflow/internal/infra"
)

// Module provides a nil client (and nil redsync) when REDIS_ADDR is unset.
var Module = fx.Provide(
	provideRedis,
	infra.NewRedsync,
)

func provideRedis(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*redis.Client, error) {
	rdb, err := infra.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}
	if rdb == nil {
		logger.Info("redis disabled; sweep locking and real-time notifications are off")
		return nil, nil
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return rdb.Close()
		},
	})
	return rdb, nil
}
