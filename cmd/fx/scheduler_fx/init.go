package scheduler_fx

import (
	"context"

	"github.com/go-redsync/redsync/v4"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"payflow/internal/config"
	"payflow/internal/scheduler"
	"payflow/internal/services"
)

var Module = fx.Options(
	fx.Provide(provideScheduler),
	fx.Invoke(startScheduler),
)

type schedulerParams struct {
	fx.In

	Config  config.Config
	Sweeper services.ExpirationService
	Redsync *redsync.Redsync `optional:"true"`
	Logger  *zap.Logger
}

func provideScheduler(p schedulerParams) *scheduler.Scheduler {
	return scheduler.New(scheduler.Config{Interval: p.Config.Payment.SchedulerInterval},
		p.Sweeper, p.Redsync, p.Logger.Named("scheduler"))
}

func startScheduler(lc fx.Lifecycle, s *scheduler.Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return s.Start()
		},
		OnStop: func(ctx context.Context) error {
			return s.Stop(ctx)
		},
	})
}
