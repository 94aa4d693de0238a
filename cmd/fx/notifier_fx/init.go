package notifier_fx

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"payflow/internal/services"
)

const channelPrefix = "payflow:notifications"

var Module = fx.Provide(provideNotifier)

type notifierParams struct {
	fx.In

	Logger *zap.Logger
	Redis  *redis.Client         `optional:"true"`
	Mail   services.IMailService `optional:"true"`
}

func provideNotifier(p notifierParams) services.Notifier {
	notifiers := services.MultiNotifier{services.NewLogNotifier(p.Logger.Named("notify"))}
	if p.Mail != nil {
		notifiers = append(notifiers, services.NewMailNotifier(p.Mail))
	}
	if p.Redis != nil {
		notifiers = append(notifiers, services.NewRedisNotifier(p.Redis, channelPrefix))
	}
	return notifiers
}
