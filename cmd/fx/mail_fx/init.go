package mail_fx

import (
	"go.uber.org/fx"
	"payflow/internal/config"
	"payflow/internal/services"
)

const appName = "Payflow"

var Module = fx.Provide(provideMailService)

// provideMailService returns nil when SMTP_HOST is unset.
func provideMailService(cfg config.Config) services.IMailService {
	if cfg.SMTP.Host == "" {
		return nil
	}
	return services.NewSMTPMailService(cfg.SMTP, appName)
}
