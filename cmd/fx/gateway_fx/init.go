package gateway_fx

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
	"payflow/internal/config"
	"payflow/internal/gateway"
)

var Module = fx.Provide(
	provideGateway,
	gateway.NewOrderCodeGenerator,
)

func provideGateway(cfg config.Config, logger *zap.Logger) (gateway.Client, error) {
	return gateway.NewPayOSClient(gateway.PayOSConfig{
		ClientID:    cfg.PayOS.ClientID,
		ApiKey:      cfg.PayOS.ApiKey,
		ChecksumKey: cfg.PayOS.ChecksumKey,
		Timeout:     cfg.PayOS.Timeout,
	}, logger.Named("payos"))
}
