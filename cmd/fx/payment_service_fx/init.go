package payment_service_fx

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
	"payflow/internal/config"
	"payflow/internal/gateway"
	"payflow/internal/infra"
	"payflow/internal/repositories"
	"payflow/internal/services"
	mem "payflow/pkg/memcache"
	"payflow/pkg/utils"
)

var Module = fx.Options(
	fx.Provide(
		repositories.NewTransactionRepository,
		repositories.NewOrderRepository,
		repositories.NewProductRepository,
		repositories.NewVoucherRepository,
		repositories.NewAuditRepository,
	),
	fx.Provide(
		provideClock,
		provideObserver,
		provideStateMachine,
		provideCompensationService,
		provideWebhookIngestor,
		provideExpirationService,
		providePaymentService,
	),
)

func provideClock() utils.Clock {
	return utils.SystemClock
}

func provideObserver(audits repositories.AuditRepository, logger *zap.Logger) services.TransitionObserver {
	return services.Observers{
		services.NewAuditLogObserver(audits, logger.Named("audit")),
		services.NewLogObserver(logger.Named("events")),
	}
}

func provideStateMachine(
	txManager infra.TxManager,
	txns repositories.TransactionRepository,
	orders repositories.OrderRepository,
	observer services.TransitionObserver,
	clock utils.Clock,
	logger *zap.Logger,
) services.TransactionStateMachine {
	return services.NewTransactionStateMachine(txManager, txns, orders, observer, clock, logger.Named("state"))
}

func provideCompensationService(
	orders repositories.OrderRepository,
	products repositories.ProductRepository,
	vouchers repositories.VoucherRepository,
	notifier services.Notifier,
	observer services.TransitionObserver,
	clock utils.Clock,
	logger *zap.Logger,
) services.CompensationService {
	return services.NewCompensationService(orders, products, vouchers, notifier, observer, clock, logger.Named("compensation"))
}

func provideWebhookIngestor(
	gw gateway.Client,
	txns repositories.TransactionRepository,
	orders repositories.OrderRepository,
	stateMachine services.TransactionStateMachine,
	compensation services.CompensationService,
	notifier services.Notifier,
	receipts mem.ReceiptStore,
	clock utils.Clock,
	logger *zap.Logger,
) services.WebhookIngestor {
	return services.NewWebhookIngestor(gw, txns, orders, stateMachine, compensation, notifier, receipts, clock, logger.Named("webhook"))
}

func provideExpirationService(
	cfg config.Config,
	txns repositories.TransactionRepository,
	stateMachine services.TransactionStateMachine,
	compensation services.CompensationService,
	gw gateway.Client,
	clock utils.Clock,
	logger *zap.Logger,
) services.ExpirationService {
	return services.NewExpirationService(services.ExpirationConfig{
		PendingTimeout: cfg.Payment.PendingTimeout,
		BatchSize:      cfg.Payment.SweepBatchSize,
		Workers:        cfg.Payment.SweepWorkers,
	}, txns, stateMachine, compensation, gw, clock, logger.Named("expiration"))
}

func providePaymentService(
	cfg config.Config,
	txManager infra.TxManager,
	txns repositories.TransactionRepository,
	orders repositories.OrderRepository,
	gw gateway.Client,
	codes *gateway.OrderCodeGenerator,
	stateMachine services.TransactionStateMachine,
	compensation services.CompensationService,
	notifier services.Notifier,
	clock utils.Clock,
	logger *zap.Logger,
) services.PaymentService {
	return services.NewPaymentService(services.PaymentConfig{
		ReturnURL:      cfg.PayOS.ReturnURL,
		CancelURL:      cfg.PayOS.CancelURL,
		PendingTimeout: cfg.Payment.PendingTimeout,
	}, txManager, txns, orders, gw, codes, stateMachine, compensation, notifier, clock, logger.Named("payment"))
}
