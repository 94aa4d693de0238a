package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"payflow/internal/api/controllers"
	"payflow/internal/config"
	"payflow/pkg/middleware"
)

func StartServer(lc fx.Lifecycle, shutdowner fx.Shutdowner, cfg config.Config, engine *gin.Engine, logger *zap.Logger) {
	srv := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			logger.Info("starting HTTP server", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("HTTP server stopped", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("stopping HTTP server")
			return srv.Shutdown(ctx)
		},
	})
}

func ProvideRouter(
	cfg config.Config,
	logger *zap.Logger,
	paymentController *controllers.PaymentController,
	healthController *controllers.HealthController) *gin.Engine {

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.TraceIDMiddleware())
	r.Use(middleware.RequestLogger(logger.Named("http")))
	r.Use(gin.Recovery())
	r.Use(middleware.CORSMiddleware())

	RegisterRoutes(r, cfg, paymentController, healthController)

	return r
}

func RegisterRoutes(r *gin.Engine,
	cfg config.Config,
	paymentController *controllers.PaymentController,
	healthController *controllers.HealthController) {

	r.GET("/healthz", healthController.Health)

	paymentsGroup := r.Group(cfg.HTTP.APIPrefix + "/payments")
	paymentsGroup.POST("/webhook", paymentController.HandleWebhook)

	authed := paymentsGroup.Group("", middleware.JWTAuthMiddleware(cfg.JWT.Secret))
	authed.POST("/create", paymentController.CreatePayment)
	authed.GET("/verify/:orderCode", paymentController.VerifyPayment)
	authed.POST("/cancel/:orderCode", paymentController.CancelPayment)
	authed.GET("/transactions", paymentController.ListTransactions)
	authed.GET("/transactions/:id", paymentController.GetTransaction)
}
