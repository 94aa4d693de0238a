package controllers_fx

import (
	"go.uber.org/fx"
	"payflow/internal/api/controllers"
)

var Module = fx.Options(
	fx.Provide(controllers.NewPaymentController),
	fx.Provide(controllers.NewHealthController))
