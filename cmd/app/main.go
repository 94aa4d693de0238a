package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"payflow/cmd/fx/config_fx"
	"payflow/cmd/fx/controllers_fx"
	"payflow/cmd/fx/db_fx"
	"payflow/cmd/fx/gateway_fx"
	"payflow/cmd/fx/logger_fx"
	"payflow/cmd/fx/mail_fx"
	"payflow/cmd/fx/memcache_fx"
	"payflow/cmd/fx/notifier_fx"
	"payflow/cmd/fx/payment_service_fx"
	"payflow/cmd/fx/redis_fx"
	"payflow/cmd/fx/scheduler_fx"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "payflow",
		Short: "payOS payment lifecycle service",
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "optional YAML config file")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(sweepCmd(&configPath))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// coreModules wires everything but the HTTP server and the scheduler.
func coreModules(configPath string) fx.Option {
	return fx.Options(
		config_fx.New(configPath),
		logger_fx.Module,
		db_fx.Module,
		redis_fx.Module,
		gateway_fx.Module,
		memcache_fx.Module,
		mail_fx.Module,
		notifier_fx.Module,
		payment_service_fx.Module,
	)
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the expiration scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(
				coreModules(*configPath),
				scheduler_fx.Module,
				controllers_fx.Module,

				fx.Provide(ProvideRouter),
				fx.Invoke(StartServer),
			)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
}
