package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"payflow/internal/services"
)

func sweepCmd(configPath *string) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one expiration pass over stale pending payments and print the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			var sweeper services.ExpirationService
			app := fx.New(
				coreModules(*configPath),
				fx.Populate(&sweeper),
			)
			if err := app.Err(); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := app.Start(ctx); err != nil {
				return err
			}
			defer func() { _ = app.Stop(context.Background()) }()

			report, err := sweeper.RunOnce(ctx)
			if report != nil {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(report); encErr != nil && err == nil {
					err = encErr
				}
			}
			return err
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "upper bound for the whole pass")

	return cmd
}
