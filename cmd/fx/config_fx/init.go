package config_fx

import (
	"go.uber.org/fx"
	"payflow/internal/config"
)

// New loads configuration from the optional YAML file at path plus the environment.
func New(path string) fx.Option {
	return fx.Provide(func() (config.Config, error) {
		return config.Load(path)
	})
}
