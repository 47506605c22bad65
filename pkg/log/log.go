// Package log provides the process-wide zap logger as an fx module.
package log

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/dossierlabs/dossier-messaging/internal/config"
)

var Module = fx.Module("log",
	fx.Provide(NewLogger),
)

// NewLogger builds a production JSON logger, or a human-readable
// development logger when ENVIRONMENT=development.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Environment == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
