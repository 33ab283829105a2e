// Package logging builds the process-wide zap logger from configuration.
package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/internex-proxy/internex/internal/config"
)

// New builds a *zap.Logger from the given logging configuration. An
// unrecognized level falls back to Info rather than failing startup.
func New(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if strings.EqualFold(cfg.Format, "console") {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.DisableStacktrace = true

	return zapCfg.Build()
}
