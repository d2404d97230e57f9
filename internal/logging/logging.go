// Package logging builds the operational zap.Logger used throughout the
// proxy, distinct from the audit logger (internal/audit) which has its own
// sink and format.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls the operational logger's level and encoding.
type Config struct {
	Level      string // debug, info, warn, error
	Production bool   // true: JSON encoding; false: console encoding
}

// New builds a zap.Logger per Config. Production uses zap's JSON encoder
// (suitable for log aggregation); non-production uses the console encoder
// for local development, matching the dual modes zap ships out of the box.
func New(cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(defaultLevel(cfg.Level))
	if err != nil {
		return nil, err
	}

	var zcfg zap.Config
	if cfg.Production {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	return zcfg.Build()
}

func defaultLevel(level string) string {
	if level == "" {
		return "info"
	}
	return level
}
