// Package logger builds the zap loggers used across cta.
package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logging settings
type Config struct {
	Level       string   `mapstructure:"level"`    // debug, info, warn, error
	Development bool     `mapstructure:"development"`
	Encoding    string   `mapstructure:"encoding"` // json or console
	OutputPaths []string `mapstructure:"output_paths"`
}

// New creates a new zap logger
func New(cfg Config) (*zap.Logger, error) {
	var zc zap.Config

	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("logger: %w", err)
		}
		zc.Level = level
	}
	if cfg.Encoding != "" {
		zc.Encoding = cfg.Encoding
	}
	if len(cfg.OutputPaths) > 0 {
		zc.OutputPaths = cfg.OutputPaths
	}

	return zc.Build()
}

// Must creates a logger or panics
func Must(cfg Config) *zap.Logger {
	log, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return log
}
