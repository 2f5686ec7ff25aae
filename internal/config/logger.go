// Copyright 2025 Joseph Cumines

package config

import (
	"go.uber.org/zap"
)

// NewLogger builds the process logger: human-readable at debug level when
// Debug is set, JSON at info level otherwise. Output goes to stderr, which
// keeps stdout free for protocol traffic.
func NewLogger(cfg *Config) (*zap.Logger, error) {
	var zc zap.Config
	if cfg.Debug {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}
