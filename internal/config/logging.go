package config

import (
	"go.uber.org/zap"
)

// NewLogger sets up the zap logger for env and replaces the global logger.
func NewLogger(env string) (*zap.Logger, error) {
	logger, err := setLogger(env)
	if err != nil {
		return nil, err
	}
	_ = zap.ReplaceGlobals(logger)
	return logger, nil
}

func setLogger(env string) (*zap.Logger, error) {
	switch env {
	case "production":
		return zap.NewProduction()
	case "development":
		return zap.NewDevelopment()
	}
	return zap.NewExample(), nil
}
