package common

import (
	"context"

	"github.com/filstation/spprobe/src/utils/config"
)

type contextKey struct{}

var configKey = contextKey{}

// Attaches the configuration to the context
func SetConfig(ctx context.Context, config *config.Config) context.Context {
	return context.WithValue(ctx, configKey, config)
}

// Gets the configuration attached to the context
func GetConfig(ctx context.Context) *config.Config {
	return ctx.Value(configKey).(*config.Config)
}
