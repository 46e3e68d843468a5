package config

import (
	"mcpbridge/internal/api"
)

// GetDefaultConfig returns the configuration used when no config.yaml exists.
func GetDefaultConfig() Config {
	return Config{
		Bridge: BridgeConfig{
			LogLevel: "info",
		},
		Cleanup: api.DefaultCleanupPolicy(),
	}
}
