package config

import (
	"mcpbridge/internal/api"
)

// serversDir is the subdirectory holding one YAML file per server definition.
const serversDir = "servers"

// Config is the top-level configuration structure for mcpbridge.
type Config struct {
	Bridge  BridgeConfig      `yaml:"bridge"`
	Cleanup api.CleanupPolicy `yaml:"cleanup"`
}

// BridgeConfig configures the bridge process itself.
type BridgeConfig struct {
	// LogLevel sets the minimum log level (debug, info, warn, error).
	LogLevel string `yaml:"logLevel,omitempty"`

	// MonitorIntervalSeconds is the liveness/resource sampling frequency.
	// 0 uses the built-in default.
	MonitorIntervalSeconds int `yaml:"monitorIntervalSeconds,omitempty"`
}
