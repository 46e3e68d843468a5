package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"mcpbridge/internal/api"
	"mcpbridge/pkg/logging"
)

const (
	userConfigDir  = ".config/mcpbridge"
	configFileName = "config.yaml"
)

// GetDefaultConfigPathOrPanic returns ~/.config/mcpbridge, panicking when the
// home directory cannot be determined.
func GetDefaultConfigPathOrPanic() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		panic(fmt.Errorf("could not determine user config directory: %w", err))
	}
	return filepath.Join(homeDir, userConfigDir)
}

// LoadConfig loads config.yaml from the specified directory, falling back to
// defaults when the file does not exist.
func LoadConfig(configPath string) (Config, error) {
	configFilePath := filepath.Join(configPath, configFileName)
	config := GetDefaultConfig()

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
			return config, nil
		}
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("error loading config from %s: %w", configFilePath, err)
	}

	if config.Cleanup == (api.CleanupPolicy{}) {
		config.Cleanup = api.DefaultCleanupPolicy()
	}

	logging.Info("ConfigLoader", "Loaded configuration from %s", configFilePath)
	return config, nil
}

// LoadServerDefinitions reads every YAML file under <configPath>/servers and
// parses it into a server definition. Files that fail to parse or validate
// are skipped with an error log; one bad definition must not take down the
// rest.
func LoadServerDefinitions(configPath string) ([]api.ServerDefinition, error) {
	dir := filepath.Join(configPath, serversDir)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("ConfigLoader", "No servers directory at %s", dir)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read servers directory %s: %w", dir, err)
	}

	var defs []api.ServerDefinition
	seen := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			logging.Error("ConfigLoader", err, "Failed to read server definition %s", path)
			continue
		}

		var def api.ServerDefinition
		if err := yaml.Unmarshal(data, &def); err != nil {
			logging.Error("ConfigLoader", err, "Failed to parse server definition %s", path)
			continue
		}
		if err := ValidateDefinition(&def); err != nil {
			logging.Error("ConfigLoader", err, "Invalid server definition %s", path)
			continue
		}
		if prev, dup := seen[def.Name]; dup {
			logging.Warn("ConfigLoader", "Duplicate server %q in %s (already defined in %s), skipping", def.Name, name, prev)
			continue
		}
		seen[def.Name] = name
		defs = append(defs, def)
	}

	logging.Info("ConfigLoader", "Loaded %d server definitions from %s", len(defs), dir)
	return defs, nil
}
