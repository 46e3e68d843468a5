package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"mcpbridge/internal/api"
	"mcpbridge/pkg/logging"
)

// Storage persists server definitions as one YAML file each under
// <configPath>/servers. It backs the CLI's add/remove operations; the
// running bridge reads through the loader and the watcher instead.
type Storage struct {
	mu         sync.RWMutex
	configPath string
}

// NewStorage creates a Storage rooted at the default configuration directory.
func NewStorage() *Storage {
	return &Storage{}
}

// NewStorageWithPath creates a Storage rooted at a custom directory.
func NewStorageWithPath(configPath string) *Storage {
	return &Storage{configPath: configPath}
}

func (s *Storage) root() string {
	if s.configPath != "" {
		return s.configPath
	}
	return GetDefaultConfigPathOrPanic()
}

// sanitizeFilename keeps definition names from escaping the servers
// directory.
func (s *Storage) sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	return name
}

func (s *Storage) filePath(name string) string {
	return filepath.Join(s.root(), serversDir, s.sanitizeFilename(name)+".yaml")
}

// Save validates and writes one server definition.
func (s *Storage) Save(def *api.ServerDefinition) error {
	if err := ValidateDefinition(def); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.root(), serversDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := yaml.Marshal(def)
	if err != nil {
		return fmt.Errorf("failed to marshal server %s: %w", def.Name, err)
	}

	path := s.filePath(def.Name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file %s: %w", path, err)
	}

	logging.Info("Storage", "Saved server %s to %s", def.Name, path)
	return nil
}

// Load reads one server definition by name.
func (s *Storage) Load(name string) (*api.ServerDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path := s.filePath(name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, api.NewServerNotFoundError(name)
		}
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}

	var def api.ServerDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse server %s: %w", name, err)
	}
	return &def, nil
}

// Delete removes one server definition file.
func (s *Storage) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.filePath(name)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return api.NewServerNotFoundError(name)
		}
		return fmt.Errorf("failed to delete file %s: %w", path, err)
	}

	logging.Info("Storage", "Deleted server %s (%s)", name, path)
	return nil
}

// List returns the names of all stored server definitions.
func (s *Storage) List() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dir := filepath.Join(s.root(), serversDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, ".yaml") {
			names = append(names, strings.TrimSuffix(name, ".yaml"))
		} else if strings.HasSuffix(name, ".yml") {
			names = append(names, strings.TrimSuffix(name, ".yml"))
		}
	}
	return names, nil
}
