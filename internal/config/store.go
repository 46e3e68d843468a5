package config

import (
	"sort"
	"sync"

	"mcpbridge/internal/api"
	"mcpbridge/pkg/logging"
)

// Store is the in-memory registry of server definitions the bridge serves.
// It is safe for concurrent use; Replace swaps the whole set atomically, so a
// configuration reload never exposes a half-updated view.
type Store struct {
	mu   sync.RWMutex
	defs map[string]api.ServerDefinition
}

// NewStore creates a store holding the given definitions.
func NewStore(defs []api.ServerDefinition) *Store {
	s := &Store{defs: make(map[string]api.ServerDefinition)}
	s.Replace(defs)
	return s
}

// ServerDefinition returns the definition for name, or a NotFoundError. The
// returned value is a copy; callers cannot mutate the store through it.
func (s *Store) ServerDefinition(name string) (*api.ServerDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	def, ok := s.defs[name]
	if !ok {
		return nil, api.NewServerNotFoundError(name)
	}
	return &def, nil
}

// All returns every definition, sorted by name.
func (s *Store) All() []api.ServerDefinition {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]api.ServerDefinition, 0, len(s.defs))
	for _, def := range s.defs {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Replace swaps the entire definition set.
func (s *Store) Replace(defs []api.ServerDefinition) {
	next := make(map[string]api.ServerDefinition, len(defs))
	for _, def := range defs {
		next[def.Name] = def
	}

	s.mu.Lock()
	s.defs = next
	s.mu.Unlock()
	logging.Debug("ConfigStore", "Store now holds %d server definitions", len(next))
}
