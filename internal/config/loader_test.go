package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpbridge/internal/api"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestLoadConfigDefaultsWhenMissing(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Bridge.LogLevel)
	assert.Equal(t, 30, cfg.Cleanup.IdleTimeoutMinutes)
}

func TestLoadConfigOverrides(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", `
bridge:
  logLevel: debug
  monitorIntervalSeconds: 5
cleanup:
  idleTimeoutMinutes: 5
  maxAgeMinutes: 60
  cleanupIntervalMinutes: 1
  forcedKillGraceSeconds: 10
`)

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Bridge.LogLevel)
	assert.Equal(t, 5, cfg.Bridge.MonitorIntervalSeconds)
	assert.Equal(t, 5, cfg.Cleanup.IdleTimeoutMinutes)
	assert.Equal(t, 10, cfg.Cleanup.ForcedKillGraceSeconds)
}

func TestLoadConfigMalformed(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", "bridge: [not a mapping")

	_, err := LoadConfig(dir)
	assert.Error(t, err)
}

func TestLoadServerDefinitions(t *testing.T) {
	dir := t.TempDir()
	serverDir := filepath.Join(dir, "servers")
	writeFile(t, serverDir, "git.yaml", `
name: git
command: mcp-git
lifecycle: global
`)
	writeFile(t, serverDir, "files.yaml", `
name: files
command: mcp-files
args: ["--root", "/tmp/files/{userId}"]
lifecycle: user
autoRestart: true
maxRetries: 3
`)

	defs, err := LoadServerDefinitions(dir)
	require.NoError(t, err)
	require.Len(t, defs, 2)

	byName := make(map[string]api.ServerDefinition)
	for _, d := range defs {
		byName[d.Name] = d
	}
	assert.Equal(t, api.LifecycleGlobal, byName["git"].Lifecycle)
	assert.True(t, byName["files"].AutoRestart)
	assert.Equal(t, 3, byName["files"].MaxRetries)
	assert.Equal(t, []string{"--root", "/tmp/files/{userId}"}, byName["files"].Args)
}

func TestLoadServerDefinitionsSkipsInvalid(t *testing.T) {
	dir := t.TempDir()
	serverDir := filepath.Join(dir, "servers")
	writeFile(t, serverDir, "good.yaml", "name: good\ncommand: mcp-good\nlifecycle: global\n")
	writeFile(t, serverDir, "nocommand.yaml", "name: bad\nlifecycle: global\n")
	writeFile(t, serverDir, "badmode.yaml", "name: worse\ncommand: x\nlifecycle: eternal\n")
	writeFile(t, serverDir, "broken.yaml", "{{{{")
	writeFile(t, serverDir, "notes.txt", "not yaml")

	defs, err := LoadServerDefinitions(dir)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "good", defs[0].Name)
}

func TestLoadServerDefinitionsDuplicateNames(t *testing.T) {
	dir := t.TempDir()
	serverDir := filepath.Join(dir, "servers")
	writeFile(t, serverDir, "a.yaml", "name: git\ncommand: first\nlifecycle: global\n")
	writeFile(t, serverDir, "b.yaml", "name: git\ncommand: second\nlifecycle: global\n")

	defs, err := LoadServerDefinitions(dir)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "first", defs[0].Command)
}

func TestLoadServerDefinitionsNoDirectory(t *testing.T) {
	defs, err := LoadServerDefinitions(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, defs)
}

func TestValidateDefinition(t *testing.T) {
	valid := &api.ServerDefinition{Name: "git", Command: "mcp-git", Lifecycle: api.LifecycleGlobal}
	assert.NoError(t, ValidateDefinition(valid))

	tests := []struct {
		name string
		def  api.ServerDefinition
	}{
		{"missing name", api.ServerDefinition{Command: "x", Lifecycle: api.LifecycleGlobal}},
		{"missing command", api.ServerDefinition{Name: "x", Lifecycle: api.LifecycleGlobal}},
		{"bad lifecycle", api.ServerDefinition{Name: "x", Command: "x", Lifecycle: "eternal"}},
		{"negative retries", api.ServerDefinition{Name: "x", Command: "x", Lifecycle: api.LifecycleGlobal, MaxRetries: -1}},
		{"autorestart without budget", api.ServerDefinition{Name: "x", Command: "x", Lifecycle: api.LifecycleGlobal, AutoRestart: true}},
		{"run as root", api.ServerDefinition{Name: "x", Command: "x", Lifecycle: api.LifecycleGlobal, RunAs: &api.ProcessUser{UID: 0, GID: 1000}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, ValidateDefinition(&tt.def))
		})
	}
}
