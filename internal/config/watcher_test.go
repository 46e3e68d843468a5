package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpbridge/internal/api"
)

func TestWatcherReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	serverDir := filepath.Join(dir, "servers")
	writeFile(t, serverDir, "git.yaml", "name: git\ncommand: mcp-git\nlifecycle: global\n")

	defs, err := LoadServerDefinitions(dir)
	require.NoError(t, err)
	store := NewStore(defs)

	w := NewWatcher(dir, store)
	w.debounce = 20 * time.Millisecond
	require.NoError(t, w.Start())
	defer w.Stop()

	writeFile(t, serverDir, "files.yaml", "name: files\ncommand: mcp-files\nlifecycle: user\n")

	require.Eventually(t, func() bool {
		_, err := store.ServerDefinition("files")
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWatcherPicksUpRemovals(t *testing.T) {
	dir := t.TempDir()
	serverDir := filepath.Join(dir, "servers")
	writeFile(t, serverDir, "git.yaml", "name: git\ncommand: mcp-git\nlifecycle: global\n")

	defs, err := LoadServerDefinitions(dir)
	require.NoError(t, err)
	store := NewStore(defs)

	w := NewWatcher(dir, store)
	w.debounce = 20 * time.Millisecond
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.Remove(filepath.Join(serverDir, "git.yaml")))

	require.Eventually(t, func() bool {
		_, err := store.ServerDefinition("git")
		return api.IsNotFound(err)
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWatcherStartStopIdempotent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "servers"), 0755))

	w := NewWatcher(dir, NewStore(nil))
	require.NoError(t, w.Start())
	require.NoError(t, w.Start())
	w.Stop()
	w.Stop()
	assert.NotPanics(t, func() { w.Stop() })
}
