package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeServerFile(t *testing.T, configDir, name, content string) {
	t.Helper()
	dir := filepath.Join(configDir, "servers")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestListCommandTable(t *testing.T) {
	dir := t.TempDir()
	writeServerFile(t, dir, "git.yaml", "name: git\ncommand: mcp-git\nlifecycle: global\n")
	writeServerFile(t, dir, "files.yaml", "name: files\ncommand: mcp-files\nlifecycle: user\nautoRestart: true\nmaxRetries: 2\n")

	originalPath, originalFormat := configPath, listOutputFormat
	defer func() { configPath, listOutputFormat = originalPath, originalFormat }()
	configPath = dir
	listOutputFormat = "table"

	var buf bytes.Buffer
	listCmd.SetOut(&buf)
	if err := runList(listCmd, nil); err != nil {
		t.Fatalf("runList failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"git", "files", "global", "user"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestListCommandYAML(t *testing.T) {
	dir := t.TempDir()
	writeServerFile(t, dir, "git.yaml", "name: git\ncommand: mcp-git\nlifecycle: global\n")

	originalPath, originalFormat := configPath, listOutputFormat
	defer func() { configPath, listOutputFormat = originalPath, originalFormat }()
	configPath = dir
	listOutputFormat = "yaml"

	var buf bytes.Buffer
	listCmd.SetOut(&buf)
	if err := runList(listCmd, nil); err != nil {
		t.Fatalf("runList failed: %v", err)
	}
	if !strings.Contains(buf.String(), "name: git") {
		t.Errorf("Expected YAML output, got:\n%s", buf.String())
	}
}

func TestListCommandUnknownFormat(t *testing.T) {
	originalPath, originalFormat := configPath, listOutputFormat
	defer func() { configPath, listOutputFormat = originalPath, originalFormat }()
	configPath = t.TempDir()
	listOutputFormat = "xml"

	if err := runList(listCmd, nil); err == nil {
		t.Error("Expected an error for unknown output format")
	}
}
