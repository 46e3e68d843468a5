package cmd

import (
	"bytes"
	"strings"
	"testing"

	"mcpbridge/internal/api"
)

func runCheckWith(t *testing.T, dir string, args []string) (string, error) {
	t.Helper()

	originalPath, originalQuiet := configPath, checkQuiet
	defer func() { configPath, checkQuiet = originalPath, originalQuiet }()
	configPath = dir
	checkQuiet = true

	var buf bytes.Buffer
	checkCmd.SetOut(&buf)
	err := runCheck(checkCmd, args)
	return buf.String(), err
}

func TestCheckCommandPasses(t *testing.T) {
	dir := t.TempDir()
	writeServerFile(t, dir, "git.yaml", "name: git\ncommand: mcp-git\nargs: [\"--scratch\", \"/tmp/scratch/{userId}\"]\nlifecycle: user\n")

	out, err := runCheckWith(t, dir, nil)
	if err != nil {
		t.Fatalf("Expected check to pass, got %v", err)
	}
	if !strings.Contains(out, "git") {
		t.Errorf("Expected output to mention the server, got:\n%s", out)
	}
}

func TestCheckCommandFailsOnUnsafePath(t *testing.T) {
	dir := t.TempDir()
	writeServerFile(t, dir, "evil.yaml", "name: evil\ncommand: mcp-evil\nargs: [\"--conf\", \"/etc/{userId}\"]\nlifecycle: user\npathTemplates:\n  conf: /etc/{userId}\n")

	out, err := runCheckWith(t, dir, nil)
	if err == nil {
		t.Fatal("Expected check to fail")
	}
	if !api.IsTemplateValidationError(err) {
		t.Errorf("Expected a template validation error, got %v", err)
	}
	if !strings.Contains(out, "invalid") {
		t.Errorf("Expected output to flag the definition, got:\n%s", out)
	}
}

func TestCheckCommandUnknownServer(t *testing.T) {
	dir := t.TempDir()
	writeServerFile(t, dir, "git.yaml", "name: git\ncommand: mcp-git\nlifecycle: global\n")

	_, err := runCheckWith(t, dir, []string{"nope"})
	if !api.IsNotFound(err) {
		t.Errorf("Expected a not-found error, got %v", err)
	}
}
