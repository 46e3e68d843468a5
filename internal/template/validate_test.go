package template

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpbridge/internal/api"
)

func TestValidatePathRejections(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"system directory", "/etc/passwd"},
		{"system directory proc", "/proc/self/environ"},
		{"traversal", "../../x"},
		{"embedded traversal", "/tmp/a/../b"},
		{"doubled slash", "/tmp//x"},
		{"null byte", "/tmp/a\x00b"},
		{"invalid character", "/tmp/a|b"},
		{"reserved device name", "/tmp/NUL"},
		{"reserved device name with extension", "/tmp/con.txt"},
		{"reserved device name lowercase", "/tmp/lpt1"},
		{"absolute outside allow list", "/usr/lib/thing"},
		{"empty", ""},
		{"overlong", "/tmp/" + strings.Repeat("a", 300)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidatePath(tt.path)
			assert.False(t, result.Valid, "expected %q to be rejected", tt.path)
			assert.NotEmpty(t, result.Errors)
		})
	}
}

func TestValidatePathAccepted(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"temp file", "/tmp/safe/file"},
		{"relative path", "data/workdir"},
		{"bare command name", "python3"},
		{"temp dir itself", "/tmp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidatePath(tt.path)
			assert.True(t, result.Valid, "expected %q to be accepted, got errors: %v", tt.path, result.Errors)
			assert.Empty(t, result.Errors)
		})
	}
}

func TestValidatePathWarnings(t *testing.T) {
	result := ValidatePath("~/data")
	assert.True(t, result.Valid)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "~")

	result = ValidatePath("$HOME/data")
	assert.True(t, result.Valid)
	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings[0], "$")
}

func TestValidationResultMerge(t *testing.T) {
	base := ValidationResult{Valid: true, Warnings: []string{"w1"}}
	base.Merge(ValidationResult{Valid: true, Warnings: []string{"w2"}})
	assert.True(t, base.Valid)
	assert.Equal(t, []string{"w1", "w2"}, base.Warnings)

	base.Merge(ValidationResult{Valid: false, Errors: []string{"e1"}})
	assert.False(t, base.Valid)
	assert.Equal(t, []string{"e1"}, base.Errors)
}

func TestValidateAndResolveConfig(t *testing.T) {
	r := New()
	vars := map[string]string{
		"userId":  "u1",
		"userDir": "user_u1",
	}

	def := &api.ServerDefinition{
		Name:       "files",
		Command:    "mcp-files",
		Args:       []string{"--root", "/tmp/{userDir}"},
		Env:        map[string]string{"FILES_USER": "{userId}"},
		WorkingDir: "/tmp/{userDir}",
		PathTemplates: map[string]string{
			"scratch": "/tmp/{userDir}/scratch",
		},
	}

	resolved, result := r.ValidateAndResolveConfig(def, vars)
	require.True(t, result.Valid, "errors: %v", result.Errors)
	assert.Equal(t, "mcp-files", resolved.Command)
	assert.Equal(t, []string{"--root", "/tmp/user_u1"}, resolved.Args)
	assert.Equal(t, "u1", resolved.Env["FILES_USER"])
	assert.Equal(t, "/tmp/user_u1", resolved.WorkingDir)
	assert.Equal(t, "/tmp/user_u1/scratch", resolved.Paths["scratch"])
}

func TestValidateAndResolveConfigRefusals(t *testing.T) {
	r := New()

	t.Run("unresolved command variable", func(t *testing.T) {
		def := &api.ServerDefinition{Name: "x", Command: "{missing}"}
		_, result := r.ValidateAndResolveConfig(def, nil)
		assert.False(t, result.Valid)
	})

	t.Run("unresolved argument variable", func(t *testing.T) {
		def := &api.ServerDefinition{Name: "x", Command: "srv", Args: []string{"{missing}"}}
		_, result := r.ValidateAndResolveConfig(def, nil)
		assert.False(t, result.Valid)
	})

	t.Run("working directory under system dir", func(t *testing.T) {
		def := &api.ServerDefinition{Name: "x", Command: "srv", WorkingDir: "/etc/srv"}
		_, result := r.ValidateAndResolveConfig(def, nil)
		assert.False(t, result.Valid)
	})

	t.Run("path template traversal via value", func(t *testing.T) {
		// The traversal in the substituted value is defused to "__", but an
		// attacker-controlled literal template with ".." is still rejected.
		def := &api.ServerDefinition{
			Name:          "x",
			Command:       "srv",
			PathTemplates: map[string]string{"p": "/tmp/../etc/passwd"},
		}
		_, result := r.ValidateAndResolveConfig(def, nil)
		assert.False(t, result.Valid)
	})

	t.Run("unresolved env variable is only a warning", func(t *testing.T) {
		def := &api.ServerDefinition{
			Name:    "x",
			Command: "srv",
			Env:     map[string]string{"TOKEN": "{missing}"},
		}
		_, result := r.ValidateAndResolveConfig(def, nil)
		assert.True(t, result.Valid)
		assert.NotEmpty(t, result.Warnings)
	})
}

func TestCreateVariables(t *testing.T) {
	caller := &api.CallerContext{
		UserID:    "u1",
		UserEmail: "u1@example.com",
		SessionID: "sess-9",
		RequestID: "req-42",
	}
	caller.Timestamp = mustParseTime(t, "2026-08-24T10:30:15.250Z")

	vars := CreateVariables(caller)
	assert.Equal(t, "u1", vars["userId"])
	assert.Equal(t, "u1_example.com", vars["userEmail"])
	assert.Equal(t, "sess-9", vars["sessionId"])
	assert.Equal(t, "req-42", vars["requestId"])
	assert.Equal(t, "user_u1", vars["userDir"])
	assert.Equal(t, "session_sess-9", vars["sessionDir"])
	assert.Equal(t, "2026-08-24", vars["dateDir"])
	assert.Equal(t, "10-30-15", vars["timeDir"])
	assert.Equal(t, "2026-08-24T10-30-15-250Z", vars["timestamp"])
}

func TestCreateVariablesOmitsAbsentFields(t *testing.T) {
	vars := CreateVariables(&api.CallerContext{UserID: "u1"})
	assert.Equal(t, "u1", vars["userId"])
	assert.NotContains(t, vars, "sessionId")
	assert.NotContains(t, vars, "sessionDir")
	assert.NotContains(t, vars, "userEmail")
	assert.NotContains(t, vars, "timestamp")
	assert.NotContains(t, vars, "dateDir")

	assert.Empty(t, CreateVariables(nil))
}

func mustParseTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339Nano, s)
	require.NoError(t, err)
	return ts
}
