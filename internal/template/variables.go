package template

import (
	"regexp"
	"strings"

	"mcpbridge/internal/api"
)

// identifierSanitizer strips everything but filename-safe characters from
// values used to build directory names.
var identifierSanitizer = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

func sanitizeIdentifier(s string) string {
	return identifierSanitizer.ReplaceAllString(s, "_")
}

// CreateVariables derives the fixed substitution variable set from a caller
// context. Fields whose source value is absent are omitted entirely rather
// than templated as empty strings.
//
// The derived set: userId, userEmail, sessionId, requestId, timestamp (ISO
// with ':' and '.' replaced by '-'), plus the convenience directory fields
// userDir, sessionDir, dateDir and timeDir.
func CreateVariables(caller *api.CallerContext) map[string]string {
	vars := make(map[string]string)
	if caller == nil {
		return vars
	}

	if caller.UserID != "" {
		vars["userId"] = caller.UserID
		vars["userDir"] = "user_" + sanitizeIdentifier(caller.UserID)
	}
	if caller.UserEmail != "" {
		vars["userEmail"] = sanitizeIdentifier(caller.UserEmail)
	}
	if caller.SessionID != "" {
		vars["sessionId"] = caller.SessionID
		vars["sessionDir"] = "session_" + sanitizeIdentifier(caller.SessionID)
	}
	if caller.RequestID != "" {
		vars["requestId"] = caller.RequestID
	}

	if !caller.Timestamp.IsZero() {
		ts := caller.Timestamp.UTC()
		iso := ts.Format("2006-01-02T15:04:05.000Z07:00")
		vars["timestamp"] = strings.NewReplacer(":", "-", ".", "-").Replace(iso)
		vars["dateDir"] = ts.Format("2006-01-02")
		vars["timeDir"] = strings.ReplaceAll(ts.Format("15:04:05"), ":", "-")
	}

	return vars
}

// ResolvedConfig is the spawn-ready form of a server definition: every
// template expanded and every security rule checked.
type ResolvedConfig struct {
	Command    string
	Args       []string
	Env        map[string]string
	WorkingDir string
	Paths      map[string]string
}

// ValidateAndResolveConfig resolves a definition's command, arguments,
// environment, working directory and extra path templates against the given
// variables, then validates the results. A non-valid result is a hard refusal
// to spawn; the resolved config must not be used in that case.
func (r *Resolver) ValidateAndResolveConfig(def *api.ServerDefinition, vars map[string]string) (*ResolvedConfig, ValidationResult) {
	result := ValidationResult{Valid: true}
	resolved := &ResolvedConfig{}

	var warnings []string
	resolved.Command, warnings = r.Resolve(def.Command, vars)
	result.Warnings = append(result.Warnings, warnings...)

	resolved.Args, warnings = r.ResolveSlice(def.Args, vars)
	result.Warnings = append(result.Warnings, warnings...)

	resolved.Env, warnings = r.ResolveMap(def.Env, vars)
	result.Warnings = append(result.Warnings, warnings...)

	resolved.WorkingDir, warnings = r.Resolve(def.WorkingDir, vars)
	result.Warnings = append(result.Warnings, warnings...)

	resolved.Paths, warnings = r.ResolveMap(def.PathTemplates, vars)
	result.Warnings = append(result.Warnings, warnings...)

	// An unresolved placeholder surviving into a spawnable string is a
	// validation failure, not a warning.
	if r.HasUnresolved(resolved.Command) {
		result.Valid = false
		result.Errors = append(result.Errors, "command contains an unresolved template variable")
	}
	for _, arg := range resolved.Args {
		if r.HasUnresolved(arg) {
			result.Valid = false
			result.Errors = append(result.Errors, "argument contains an unresolved template variable")
		}
	}
	if r.HasUnresolved(resolved.WorkingDir) {
		result.Valid = false
		result.Errors = append(result.Errors, "working directory contains an unresolved template variable")
	}
	for name, value := range resolved.Paths {
		if r.HasUnresolved(value) {
			result.Valid = false
			result.Errors = append(result.Errors, "path template "+name+" contains an unresolved template variable")
		}
	}
	for name, value := range resolved.Env {
		if r.HasUnresolved(value) {
			result.Warnings = append(result.Warnings, "environment variable "+name+" contains an unresolved template variable")
		}
	}

	result.Merge(ValidatePath(resolved.Command))
	if resolved.WorkingDir != "" {
		result.Merge(ValidatePath(resolved.WorkingDir))
	}
	for _, value := range resolved.Paths {
		result.Merge(ValidatePath(value))
	}

	return resolved, result
}
