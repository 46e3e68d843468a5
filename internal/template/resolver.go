package template

import (
	"fmt"
	"regexp"
	"strings"

	"mcpbridge/pkg/logging"
)

// MaxValueLength caps every substituted value. Longer values are truncated
// and the truncation is reported as a warning.
const MaxValueLength = 100

// invalidValueChars are replaced with '_' in every substituted value before
// it reaches a command line, environment or path.
var invalidValueChars = []string{"<", ">", "\"", "|", "*", "?"}

// Resolver expands {variable} placeholders in command, argument, environment
// and path strings. It is a pure string transformer: it never executes
// anything and never touches the filesystem.
type Resolver struct {
	// Pattern to match placeholders like {userId}
	placeholderPattern *regexp.Regexp
}

// New creates a new template resolver.
func New() *Resolver {
	return &Resolver{
		placeholderPattern: regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`),
	}
}

// Resolve expands every known {variable} in the template. Unknown variable
// names are left verbatim and reported as warnings; callers that require a
// fully resolved string must treat a remaining placeholder as a validation
// failure rather than silently proceed.
//
// Every substituted value (never the literal template text) is sanitized
// before insertion: null bytes stripped, the characters < > " | * ? replaced
// with '_', any ".." sequence replaced with "__", and the result capped at
// MaxValueLength characters.
func (r *Resolver) Resolve(template string, vars map[string]string) (string, []string) {
	var warnings []string

	result := r.placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := match[1 : len(match)-1]
		value, ok := vars[name]
		if !ok {
			warning := fmt.Sprintf("unresolved template variable {%s}", name)
			warnings = append(warnings, warning)
			logging.Warn("TemplateResolver", "Unresolved variable {%s} in template %q", name, template)
			return match
		}

		sanitized, truncated := sanitizeValue(value)
		if truncated {
			warning := fmt.Sprintf("value for {%s} truncated to %d characters", name, MaxValueLength)
			warnings = append(warnings, warning)
			logging.Warn("TemplateResolver", "Value for {%s} exceeded %d characters, truncated", name, MaxValueLength)
		}
		return sanitized
	})

	return result, warnings
}

// ResolveSlice resolves every template in a slice, aggregating warnings.
func (r *Resolver) ResolveSlice(templates []string, vars map[string]string) ([]string, []string) {
	if templates == nil {
		return nil, nil
	}

	resolved := make([]string, len(templates))
	var warnings []string
	for i, tmpl := range templates {
		value, w := r.Resolve(tmpl, vars)
		resolved[i] = value
		warnings = append(warnings, w...)
	}
	return resolved, warnings
}

// ResolveMap resolves every value in a map of templates, aggregating
// warnings. Keys are not templated.
func (r *Resolver) ResolveMap(templates map[string]string, vars map[string]string) (map[string]string, []string) {
	if templates == nil {
		return nil, nil
	}

	resolved := make(map[string]string, len(templates))
	var warnings []string
	for key, tmpl := range templates {
		value, w := r.Resolve(tmpl, vars)
		resolved[key] = value
		warnings = append(warnings, w...)
	}
	return resolved, warnings
}

// HasUnresolved reports whether a resolved string still contains a
// placeholder. Used by callers that must refuse to act on partial results.
func (r *Resolver) HasUnresolved(s string) bool {
	return r.placeholderPattern.MatchString(s)
}

// sanitizeValue cleans one substitution value. Returns the cleaned value and
// whether it was truncated.
func sanitizeValue(value string) (string, bool) {
	// Null bytes are stripped outright.
	cleaned := strings.ReplaceAll(value, "\x00", "")

	for _, c := range invalidValueChars {
		cleaned = strings.ReplaceAll(cleaned, c, "_")
	}

	// ".." becomes "__" to block traversal through substituted values.
	cleaned = strings.ReplaceAll(cleaned, "..", "__")

	if len(cleaned) > MaxValueLength {
		return cleaned[:MaxValueLength], true
	}
	return cleaned, false
}
