package config

import (
	"fmt"

	"mcpbridge/internal/api"
)

// ValidateDefinition performs the structural checks a server definition must
// pass before it is admitted to the store. Template placeholders are not
// resolved here; that happens per request with the caller's variables.
func ValidateDefinition(def *api.ServerDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("server definition has no name")
	}
	if def.Command == "" {
		return fmt.Errorf("server %q has no command", def.Name)
	}
	if !def.Lifecycle.IsValid() {
		return fmt.Errorf("server %q has invalid lifecycle mode %q", def.Name, def.Lifecycle)
	}
	if def.MaxRetries < 0 {
		return fmt.Errorf("server %q has negative maxRetries", def.Name)
	}
	if def.AutoRestart && def.MaxRetries == 0 {
		return fmt.Errorf("server %q enables autoRestart with maxRetries 0", def.Name)
	}
	if def.Limits != nil {
		if def.Limits.MaxInstances < 0 {
			return fmt.Errorf("server %q has negative maxInstances", def.Name)
		}
		if def.Limits.StartupTimeoutMinutes < 0 {
			return fmt.Errorf("server %q has negative startupTimeoutMinutes", def.Name)
		}
	}
	if def.RunAs != nil && def.RunAs.UID == 0 {
		return fmt.Errorf("server %q must not run as uid 0", def.Name)
	}
	return nil
}
