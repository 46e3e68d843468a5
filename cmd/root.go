package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"mcpbridge/internal/api"
	"mcpbridge/internal/config"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeValidationFailed indicates one or more definitions failed validation.
	ExitCodeValidationFailed = 2
)

// configPath is the global configuration directory override. Empty means
// ~/.config/mcpbridge.
var configPath string

// rootCmd represents the base command for the mcpbridge application.
var rootCmd = &cobra.Command{
	Use:   "mcpbridge",
	Short: "Bridge MCP clients to per-user and per-session backend servers",
	Long: `mcpbridge runs MCP servers as managed child processes and hands each
caller the right instance for the server's lifecycle mode: one shared
instance, one per user, or one per session. Instance paths and arguments are
resolved from per-caller template variables, and idle instances are cleaned
up automatically.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors
	// that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command. Called from the main
// package to inject the build version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "mcpbridge version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode maps error types to semantic exit codes for scripting.
func getExitCode(err error) int {
	if api.IsTemplateValidationError(err) {
		return ExitCodeValidationFailed
	}
	return ExitCodeError
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config-path", "", "Custom configuration directory (default is $HOME/.config/mcpbridge)")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
}

// effectiveConfigPath resolves the configuration directory for a command.
func effectiveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.GetDefaultConfigPathOrPanic()
}
