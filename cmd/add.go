package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"mcpbridge/internal/api"
	"mcpbridge/internal/config"
)

var (
	addCommand     string
	addArgs        []string
	addEnv         map[string]string
	addLifecycle   string
	addWorkingDir  string
	addRequireAuth bool
	addAutoRestart bool
	addMaxRetries  int
)

var addCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a server definition",
	Long: `Adds a server definition to the configuration directory as one YAML file
under servers/. The definition is validated before it is written; a running
bridge picks the new file up through the configuration watcher.

Examples:
  mcpbridge add git --command mcp-git
  mcpbridge add files --command mcp-files --lifecycle user \
    --arg --root --arg /tmp/files/{userDir} --auto-restart --max-retries 3`,
	Args: cobra.ExactArgs(1),
	RunE: runAdd,
}

func init() {
	rootCmd.AddCommand(addCmd)

	addCmd.Flags().StringVar(&addCommand, "command", "", "Launch command (required)")
	addCmd.Flags().StringArrayVar(&addArgs, "arg", nil, "Launch argument (repeatable)")
	addCmd.Flags().StringToStringVar(&addEnv, "env", nil, "Environment variable as key=value (repeatable)")
	addCmd.Flags().StringVar(&addLifecycle, "lifecycle", string(api.LifecycleGlobal), "Lifecycle mode (global, user, session)")
	addCmd.Flags().StringVar(&addWorkingDir, "working-dir", "", "Working directory template")
	addCmd.Flags().BoolVar(&addRequireAuth, "require-auth", false, "Only admit authenticated callers")
	addCmd.Flags().BoolVar(&addAutoRestart, "auto-restart", false, "Restart crashed instances")
	addCmd.Flags().IntVar(&addMaxRetries, "max-retries", 0, "Restart attempts before giving up")
	_ = addCmd.MarkFlagRequired("command")
}

func runAdd(cmd *cobra.Command, args []string) error {
	def := &api.ServerDefinition{
		Name:        args[0],
		Command:     addCommand,
		Args:        addArgs,
		Env:         addEnv,
		Lifecycle:   api.LifecycleMode(addLifecycle),
		WorkingDir:  addWorkingDir,
		RequireAuth: addRequireAuth,
		AutoRestart: addAutoRestart,
		MaxRetries:  addMaxRetries,
	}

	storage := config.NewStorageWithPath(effectiveConfigPath())
	if err := storage.Save(def); err != nil {
		return fmt.Errorf("failed to save server %s: %w", def.Name, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Added server %s (%s lifecycle)\n", def.Name, def.Lifecycle)
	return nil
}
