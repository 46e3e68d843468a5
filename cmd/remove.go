package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"mcpbridge/internal/config"
)

var removeCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a server definition",
	Long: `Removes a server definition file from the configuration directory. A
running bridge drops the definition through the configuration watcher;
instances already running keep the definition they were created from until
stopped or swept.

Examples:
  mcpbridge remove git`,
	Args: cobra.ExactArgs(1),
	RunE: runRemove,
}

func init() {
	rootCmd.AddCommand(removeCmd)
}

func runRemove(cmd *cobra.Command, args []string) error {
	storage := config.NewStorageWithPath(effectiveConfigPath())
	if err := storage.Delete(args[0]); err != nil {
		return fmt.Errorf("failed to remove server %s: %w", args[0], err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Removed server %s\n", args[0])
	return nil
}
