package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"mcpbridge/internal/config"
	"mcpbridge/internal/formatting"
)

var listOutputFormat string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured server definitions",
	Long: `Lists the server definitions in the configuration directory with their
lifecycle mode, command and restart policy.

Examples:
  mcpbridge list
  mcpbridge list -o yaml`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVarP(&listOutputFormat, "output", "o", "table", "Output format (table, yaml)")
}

func runList(cmd *cobra.Command, args []string) error {
	defs, err := config.LoadServerDefinitions(effectiveConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load server definitions: %w", err)
	}

	switch listOutputFormat {
	case "table":
		formatting.RenderDefinitions(cmd.OutOrStdout(), defs)
		return nil
	case "yaml":
		data, err := yaml.Marshal(defs)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	default:
		return fmt.Errorf("unknown output format %q", listOutputFormat)
	}
}
