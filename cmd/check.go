package cmd

import (
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"mcpbridge/internal/api"
	"mcpbridge/internal/config"
	"mcpbridge/internal/template"
)

var checkQuiet bool

var checkCmd = &cobra.Command{
	Use:   "check [server-name]",
	Short: "Validate server definitions without spawning anything",
	Long: `Resolves every server definition's templates with sample caller variables
and runs the resolved command, working directory and paths through path
validation. Nothing is spawned; this is a dry run of exactly the checks a
real request would face.

With a server name, only that definition is checked.

Examples:
  mcpbridge check
  mcpbridge check git
  mcpbridge check --config-path ./testdata`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().BoolVarP(&checkQuiet, "quiet", "q", false, "Suppress non-essential output")
}

// checkVariables are the sample caller variables used for the dry run. Real
// requests substitute the actual caller identity.
func checkVariables() map[string]string {
	return template.CreateVariables(&api.CallerContext{
		UserID:    "sample-user",
		SessionID: "sample-session",
		RequestID: "sample-request",
	})
}

func runCheck(cmd *cobra.Command, args []string) error {
	path := effectiveConfigPath()

	defs, err := config.LoadServerDefinitions(path)
	if err != nil {
		return fmt.Errorf("failed to load server definitions: %w", err)
	}
	if len(args) == 1 {
		var filtered []api.ServerDefinition
		for _, def := range defs {
			if def.Name == args[0] {
				filtered = append(filtered, def)
			}
		}
		if len(filtered) == 0 {
			return api.NewServerNotFoundError(args[0])
		}
		defs = filtered
	}
	if len(defs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No server definitions to check")
		return nil
	}

	var s *spinner.Spinner
	if !checkQuiet {
		s = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		s.Suffix = fmt.Sprintf(" Checking %d server definitions...", len(defs))
		s.Start()
	}

	resolver := template.New()
	vars := checkVariables()

	type result struct {
		name     string
		errors   []string
		warnings []string
	}
	var results []result
	failed := false
	for _, def := range defs {
		_, validation := resolver.ValidateAndResolveConfig(&def, vars)
		results = append(results, result{
			name:     def.Name,
			errors:   validation.Errors,
			warnings: validation.Warnings,
		})
		if !validation.Valid {
			failed = true
		}
	}

	if s != nil {
		s.Stop()
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"SERVER", "RESULT", "DETAILS"})
	for _, r := range results {
		switch {
		case len(r.errors) > 0:
			t.AppendRow(table.Row{r.name, text.FgRed.Sprint("invalid"), joinLines(r.errors)})
		case len(r.warnings) > 0:
			t.AppendRow(table.Row{r.name, text.FgYellow.Sprint("ok"), joinLines(r.warnings)})
		default:
			t.AppendRow(table.Row{r.name, text.FgGreen.Sprint("ok"), ""})
		}
	}
	t.Render()

	if failed {
		return api.NewTemplateValidationError("check", []string{"one or more definitions failed validation"})
	}
	return nil
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}
