// Package formatting renders bridge state for the CLI: server definitions,
// live instances and aggregated metrics as rich tables.
package formatting

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"mcpbridge/internal/api"
	"mcpbridge/internal/instance"
)

// createTable creates a table with the standard styling, mirrored to w.
func createTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	return t
}

// statusText colors an instance status for terminal output.
func statusText(status api.InstanceStatus) string {
	switch status {
	case api.StatusRunning:
		return text.FgGreen.Sprint(status)
	case api.StatusStarting, api.StatusStopping:
		return text.FgYellow.Sprint(status)
	case api.StatusStopped:
		return text.FgHiBlack.Sprint(status)
	default:
		return text.FgRed.Sprint(status)
	}
}

// RenderDefinitions prints the configured server definitions as a table.
func RenderDefinitions(w io.Writer, defs []api.ServerDefinition) {
	if len(defs) == 0 {
		fmt.Fprintf(w, "%s\n", text.FgYellow.Sprint("No server definitions configured"))
		return
	}

	t := createTable(w)
	t.AppendHeader(table.Row{"NAME", "LIFECYCLE", "COMMAND", "AUTO-RESTART", "AUTH"})
	for _, def := range defs {
		autoRestart := "-"
		if def.AutoRestart {
			autoRestart = fmt.Sprintf("yes (%d retries)", def.MaxRetries)
		}
		auth := "-"
		if def.RequireAuth {
			auth = "required"
		}
		t.AppendRow(table.Row{def.Name, string(def.Lifecycle), def.Command, autoRestart, auth})
	}
	t.Render()
}

// RenderInstances prints live (and not yet reclaimed) instances as a table.
func RenderInstances(w io.Writer, instances []*instance.Instance) {
	if len(instances) == 0 {
		fmt.Fprintf(w, "%s\n", text.FgYellow.Sprint("No instances"))
		return
	}

	now := time.Now()
	t := createTable(w)
	t.AppendHeader(table.Row{"SERVER", "MODE", "USER", "SESSION", "STATUS", "PID", "AGE", "IDLE"})
	for _, inst := range instances {
		key := inst.Key()
		t.AppendRow(table.Row{
			key.ServerName,
			string(key.Mode),
			orDash(key.UserID),
			orDash(key.SessionID),
			statusText(inst.Status()),
			pidText(inst.PID()),
			now.Sub(inst.CreatedAt()).Round(time.Second),
			now.Sub(inst.LastAccessed()).Round(time.Second),
		})
	}
	t.Render()
}

// RenderMetrics prints the aggregated metrics as key-value rows.
func RenderMetrics(w io.Writer, agg api.AggregatedMetrics) {
	t := createTable(w)
	t.AppendHeader(table.Row{text.FgHiCyan.Sprint("METRIC"), text.FgHiCyan.Sprint("VALUE")})
	t.AppendRow(table.Row{"Active instances", agg.TotalInstances})
	t.AppendRow(table.Row{"Access samples", agg.TotalAccessSamples})
	t.AppendRow(table.Row{"Distinct users", agg.DistinctUsers})
	t.AppendRow(table.Row{"Avg memory (MB)", fmt.Sprintf("%.1f", agg.AvgMemoryMB)})
	t.AppendRow(table.Row{"Avg CPU (%)", fmt.Sprintf("%.1f", agg.AvgCPUPercent)})
	t.Render()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func pidText(pid int) string {
	if pid == 0 {
		return "-"
	}
	return fmt.Sprintf("%d", pid)
}
