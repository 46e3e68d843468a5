package formatting

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"mcpbridge/internal/api"
)

func TestRenderDefinitions(t *testing.T) {
	var sb strings.Builder
	RenderDefinitions(&sb, []api.ServerDefinition{
		{Name: "git", Command: "mcp-git", Lifecycle: api.LifecycleGlobal},
		{Name: "files", Command: "mcp-files", Lifecycle: api.LifecycleUser, AutoRestart: true, MaxRetries: 3, RequireAuth: true},
	})

	out := sb.String()
	assert.Contains(t, out, "git")
	assert.Contains(t, out, "mcp-files")
	assert.Contains(t, out, "yes (3 retries)")
	assert.Contains(t, out, "required")
}

func TestRenderDefinitionsEmpty(t *testing.T) {
	var sb strings.Builder
	RenderDefinitions(&sb, nil)
	assert.Contains(t, sb.String(), "No server definitions")
}

func TestRenderInstancesEmpty(t *testing.T) {
	var sb strings.Builder
	RenderInstances(&sb, nil)
	assert.Contains(t, sb.String(), "No instances")
}

func TestRenderMetrics(t *testing.T) {
	var sb strings.Builder
	RenderMetrics(&sb, api.AggregatedMetrics{
		TotalInstances:     4,
		TotalAccessSamples: 17,
		DistinctUsers:      2,
		AvgMemoryMB:        64.25,
		AvgCPUPercent:      1.5,
	})

	out := sb.String()
	assert.Contains(t, out, "Active instances")
	assert.Contains(t, out, "17")
	assert.Contains(t, out, "64.2")
}
