package lifecycle

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpbridge/internal/api"
	"mcpbridge/internal/protocol"
)

type mapSource map[string]*api.ServerDefinition

func (s mapSource) ServerDefinition(name string) (*api.ServerDefinition, error) {
	def, ok := s[name]
	if !ok {
		return nil, api.NewServerNotFoundError(name)
	}
	return def, nil
}

type fakeClient struct{}

func (fakeClient) Ping(context.Context) error { return nil }

func (fakeClient) ListTools(context.Context) ([]mcp.Tool, error) { return nil, nil }
func (fakeClient) CallTool(context.Context, string, map[string]interface{}) (*mcp.CallToolResult, error) {
	return nil, nil
}
func (fakeClient) Close() error { return nil }

type fakeFactory struct {
	delay    time.Duration
	connects atomic.Int32
}

func (f *fakeFactory) Connect(ctx context.Context, _ io.WriteCloser, _ io.ReadCloser, _ io.ReadCloser) (protocol.Client, error) {
	f.connects.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return fakeClient{}, nil
}

func testCoordinator(t *testing.T, source mapSource) (*Coordinator, *fakeFactory) {
	t.Helper()
	f := &fakeFactory{}
	c := NewCoordinator(source, Options{Factory: f})
	t.Cleanup(func() {
		require.NoError(t, c.Shutdown(context.Background()))
	})
	return c, f
}

func TestMonitorIntervalOption(t *testing.T) {
	c := NewCoordinator(mapSource{}, Options{Factory: &fakeFactory{}, MonitorInterval: 42 * time.Millisecond})
	assert.Equal(t, 42*time.Millisecond, c.monitor.interval)

	c = NewCoordinator(mapSource{}, Options{Factory: &fakeFactory{}})
	assert.Equal(t, DefaultMonitorInterval, c.monitor.interval)
}

func TestGetOrCreateDispatchesByMode(t *testing.T) {
	source := mapSource{
		"git":   {Name: "git", Command: "cat", Lifecycle: api.LifecycleGlobal},
		"files": {Name: "files", Command: "cat", Lifecycle: api.LifecycleUser},
	}
	c, f := testCoordinator(t, source)

	global, err := c.GetOrCreateInstance(context.Background(), "git", nil)
	require.NoError(t, err)
	assert.Equal(t, api.LifecycleGlobal, global.Key().Mode)

	alice := &api.CallerContext{UserID: "alice"}
	user, err := c.GetOrCreateInstance(context.Background(), "files", alice)
	require.NoError(t, err)
	assert.Equal(t, api.LifecycleUser, user.Key().Mode)
	assert.Equal(t, "alice", user.Key().UserID)

	// Second call is a pool hit, not a new spawn.
	again, err := c.GetOrCreateInstance(context.Background(), "files", alice)
	require.NoError(t, err)
	assert.Equal(t, user.ID(), again.ID())
	assert.Equal(t, int32(2), f.connects.Load())
}

func TestGetOrCreateUnknownServer(t *testing.T) {
	c, _ := testCoordinator(t, mapSource{})

	_, err := c.GetOrCreateInstance(context.Background(), "nope", nil)
	require.Error(t, err)
	assert.True(t, api.IsNotFound(err))
}

func TestGetInstanceMissIsNil(t *testing.T) {
	source := mapSource{"git": {Name: "git", Command: "cat", Lifecycle: api.LifecycleGlobal}}
	c, _ := testCoordinator(t, source)

	inst, err := c.GetInstance(context.Background(), "git", nil)
	require.NoError(t, err)
	assert.Nil(t, inst)
}

func TestStopInstanceThroughCoordinator(t *testing.T) {
	source := mapSource{"git": {Name: "git", Command: "cat", Lifecycle: api.LifecycleGlobal}}
	c, _ := testCoordinator(t, source)

	_, err := c.GetOrCreateInstance(context.Background(), "git", nil)
	require.NoError(t, err)

	require.NoError(t, c.StopInstance(context.Background(), "git", nil))

	inst, err := c.GetInstance(context.Background(), "git", nil)
	require.NoError(t, err)
	assert.Nil(t, inst)

	err = c.StopInstance(context.Background(), "nope", nil)
	assert.True(t, api.IsNotFound(err))
}

func TestMetricsReflectLivePools(t *testing.T) {
	source := mapSource{
		"git":   {Name: "git", Command: "cat", Lifecycle: api.LifecycleGlobal},
		"files": {Name: "files", Command: "cat", Lifecycle: api.LifecycleUser},
	}
	c, _ := testCoordinator(t, source)

	_, err := c.GetOrCreateInstance(context.Background(), "git", nil)
	require.NoError(t, err)
	inst, err := c.GetOrCreateInstance(context.Background(), "files", &api.CallerContext{UserID: "alice"})
	require.NoError(t, err)

	c.RecordResourceUsage(inst.ID(), 128, 2.5)
	c.RecordAccess(inst.ID(), "bob")

	agg := c.Metrics()
	assert.Equal(t, 2, agg.TotalInstances)
	assert.GreaterOrEqual(t, agg.TotalAccessSamples, 3)
	assert.Equal(t, 2, agg.DistinctUsers)
	assert.InDelta(t, 128, agg.AvgMemoryMB, 0.01)
}

func TestCleanupNowReclaimsDeadEntries(t *testing.T) {
	source := mapSource{"flaky": {Name: "flaky", Command: "true", Lifecycle: api.LifecycleGlobal}}
	f := &fakeFactory{delay: 200 * time.Millisecond}
	c := NewCoordinator(source, Options{Factory: f})
	t.Cleanup(func() { _ = c.Shutdown(context.Background()) })

	_, err := c.GetOrCreateInstance(context.Background(), "flaky", nil)
	require.Error(t, err)
	require.Len(t, c.ListInstances(nil), 1)

	removed, err := c.CleanupNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Empty(t, c.ListInstances(nil))
}

func TestShutdownStopsEverything(t *testing.T) {
	source := mapSource{
		"git":   {Name: "git", Command: "cat", Lifecycle: api.LifecycleGlobal},
		"files": {Name: "files", Command: "cat", Lifecycle: api.LifecycleUser},
	}
	f := &fakeFactory{}
	c := NewCoordinator(source, Options{Factory: f})

	_, err := c.GetOrCreateInstance(context.Background(), "git", nil)
	require.NoError(t, err)
	_, err = c.GetOrCreateInstance(context.Background(), "files", &api.CallerContext{UserID: "alice"})
	require.NoError(t, err)

	require.NoError(t, c.Shutdown(context.Background()))
	assert.Empty(t, c.ListInstances(nil))
}
