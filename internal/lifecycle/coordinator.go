package lifecycle

import (
	"context"
	"time"

	"mcpbridge/internal/api"
	"mcpbridge/internal/events"
	"mcpbridge/internal/instance"
	"mcpbridge/internal/metrics"
	"mcpbridge/internal/protocol"
	"mcpbridge/internal/template"
	"mcpbridge/pkg/logging"
)

// DefinitionSource resolves server names to definitions. The configuration
// store implements this; tests substitute a map.
type DefinitionSource interface {
	// ServerDefinition returns the definition for name, or a NotFoundError.
	ServerDefinition(name string) (*api.ServerDefinition, error)
}

// Coordinator is the single entry point for instance lifecycle operations.
// It owns one scoped manager per lifecycle mode and dispatches every request
// to the manager matching the server definition's declared mode. Background
// cleanup and monitoring hang off the coordinator as well.
type Coordinator struct {
	source   DefinitionSource
	managers map[api.LifecycleMode]instance.Manager
	recorder *metrics.Recorder
	events   *events.Generator

	sweeper *Sweeper
	monitor *Monitor
}

// Options tunes coordinator construction. Zero values fall back to the
// production defaults.
type Options struct {
	// Factory overrides the protocol factory, for tests.
	Factory protocol.Factory

	// Policy is the cleanup policy shared by all managers and the sweeper.
	Policy api.CleanupPolicy

	// Events receives lifecycle events; may be nil.
	Events *events.Generator

	// MonitorInterval is the liveness/resource sampling frequency. Zero
	// uses DefaultMonitorInterval.
	MonitorInterval time.Duration
}

// NewCoordinator wires the three scoped managers, the sweeper and the
// monitor around a definition source.
func NewCoordinator(source DefinitionSource, opts Options) *Coordinator {
	if opts.Factory == nil {
		opts.Factory = protocol.NewFactory()
	}
	if opts.Policy == (api.CleanupPolicy{}) {
		opts.Policy = api.DefaultCleanupPolicy()
	}
	if opts.MonitorInterval <= 0 {
		opts.MonitorInterval = DefaultMonitorInterval
	}

	recorder := metrics.NewRecorder()
	deps := instance.Deps{
		Resolver: template.New(),
		Recorder: recorder,
		Events:   opts.Events,
		Factory:  opts.Factory,
		Policy:   opts.Policy,
	}

	managers := map[api.LifecycleMode]instance.Manager{
		api.LifecycleGlobal:  instance.NewGlobalManager(deps),
		api.LifecycleUser:    instance.NewUserManager(deps),
		api.LifecycleSession: instance.NewSessionManager(deps),
	}

	c := &Coordinator{
		source:   source,
		managers: managers,
		recorder: recorder,
		events:   opts.Events,
	}
	c.sweeper = NewSweeper(c.allManagers(), opts.Policy.CleanupInterval(), opts.Events)
	c.monitor = NewMonitor(c.allManagers(), recorder, opts.MonitorInterval)
	return c
}

func (c *Coordinator) allManagers() []instance.Manager {
	return []instance.Manager{
		c.managers[api.LifecycleGlobal],
		c.managers[api.LifecycleUser],
		c.managers[api.LifecycleSession],
	}
}

// managerFor dispatches to the scoped manager of the definition's mode.
func (c *Coordinator) managerFor(def *api.ServerDefinition) (instance.Manager, error) {
	m, ok := c.managers[def.Lifecycle]
	if !ok {
		return nil, api.NewAdmissionError(def.Name, def.Lifecycle, "unknown lifecycle mode")
	}
	return m, nil
}

// GetInstance returns the caller's running instance for the named server, or
// nil when none exists.
func (c *Coordinator) GetInstance(ctx context.Context, serverName string, caller *api.CallerContext) (*instance.Instance, error) {
	def, err := c.source.ServerDefinition(serverName)
	if err != nil {
		return nil, err
	}
	m, err := c.managerFor(def)
	if err != nil {
		return nil, err
	}
	return m.GetInstance(ctx, def, caller)
}

// GetOrCreateInstance returns the caller's running instance, creating it
// when absent. This is the hot path for request routing.
func (c *Coordinator) GetOrCreateInstance(ctx context.Context, serverName string, caller *api.CallerContext) (*instance.Instance, error) {
	def, err := c.source.ServerDefinition(serverName)
	if err != nil {
		return nil, err
	}
	m, err := c.managerFor(def)
	if err != nil {
		return nil, err
	}

	inst, err := m.GetInstance(ctx, def, caller)
	if err != nil {
		return nil, err
	}
	if inst != nil {
		return inst, nil
	}
	return m.CreateInstance(ctx, def, caller)
}

// StopInstance stops the caller's instance for the named server. Absent
// instances are a no-op success.
func (c *Coordinator) StopInstance(ctx context.Context, serverName string, caller *api.CallerContext) error {
	def, err := c.source.ServerDefinition(serverName)
	if err != nil {
		return err
	}
	m, err := c.managerFor(def)
	if err != nil {
		return err
	}
	return m.StopInstance(ctx, def, caller)
}

// ListInstances returns a snapshot of matching instances across all three
// scoped managers.
func (c *Coordinator) ListInstances(filter *api.InstanceFilter) []*instance.Instance {
	var out []*instance.Instance
	for _, m := range c.allManagers() {
		out = append(out, m.ListInstances(filter)...)
	}
	return out
}

// RecordAccess records a served request against an instance, for callers
// sitting above the lifecycle layer that route requests themselves.
func (c *Coordinator) RecordAccess(instanceID, userID string) {
	c.recorder.RecordAccess(instanceID, userID)
}

// RecordResourceUsage feeds one resource sample for an instance into the
// metrics recorder.
func (c *Coordinator) RecordResourceUsage(instanceID string, memoryMB, cpuPercent float64) {
	if memoryMB > 0 {
		c.recorder.RecordMemory(instanceID, memoryMB)
	}
	if cpuPercent > 0 {
		c.recorder.RecordCPU(instanceID, cpuPercent)
	}
}

// Metrics returns the aggregated view across all tracked instances, with the
// live instance count taken from the pools rather than the sample store.
func (c *Coordinator) Metrics() api.AggregatedMetrics {
	agg := c.recorder.AggregatedMetrics()

	active := 0
	for _, inst := range c.ListInstances(nil) {
		if !inst.Status().IsTerminal() {
			active++
		}
	}
	agg.TotalInstances = active
	return agg
}

// CleanupNow runs one cleanup pass across all managers immediately,
// independent of the background sweep schedule.
func (c *Coordinator) CleanupNow(ctx context.Context) (int, error) {
	return c.sweeper.RunOnce(ctx)
}

// StartCleanupTask starts the periodic background sweep. Idempotent.
func (c *Coordinator) StartCleanupTask() { c.sweeper.Start() }

// StopCleanupTask stops the background sweep and waits for an in-flight
// tick to finish. Idempotent.
func (c *Coordinator) StopCleanupTask() { c.sweeper.Stop() }

// StartMonitoring starts periodic liveness and resource sampling. Idempotent.
func (c *Coordinator) StartMonitoring() { c.monitor.Start() }

// StopMonitoring stops the sampler. Idempotent.
func (c *Coordinator) StopMonitoring() { c.monitor.Stop() }

// Shutdown stops the background tasks and every instance in every pool.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.StopMonitoring()
	c.StopCleanupTask()

	var lastErr error
	for _, m := range c.allManagers() {
		if err := m.StopAll(ctx); err != nil {
			logging.Error("Lifecycle", err, "Error stopping %s instances during shutdown", m.Mode())
			lastErr = err
		}
	}
	return lastErr
}
