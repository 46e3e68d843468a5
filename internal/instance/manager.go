package instance

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"mcpbridge/internal/api"
	"mcpbridge/internal/events"
	"mcpbridge/internal/metrics"
	"mcpbridge/internal/protocol"
	"mcpbridge/internal/template"
	"mcpbridge/pkg/logging"
)

// Manager is a scoped instance pool for one lifecycle mode. A manager admits
// only definitions of its own mode, pools instances under the mode's identity
// key, and owns every process it spawns from creation to reaping.
type Manager interface {
	// Mode returns the lifecycle mode this manager serves.
	Mode() api.LifecycleMode

	// GetInstance returns the pooled running instance for the caller's
	// identity, or nil when there is none. A hit refreshes lastAccessed and
	// records an access sample.
	GetInstance(ctx context.Context, def *api.ServerDefinition, caller *api.CallerContext) (*Instance, error)

	// CreateInstance creates (or returns the already-live) instance for the
	// caller's identity: admission, template resolution, spawn, handshake.
	// Concurrent creations for the same identity collapse into one.
	CreateInstance(ctx context.Context, def *api.ServerDefinition, caller *api.CallerContext) (*Instance, error)

	// StopInstance gracefully stops the caller's instance and removes it
	// from the pool. Stopping an absent instance is a no-op success.
	StopInstance(ctx context.Context, def *api.ServerDefinition, caller *api.CallerContext) error

	// ListInstances returns the pool's instances matching the filter,
	// including dead entries not yet reclaimed. The result is a snapshot.
	ListInstances(filter *api.InstanceFilter) []*Instance

	// Cleanup evicts idle, over-age and dead instances in one pass and
	// returns how many were removed. Per-instance failures are collected,
	// not fatal.
	Cleanup(ctx context.Context) (int, error)

	// StopAll stops every instance in the pool; used during shutdown.
	StopAll(ctx context.Context) error
}

// Deps carries the collaborators a scoped manager needs. Events may be nil.
type Deps struct {
	Resolver *template.Resolver
	Recorder *metrics.Recorder
	Events   *events.Generator
	Factory  protocol.Factory
	Policy   api.CleanupPolicy
}

// NewGlobalManager returns the manager for shared single-instance servers.
func NewGlobalManager(d Deps) Manager { return newScopedManager(globalScope{}, d) }

// NewUserManager returns the manager for per-user servers.
func NewUserManager(d Deps) Manager { return newScopedManager(userScope{}, d) }

// NewSessionManager returns the manager for per-session servers.
func NewSessionManager(d Deps) Manager { return newScopedManager(sessionScope{}, d) }

type scopedManager struct {
	scope    scopeStrategy
	resolver *template.Resolver
	recorder *metrics.Recorder
	events   *events.Generator
	factory  protocol.Factory
	policy   api.CleanupPolicy

	mu   sync.Mutex
	pool map[string]*Instance

	inflight singleflight.Group
}

func newScopedManager(scope scopeStrategy, d Deps) *scopedManager {
	return &scopedManager{
		scope:    scope,
		resolver: d.Resolver,
		recorder: d.Recorder,
		events:   d.Events,
		factory:  d.Factory,
		policy:   d.Policy,
		pool:     make(map[string]*Instance),
	}
}

func (m *scopedManager) Mode() api.LifecycleMode {
	return m.scope.Mode()
}

// admit derives the identity key and applies the admission checks shared by
// lookups and creations.
func (m *scopedManager) admit(def *api.ServerDefinition, caller *api.CallerContext) (api.InstanceKey, error) {
	if def.Lifecycle != m.scope.Mode() {
		return api.InstanceKey{}, api.NewAdmissionError(def.Name, m.scope.Mode(),
			"server has lifecycle "+string(def.Lifecycle)+", not "+string(m.scope.Mode()))
	}
	if def.RequireAuth && (caller == nil || caller.UserID == "") {
		return api.InstanceKey{}, api.NewAdmissionError(def.Name, m.scope.Mode(), "authentication is required")
	}
	return m.scope.KeyFor(def, caller)
}

func (m *scopedManager) GetInstance(_ context.Context, def *api.ServerDefinition, caller *api.CallerContext) (*Instance, error) {
	key, err := m.admit(def, caller)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	inst := m.pool[key.String()]
	m.mu.Unlock()

	if inst == nil || inst.Status() != api.StatusRunning {
		return nil, nil
	}

	inst.touch()
	m.recorder.RecordAccess(inst.ID(), key.UserID)
	return inst, nil
}

func (m *scopedManager) CreateInstance(ctx context.Context, def *api.ServerDefinition, caller *api.CallerContext) (*Instance, error) {
	key, err := m.admit(def, caller)
	if err != nil {
		return nil, err
	}

	// Concurrent creations for the same identity collapse: losers receive
	// the winner's instance.
	v, err, _ := m.inflight.Do(key.String(), func() (interface{}, error) {
		return m.create(ctx, key, def, caller)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Instance), nil
}

func (m *scopedManager) create(ctx context.Context, key api.InstanceKey, def *api.ServerDefinition, caller *api.CallerContext) (*Instance, error) {
	poolKey := key.String()

	m.mu.Lock()
	// A stop may be mid-flight for this identity; wait until the stopper has
	// removed the entry, then treat the creation as fresh.
	for {
		prev := m.pool[poolKey]
		if prev == nil || prev.Status() != api.StatusStopping {
			break
		}
		m.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
		m.mu.Lock()
	}

	retryCount := 0
	restarted := false
	if prev := m.pool[poolKey]; prev != nil {
		switch prev.Status() {
		case api.StatusStarting, api.StatusRunning:
			m.mu.Unlock()
			prev.touch()
			return prev, nil
		case api.StatusStopped:
			// Explicitly stopped lineage starts fresh.
		default:
			// Crashed, error or timeout. The dead entry carries the retry
			// budget for this identity. A template-validation refusal is
			// deterministic config breakage rather than a crash: it neither
			// consumes the budget nor blocks a fresh attempt once the
			// definition is fixed.
			if def.AutoRestart && !api.IsTemplateValidationError(prev.LastError()) {
				if prev.RetryCount() >= def.MaxRetries {
					m.mu.Unlock()
					lastErr := prev.LastError()
					if lastErr == nil {
						lastErr = api.NewCrashError(def.Name, prev.ID(), nil)
					}
					return nil, lastErr
				}
				retryCount = prev.RetryCount() + 1
				restarted = true
			}
		}
		delete(m.pool, poolKey)
		m.recorder.Remove(prev.ID())
	}

	if def.Limits != nil && def.Limits.MaxInstances > 0 {
		live := 0
		for _, other := range m.pool {
			if other.ServerName() == def.Name && !other.Status().IsTerminal() {
				live++
			}
		}
		if live >= def.Limits.MaxInstances {
			m.mu.Unlock()
			return nil, api.NewAdmissionError(def.Name, m.scope.Mode(), "instance limit reached")
		}
	}

	inst := newInstance(uuid.NewString(), key, def, caller, retryCount)
	m.pool[poolKey] = inst
	m.mu.Unlock()

	m.events.Emit(events.ReasonInstanceCreated, events.EventData{
		ServerName: def.Name, InstanceID: inst.ID(), Mode: m.scope.Mode(),
	})
	if restarted {
		logging.Info("Instance", "Restarting %s after crash (attempt %d/%d)", poolKey, retryCount, def.MaxRetries)
		m.events.Emit(events.ReasonInstanceRestarted, events.EventData{
			ServerName: def.Name, InstanceID: inst.ID(), Mode: m.scope.Mode(),
		})
	}

	if err := m.spawn(ctx, inst, def, caller); err != nil {
		return nil, err
	}

	inst.touch()
	m.recorder.RecordAccess(inst.ID(), key.UserID)
	m.events.Emit(events.ReasonInstanceStarted, events.EventData{
		ServerName: def.Name, InstanceID: inst.ID(), Mode: m.scope.Mode(),
	})
	logging.Info("Instance", "Instance %s for %s is running (pid %d)", inst.ID(), poolKey, inst.PID())
	return inst, nil
}

// spawn resolves the definition's templates, starts the process and performs
// the protocol handshake. On failure the pool entry is left behind in a
// terminal status so the identity's retry budget survives until the next
// creation or sweep.
func (m *scopedManager) spawn(ctx context.Context, inst *Instance, def *api.ServerDefinition, caller *api.CallerContext) error {
	vars := template.CreateVariables(caller)
	resolved, validation := m.resolver.ValidateAndResolveConfig(def, vars)
	if !validation.Valid {
		err := api.NewTemplateValidationError(def.Name, validation.Errors)
		m.failSpawn(inst, api.StatusError, err)
		return err
	}
	for _, w := range validation.Warnings {
		logging.Warn("Instance", "Template warning for %s: %s", def.Name, w)
	}

	proc, err := startProcess(resolved, def.RunAs)
	if err != nil {
		spawnErr := api.NewSpawnError(def.Name, err)
		m.failSpawn(inst, api.StatusError, spawnErr)
		return spawnErr
	}

	inst.mu.Lock()
	inst.proc = proc
	inst.mu.Unlock()

	go m.watchExit(inst, proc)

	startupTimeout := def.Limits.StartupTimeout()
	connectCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	client, err := m.factory.Connect(connectCtx, proc.stdin, proc.stdout, proc.stderr)
	if err != nil {
		proc.kill()
		if connectCtx.Err() != nil {
			timeoutErr := api.NewTimeoutError(def.Name, inst.ID(), startupTimeout.String())
			m.failSpawn(inst, api.StatusTimeout, timeoutErr)
			return timeoutErr
		}
		spawnErr := api.NewSpawnError(def.Name, err)
		m.failSpawn(inst, api.StatusError, spawnErr)
		return spawnErr
	}

	if !inst.trySetRunning(client) {
		// The process died between handshake completion and promotion.
		_ = client.Close()
		crashErr := inst.LastError()
		if crashErr == nil {
			crashErr = api.NewCrashError(def.Name, inst.ID(), proc.waitError())
		}
		m.events.Emit(events.ReasonInstanceCrashed, events.EventData{
			ServerName: def.Name, InstanceID: inst.ID(), Mode: m.scope.Mode(), Error: crashErr.Error(),
		})
		return crashErr
	}
	return nil
}

// failSpawn marks a failed creation. The entry stays pooled as a terminal
// tombstone; only lookups skip it.
func (m *scopedManager) failSpawn(inst *Instance, status api.InstanceStatus, err error) {
	inst.setStatus(status, err)
	reason := events.ReasonInstanceFailed
	if status == api.StatusTimeout {
		reason = events.ReasonInstanceTimeout
	}
	m.events.Emit(reason, events.EventData{
		ServerName: inst.ServerName(), InstanceID: inst.ID(), Mode: m.scope.Mode(), Error: err.Error(),
	})
	logging.Error("Instance", err, "Failed to start instance for %s", inst.Key().String())
}

// watchExit reaps the instance when its process exits unexpectedly. Exits
// during starting are surfaced by the creation path, exits during stopping
// are the stopper's doing. The crashed entry stays pooled: the next creation
// for the identity decides whether to restart it, the sweeper reclaims it
// otherwise.
func (m *scopedManager) watchExit(inst *Instance, proc *process) {
	<-proc.done
	if !inst.markCrashedIfRunning(proc.waitError()) {
		return
	}

	logging.Warn("Instance", "Instance %s for %s exited unexpectedly: %v", inst.ID(), inst.Key().String(), proc.waitError())
	m.events.Emit(events.ReasonInstanceCrashed, events.EventData{
		ServerName: inst.ServerName(), InstanceID: inst.ID(), Mode: m.scope.Mode(),
		Error: inst.LastError().Error(),
	})

	if c := inst.Client(); c != nil {
		_ = c.Close()
	}
}

func (m *scopedManager) StopInstance(ctx context.Context, def *api.ServerDefinition, caller *api.CallerContext) error {
	key, err := m.admit(def, caller)
	if err != nil {
		return err
	}

	m.mu.Lock()
	inst := m.pool[key.String()]
	m.mu.Unlock()
	if inst == nil {
		return nil
	}
	return m.stopEntry(ctx, inst)
}

// stopEntry takes one instance out of the pool. Dead entries are reclaimed
// directly; live ones get a graceful termination bounded by the forced-kill
// grace. A creation still in flight is waited out first, so a stop racing a
// create settles the handshake and then tears the instance down. Safe to
// call concurrently for the same instance.
func (m *scopedManager) stopEntry(ctx context.Context, inst *Instance) error {
	poolKey := inst.Key().String()

	m.mu.Lock()
	for m.pool[poolKey] == inst && inst.Status() == api.StatusStarting {
		m.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
		m.mu.Lock()
	}
	if m.pool[poolKey] != inst {
		m.mu.Unlock()
		return nil
	}
	switch inst.Status() {
	case api.StatusStopping:
		// Another stopper owns the teardown.
		m.mu.Unlock()
		return nil
	case api.StatusRunning:
		inst.setStatus(api.StatusStopping, nil)
		m.mu.Unlock()
	default:
		// Already dead; just reclaim the entry.
		delete(m.pool, poolKey)
		m.mu.Unlock()
		m.recorder.Remove(inst.ID())
		return nil
	}

	if c := inst.Client(); c != nil {
		if err := c.Close(); err != nil {
			logging.Debug("Instance", "Error closing client for %s: %v", inst.ID(), err)
		}
	}

	inst.mu.RLock()
	proc := inst.proc
	inst.mu.RUnlock()
	if proc != nil {
		proc.terminate(m.policy.ForcedKillGrace())
	}

	inst.setStatus(api.StatusStopped, nil)

	m.mu.Lock()
	if m.pool[poolKey] == inst {
		delete(m.pool, poolKey)
	}
	m.mu.Unlock()
	m.recorder.Remove(inst.ID())

	m.events.Emit(events.ReasonInstanceStopped, events.EventData{
		ServerName: inst.ServerName(), InstanceID: inst.ID(), Mode: m.scope.Mode(),
	})
	logging.Info("Instance", "Stopped instance %s for %s", inst.ID(), poolKey)
	return nil
}

func (m *scopedManager) ListInstances(filter *api.InstanceFilter) []*Instance {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Instance, 0, len(m.pool))
	for _, inst := range m.pool {
		if filter.Matches(inst.Key()) {
			out = append(out, inst)
		}
	}
	return out
}

func (m *scopedManager) Cleanup(ctx context.Context) (int, error) {
	m.mu.Lock()
	snapshot := make([]*Instance, 0, len(m.pool))
	for _, inst := range m.pool {
		snapshot = append(snapshot, inst)
	}
	m.mu.Unlock()

	now := time.Now()
	removed := 0
	var errs []error

	for _, inst := range snapshot {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}

		status := inst.Status()
		evict := false
		switch {
		case status.IsTerminal():
			// Dead entry left behind by a crash or failed spawn.
			evict = true
		case status != api.StatusRunning:
			// Starting or stopping; owned by someone else right now.
			continue
		case inst.idleFor(now) > m.policy.IdleTimeout():
			logging.Debug("Instance", "Evicting idle instance %s (idle %s)", inst.ID(), inst.idleFor(now).Round(time.Second))
			evict = true
		case inst.age(now) > m.policy.MaxAge():
			logging.Debug("Instance", "Evicting over-age instance %s (age %s)", inst.ID(), inst.age(now).Round(time.Second))
			evict = true
		}
		if !evict {
			continue
		}

		if err := m.stopEntry(ctx, inst); err != nil {
			errs = append(errs, api.NewCleanupError(inst.ID(), err))
			logging.Error("Instance", err, "Cleanup failed for instance %s", inst.ID())
			continue
		}
		removed++
	}

	return removed, errors.Join(errs...)
}

func (m *scopedManager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	snapshot := make([]*Instance, 0, len(m.pool))
	for _, inst := range m.pool {
		snapshot = append(snapshot, inst)
	}
	m.mu.Unlock()

	var errs []error
	for _, inst := range snapshot {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if err := m.stopEntry(ctx, inst); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
