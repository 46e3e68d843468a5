package instance

import (
	"sync"
	"time"

	"mcpbridge/internal/api"
	"mcpbridge/internal/protocol"
)

// Instance is one live (or recently dead) backend process together with its
// protocol handshake state, rolling metrics and status. The scoped manager
// that created an instance is its sole owner: only that manager mutates
// status or terminates the process. Everything exported here is read-only.
type Instance struct {
	mu sync.RWMutex

	id     string
	key    api.InstanceKey
	def    *api.ServerDefinition
	caller *api.CallerContext

	proc   *process
	client protocol.Client

	createdAt    time.Time
	lastAccessed time.Time
	status       api.InstanceStatus
	lastErr      error
	retryCount   int

	stats Stats
}

// Stats are the rolling per-instance request metrics.
type Stats struct {
	RequestCount    int64
	ErrorCount      int64
	LastRequestTime time.Time
	AvgResponseTime time.Duration

	// totalResponse backs the running average.
	totalResponse time.Duration
}

func newInstance(id string, key api.InstanceKey, def *api.ServerDefinition, caller *api.CallerContext, retryCount int) *Instance {
	now := time.Now()
	return &Instance{
		id:           id,
		key:          key,
		def:          def,
		caller:       caller,
		createdAt:    now,
		lastAccessed: now,
		status:       api.StatusStarting,
		retryCount:   retryCount,
	}
}

// ID returns the generated instance id.
func (i *Instance) ID() string { return i.id }

// Key returns the identity under which the instance is pooled.
func (i *Instance) Key() api.InstanceKey { return i.key }

// ServerName returns the backing server definition's name.
func (i *Instance) ServerName() string { return i.key.ServerName }

// Definition returns the resolved server definition the instance was
// created from.
func (i *Instance) Definition() *api.ServerDefinition { return i.def }

// Caller returns the caller context used to create the instance.
func (i *Instance) Caller() *api.CallerContext { return i.caller }

// Status returns the current lifecycle status.
func (i *Instance) Status() api.InstanceStatus {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.status
}

// LastError returns the error attached to the instance, if any.
func (i *Instance) LastError() error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.lastErr
}

// CreatedAt returns the creation time.
func (i *Instance) CreatedAt() time.Time { return i.createdAt }

// LastAccessed returns the time of the last successful lookup.
func (i *Instance) LastAccessed() time.Time {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.lastAccessed
}

// RetryCount returns how many times this identity has been auto-restarted.
func (i *Instance) RetryCount() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.retryCount
}

// Client returns the protocol client handle, nil until the handshake
// completed.
func (i *Instance) Client() protocol.Client {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.client
}

// PID returns the OS process id, or 0 when no process was spawned.
func (i *Instance) PID() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.proc == nil {
		return 0
	}
	return i.proc.pid()
}

// Stats returns a copy of the rolling request metrics.
func (i *Instance) Stats() Stats {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.stats
}

// RecordRequest folds one routed tool call into the rolling metrics.
func (i *Instance) RecordRequest(duration time.Duration, failed bool) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.stats.RequestCount++
	if failed {
		i.stats.ErrorCount++
	}
	i.stats.LastRequestTime = time.Now()
	i.stats.totalResponse += duration
	i.stats.AvgResponseTime = i.stats.totalResponse / time.Duration(i.stats.RequestCount)
}

// touch updates lastAccessed; called by the owning manager on every
// successful lookup.
func (i *Instance) touch() {
	i.mu.Lock()
	i.lastAccessed = time.Now()
	i.mu.Unlock()
}

// setStatus moves the instance to a new status, attaching err when non-nil.
func (i *Instance) setStatus(status api.InstanceStatus, err error) {
	i.mu.Lock()
	i.status = status
	if err != nil {
		i.lastErr = err
	}
	i.mu.Unlock()
}

// trySetRunning promotes starting to running, unless the process already
// exited underneath us, in which case the instance is marked crashed and
// false is returned. Serializing the check and the transition under the
// instance lock closes the race between handshake completion and an
// immediate process exit.
func (i *Instance) trySetRunning(client protocol.Client) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.status != api.StatusStarting {
		return false
	}
	if i.proc != nil && i.proc.exited() {
		i.status = api.StatusCrashed
		i.lastErr = api.NewCrashError(i.key.ServerName, i.id, i.proc.waitError())
		return false
	}
	i.status = api.StatusRunning
	i.client = client
	return true
}

// markCrashedIfRunning is called by the exit watcher when the process exits.
// Only a running instance becomes crashed here; exits during starting are
// surfaced by the creation path, exits during stopping are expected.
func (i *Instance) markCrashedIfRunning(waitErr error) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.status != api.StatusRunning {
		return false
	}
	i.status = api.StatusCrashed
	i.lastErr = api.NewCrashError(i.key.ServerName, i.id, waitErr)
	return true
}

// idleFor returns how long the instance has gone without a lookup.
func (i *Instance) idleFor(now time.Time) time.Duration {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return now.Sub(i.lastAccessed)
}

// age returns the instance's absolute age.
func (i *Instance) age(now time.Time) time.Duration {
	return now.Sub(i.createdAt)
}
