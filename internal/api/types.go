package api

import (
	"fmt"
	"time"
)

// LifecycleMode is the scope at which a backend instance is shared.
type LifecycleMode string

const (
	// LifecycleGlobal shares one instance per server name system-wide.
	LifecycleGlobal LifecycleMode = "global"

	// LifecycleUser shares one instance per (server, user) pair.
	LifecycleUser LifecycleMode = "user"

	// LifecycleSession shares one instance per (server, user, session) triple.
	LifecycleSession LifecycleMode = "session"
)

// IsValid reports whether the mode is one of the three supported scopes.
func (m LifecycleMode) IsValid() bool {
	switch m {
	case LifecycleGlobal, LifecycleUser, LifecycleSession:
		return true
	}
	return false
}

// RequiresUser reports whether identity derivation needs a user id.
func (m LifecycleMode) RequiresUser() bool {
	return m == LifecycleUser || m == LifecycleSession
}

// RequiresSession reports whether identity derivation needs a session id.
func (m LifecycleMode) RequiresSession() bool {
	return m == LifecycleSession
}

// InstanceStatus tracks an instance through its state machine.
//
// The happy path is starting -> running -> stopping -> stopped.
// starting may transition to error (spawn/handshake failure) or timeout
// (startup deadline exceeded); running may transition to crashed (unexpected
// process exit) or timeout. error, crashed, timeout and stopped are terminal:
// recovery is always a new instance, never a resurrection.
type InstanceStatus string

const (
	StatusStarting InstanceStatus = "starting"
	StatusRunning  InstanceStatus = "running"
	StatusStopping InstanceStatus = "stopping"
	StatusStopped  InstanceStatus = "stopped"
	StatusError    InstanceStatus = "error"
	StatusCrashed  InstanceStatus = "crashed"
	StatusTimeout  InstanceStatus = "timeout"
)

// IsTerminal reports whether the status ends the instance's life.
func (s InstanceStatus) IsTerminal() bool {
	switch s {
	case StatusStopped, StatusError, StatusCrashed, StatusTimeout:
		return true
	}
	return false
}

// ResourceLimits holds optional per-server ceilings. MaxInstances is enforced
// as admission control; memory and CPU limits are advisory inputs to the
// metrics recorder, not OS-enforced.
type ResourceLimits struct {
	// MaxMemoryMB is the advisory memory ceiling in megabytes.
	MaxMemoryMB int `yaml:"maxMemoryMB,omitempty"`

	// MaxCPUPercent is the advisory CPU ceiling as a percentage.
	MaxCPUPercent int `yaml:"maxCPUPercent,omitempty"`

	// StartupTimeoutMinutes bounds the time an instance may spend in the
	// starting state before being killed and marked timeout. 0 uses the
	// default.
	StartupTimeoutMinutes int `yaml:"startupTimeoutMinutes,omitempty"`

	// MaxInstances caps the number of live instances a single scoped manager
	// will admit for this server. 0 means unlimited.
	MaxInstances int `yaml:"maxInstances,omitempty"`
}

// DefaultStartupTimeout is applied when a definition does not set one.
const DefaultStartupTimeout = 30 * time.Second

// StartupTimeout returns the effective startup deadline.
func (r *ResourceLimits) StartupTimeout() time.Duration {
	if r == nil || r.StartupTimeoutMinutes <= 0 {
		return DefaultStartupTimeout
	}
	return time.Duration(r.StartupTimeoutMinutes) * time.Minute
}

// ProcessUser is an optional POSIX identity a spawned process drops to.
type ProcessUser struct {
	UID uint32 `yaml:"uid"`
	GID uint32 `yaml:"gid"`
}

// ServerDefinition is an admin-authored description of a backend MCP
// tool-server. Definitions are immutable per configuration load; this
// subsystem only reads them.
type ServerDefinition struct {
	// Name is the logical server name, unique across all definitions.
	Name string `yaml:"name"`

	// Command is the launch command. May contain {variable} placeholders.
	Command string `yaml:"command"`

	// Args are the launch arguments. May contain {variable} placeholders.
	Args []string `yaml:"args,omitempty"`

	// Lifecycle selects the sharing scope: global, user or session.
	Lifecycle LifecycleMode `yaml:"lifecycle"`

	// RequireAuth marks the server as usable only by authenticated callers.
	RequireAuth bool `yaml:"requireAuth,omitempty"`

	// Env maps environment variable names to value templates.
	Env map[string]string `yaml:"env,omitempty"`

	// WorkingDir is the working directory template for the process.
	WorkingDir string `yaml:"workingDir,omitempty"`

	// PathTemplates are extra named path templates resolved and validated
	// alongside the command and working directory.
	PathTemplates map[string]string `yaml:"pathTemplates,omitempty"`

	// Limits are the optional resource ceilings for this server.
	Limits *ResourceLimits `yaml:"limits,omitempty"`

	// RunAs, when set, makes the spawned process drop to this uid/gid before
	// exec. A failure to apply it aborts the spawn.
	RunAs *ProcessUser `yaml:"runAs,omitempty"`

	// AutoRestart re-creates a crashed instance under the same identity while
	// the retry budget lasts.
	AutoRestart bool `yaml:"autoRestart,omitempty"`

	// MaxRetries is the auto-restart budget. 0 means no retries.
	MaxRetries int `yaml:"maxRetries,omitempty"`
}

// CallerContext carries the already-authenticated identity of one inbound
// call. It is created fresh per call and never persisted. This subsystem does
// not authenticate; it only reads the fields needed for keying and templating.
type CallerContext struct {
	Lifecycle LifecycleMode

	UserID    string
	UserEmail string
	SessionID string

	// Claims is the opaque authenticated-identity payload, if any.
	Claims map[string]interface{}

	// Permissions are the caller's granted permissions, if any.
	Permissions []string

	RequestID string
	Timestamp time.Time
}

// InstanceKey is the derived identity under which live instances are
// deduplicated. Two live instances never share a key. The populated fields
// depend on the lifecycle mode: global keys carry only the server name, user
// keys add UserID, session keys add both UserID and SessionID.
type InstanceKey struct {
	ServerName string
	Mode       LifecycleMode
	UserID     string
	SessionID  string
}

// String renders the key in a stable form usable as a map key and a
// singleflight dedup key.
func (k InstanceKey) String() string {
	switch k.Mode {
	case LifecycleUser:
		return fmt.Sprintf("%s/%s/user=%s", k.Mode, k.ServerName, k.UserID)
	case LifecycleSession:
		return fmt.Sprintf("%s/%s/user=%s/session=%s", k.Mode, k.ServerName, k.UserID, k.SessionID)
	default:
		return fmt.Sprintf("%s/%s", k.Mode, k.ServerName)
	}
}

// InstanceFilter narrows ListInstances results. Empty fields match anything.
type InstanceFilter struct {
	ServerName string
	UserID     string
	SessionID  string
}

// Matches reports whether a key satisfies every set filter field.
func (f *InstanceFilter) Matches(key InstanceKey) bool {
	if f == nil {
		return true
	}
	if f.ServerName != "" && f.ServerName != key.ServerName {
		return false
	}
	if f.UserID != "" && f.UserID != key.UserID {
		return false
	}
	if f.SessionID != "" && f.SessionID != key.SessionID {
		return false
	}
	return true
}

// CleanupPolicy controls background reclamation of idle or expired instances.
type CleanupPolicy struct {
	// IdleTimeoutMinutes evicts instances unused for longer than this.
	IdleTimeoutMinutes int `yaml:"idleTimeoutMinutes"`

	// MaxAgeMinutes is the absolute lifetime cap regardless of use.
	MaxAgeMinutes int `yaml:"maxAgeMinutes"`

	// CleanupIntervalMinutes is the sweep frequency.
	CleanupIntervalMinutes int `yaml:"cleanupIntervalMinutes"`

	// ForcedKillGraceSeconds is how long a stopping instance may take to
	// terminate gracefully before it is killed unconditionally.
	ForcedKillGraceSeconds int `yaml:"forcedKillGraceSeconds"`
}

// DefaultCleanupPolicy returns the policy applied when configuration does not
// override it: 30m idle, 24h max age, 10m sweeps, 30s kill grace.
func DefaultCleanupPolicy() CleanupPolicy {
	return CleanupPolicy{
		IdleTimeoutMinutes:     30,
		MaxAgeMinutes:          24 * 60,
		CleanupIntervalMinutes: 10,
		ForcedKillGraceSeconds: 30,
	}
}

// IdleTimeout returns the idle eviction threshold as a duration.
func (p CleanupPolicy) IdleTimeout() time.Duration {
	return time.Duration(p.IdleTimeoutMinutes) * time.Minute
}

// MaxAge returns the absolute lifetime cap as a duration.
func (p CleanupPolicy) MaxAge() time.Duration {
	return time.Duration(p.MaxAgeMinutes) * time.Minute
}

// CleanupInterval returns the sweep frequency as a duration.
func (p CleanupPolicy) CleanupInterval() time.Duration {
	return time.Duration(p.CleanupIntervalMinutes) * time.Minute
}

// ForcedKillGrace returns the graceful-termination window as a duration.
func (p CleanupPolicy) ForcedKillGrace() time.Duration {
	return time.Duration(p.ForcedKillGraceSeconds) * time.Second
}

// AggregatedMetrics summarizes all tracked instances for monitoring.
type AggregatedMetrics struct {
	TotalInstances     int
	TotalAccessSamples int
	DistinctUsers      int
	AvgMemoryMB        float64
	AvgCPUPercent      float64
}
