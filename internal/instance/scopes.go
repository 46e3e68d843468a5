package instance

import (
	"mcpbridge/internal/api"
)

// scopeStrategy decides what identity an instance is pooled under and which
// caller fields the mode demands. Each lifecycle mode has exactly one
// strategy; everything else about instance management is shared.
type scopeStrategy interface {
	Mode() api.LifecycleMode

	// KeyFor derives the pool identity for a request, or an AdmissionError
	// when the caller lacks a field the mode requires.
	KeyFor(def *api.ServerDefinition, caller *api.CallerContext) (api.InstanceKey, error)
}

type globalScope struct{}

func (globalScope) Mode() api.LifecycleMode { return api.LifecycleGlobal }

func (globalScope) KeyFor(def *api.ServerDefinition, _ *api.CallerContext) (api.InstanceKey, error) {
	return api.InstanceKey{
		ServerName: def.Name,
		Mode:       api.LifecycleGlobal,
	}, nil
}

type userScope struct{}

func (userScope) Mode() api.LifecycleMode { return api.LifecycleUser }

func (userScope) KeyFor(def *api.ServerDefinition, caller *api.CallerContext) (api.InstanceKey, error) {
	if caller == nil || caller.UserID == "" {
		return api.InstanceKey{}, api.NewAdmissionError(def.Name, api.LifecycleUser, "user identity is required for per-user instances")
	}
	return api.InstanceKey{
		ServerName: def.Name,
		Mode:       api.LifecycleUser,
		UserID:     caller.UserID,
	}, nil
}

type sessionScope struct{}

func (sessionScope) Mode() api.LifecycleMode { return api.LifecycleSession }

func (sessionScope) KeyFor(def *api.ServerDefinition, caller *api.CallerContext) (api.InstanceKey, error) {
	if caller == nil || caller.UserID == "" {
		return api.InstanceKey{}, api.NewAdmissionError(def.Name, api.LifecycleSession, "user identity is required for per-session instances")
	}
	if caller.SessionID == "" {
		return api.InstanceKey{}, api.NewAdmissionError(def.Name, api.LifecycleSession, "session id is required for per-session instances")
	}
	return api.InstanceKey{
		ServerName: def.Name,
		Mode:       api.LifecycleSession,
		UserID:     caller.UserID,
		SessionID:  caller.SessionID,
	}, nil
}
