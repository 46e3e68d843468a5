package api

import (
	"errors"
	"fmt"
	"strings"
)

// AdmissionError reports a request that was refused before any process was
// spawned: the caller context is missing identity fields required by the
// lifecycle mode, or the pool is at its configured instance ceiling.
// Admission errors are surfaced to the immediate caller and never retried
// automatically.
type AdmissionError struct {
	// ServerName is the definition the request targeted.
	ServerName string

	// Mode is the lifecycle mode the admission check ran under.
	Mode LifecycleMode

	// Reason describes the refusal, e.g. "user id required" or
	// "instance limit reached".
	Reason string
}

func (e *AdmissionError) Error() string {
	return fmt.Sprintf("admission refused for %s (%s): %s", e.ServerName, e.Mode, e.Reason)
}

// NewAdmissionError creates an AdmissionError for the given server and mode.
func NewAdmissionError(serverName string, mode LifecycleMode, reason string) *AdmissionError {
	return &AdmissionError{ServerName: serverName, Mode: mode, Reason: reason}
}

// IsAdmissionError checks whether err is or wraps an AdmissionError.
func IsAdmissionError(err error) bool {
	var target *AdmissionError
	return errors.As(err, &target)
}

// TemplateValidationError reports that a resolved path, command or argument
// failed security validation. The creation attempt is abandoned entirely;
// nothing is partially applied.
type TemplateValidationError struct {
	// ServerName is the definition whose templates failed validation.
	ServerName string

	// Violations lists the specific rules that were violated.
	Violations []string
}

func (e *TemplateValidationError) Error() string {
	return fmt.Sprintf("template validation failed for %s: %s",
		e.ServerName, strings.Join(e.Violations, "; "))
}

// NewTemplateValidationError creates a TemplateValidationError.
func NewTemplateValidationError(serverName string, violations []string) *TemplateValidationError {
	return &TemplateValidationError{ServerName: serverName, Violations: violations}
}

// IsTemplateValidationError checks whether err is or wraps a
// TemplateValidationError.
func IsTemplateValidationError(err error) bool {
	var target *TemplateValidationError
	return errors.As(err, &target)
}

// SpawnError reports that a backend process failed to start: binary not
// found, exec failure, privilege drop failure, or a failed protocol
// handshake. Retried only when the definition's autoRestart and retry budget
// allow it.
type SpawnError struct {
	ServerName string
	Err        error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn %s: %v", e.ServerName, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// NewSpawnError creates a SpawnError wrapping the underlying cause.
func NewSpawnError(serverName string, err error) *SpawnError {
	return &SpawnError{ServerName: serverName, Err: err}
}

// IsSpawnError checks whether err is or wraps a SpawnError.
func IsSpawnError(err error) bool {
	var target *SpawnError
	return errors.As(err, &target)
}

// CrashError reports that a process exited unexpectedly after reaching the
// running state. It is reflected in instance state asynchronously, never
// thrown into unrelated call stacks.
type CrashError struct {
	ServerName string
	InstanceID string
	Err        error
}

func (e *CrashError) Error() string {
	return fmt.Sprintf("instance %s of %s crashed: %v", e.InstanceID, e.ServerName, e.Err)
}

func (e *CrashError) Unwrap() error { return e.Err }

// NewCrashError creates a CrashError for an unexpectedly exited instance.
func NewCrashError(serverName, instanceID string, err error) *CrashError {
	return &CrashError{ServerName: serverName, InstanceID: instanceID, Err: err}
}

// IsCrashError checks whether err is or wraps a CrashError.
func IsCrashError(err error) bool {
	var target *CrashError
	return errors.As(err, &target)
}

// TimeoutError reports that an instance did not reach running within its
// startup deadline. The process is killed and the instance marked timeout.
type TimeoutError struct {
	ServerName string
	InstanceID string
	Timeout    string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("instance %s of %s did not start within %s", e.InstanceID, e.ServerName, e.Timeout)
}

// NewTimeoutError creates a TimeoutError.
func NewTimeoutError(serverName, instanceID, timeout string) *TimeoutError {
	return &TimeoutError{ServerName: serverName, InstanceID: instanceID, Timeout: timeout}
}

// IsTimeoutError checks whether err is or wraps a TimeoutError.
func IsTimeoutError(err error) bool {
	var target *TimeoutError
	return errors.As(err, &target)
}

// CleanupError reports that a sweep failed to stop one instance. It is
// logged, contributes zero to that tick's removed count, and never aborts the
// sweep for other instances or managers.
type CleanupError struct {
	InstanceID string
	Err        error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("cleanup of instance %s failed: %v", e.InstanceID, e.Err)
}

func (e *CleanupError) Unwrap() error { return e.Err }

// NewCleanupError creates a CleanupError.
func NewCleanupError(instanceID string, err error) *CleanupError {
	return &CleanupError{InstanceID: instanceID, Err: err}
}

// IsCleanupError checks whether err is or wraps a CleanupError.
func IsCleanupError(err error) bool {
	var target *CleanupError
	return errors.As(err, &target)
}

// NotFoundError reports a missing resource, following the convention of one
// error type shared by every lookup surface.
type NotFoundError struct {
	ResourceType string
	ResourceName string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.ResourceType, e.ResourceName)
}

// NewNotFoundError creates a NotFoundError for the given resource.
func NewNotFoundError(resourceType, resourceName string) *NotFoundError {
	return &NotFoundError{ResourceType: resourceType, ResourceName: resourceName}
}

// IsNotFound checks whether err is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// NewServerNotFoundError creates a not found error for a server definition.
func NewServerNotFoundError(name string) *NotFoundError {
	return NewNotFoundError("server", name)
}
