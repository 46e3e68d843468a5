// Package api holds the shared data model and error taxonomy of the
// mcpbridge instance lifecycle subsystem.
//
// Every other internal package depends on this one and this one depends on
// nothing internal, which keeps the type definitions free of import cycles:
// server definitions and caller contexts flow in from configuration and
// authentication (both external collaborators), identity keys and typed
// errors flow out to the scoped managers and the coordinator.
//
// The error types here form the classification surface promised to callers:
// a failed creation is always one of AdmissionError, TemplateValidationError,
// SpawnError or TimeoutError, checkable with errors.As or the IsXxx helpers,
// so the calling layer can map each to a specific response instead of
// handling a generic failure.
package api
