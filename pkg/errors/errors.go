package errors

import (
	"errors"
	"fmt"
)

// Input errors: returned locally, no side effects.
var (
	ErrInvalidTarget         = errors.New("invalid target")
	ErrIntentSchemaViolation = errors.New("intent schema violation")
	ErrUnknownIntent         = errors.New("unknown intent")
)

// Policy errors.
var (
	ErrPolicyDenied         = errors.New("denied by execution policy")
	ErrConfirmationRequired = errors.New("confirmation required")
)

// Execution errors. A spawned invocation that ends with one of these is
// recorded in execution history and surfaced on the event stream as
// ToolError. ErrAuthorizationDenied from a restricted-mode refusal is
// returned to the caller before anything is spawned or recorded.
var (
	ErrAuthorizationDenied = errors.New("authorization denied")
	ErrToolNotFound        = errors.New("tool not found")
	ErrTimedOut            = errors.New("execution timed out")
	ErrCrashed             = errors.New("process crashed")
	ErrCancelled           = errors.New("execution cancelled")
)

// Store errors. Failed store operations are retried once, then surface
// as ErrStoreIO; invalid ids and constraint violations are returned
// without a retry.
var (
	ErrInvalidID           = errors.New("invalid entity id")
	ErrConstraintViolation = errors.New("constraint violation")
	ErrStoreIO             = errors.New("store io error")
)

// External collaborator errors.
var (
	ErrLlmUnavailable     = errors.New("llm unavailable")
	ErrRuntimeProbeFailed = errors.New("runtime probe failed")
)

// CommandBuildError describes a rejected command synthesis: bad
// template, shell metacharacters, or length limits.
type CommandBuildError struct {
	Reason string
}

func (e *CommandBuildError) Error() string {
	return fmt.Sprintf("command build rejected: %s", e.Reason)
}

func NewCommandBuildError(format string, args ...interface{}) *CommandBuildError {
	return &CommandBuildError{Reason: fmt.Sprintf(format, args...)}
}

// PolicyError carries the gate's reason alongside the sentinel so
// callers can both match with errors.Is and show the reason.
type PolicyError struct {
	Sentinel error
	Reason   string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("%v: %s", e.Sentinel, e.Reason)
}

func (e *PolicyError) Unwrap() error {
	return e.Sentinel
}

func NewPolicyDenied(reason string) *PolicyError {
	return &PolicyError{Sentinel: ErrPolicyDenied, Reason: reason}
}

func NewConfirmationRequired(reason string) *PolicyError {
	return &PolicyError{Sentinel: ErrConfirmationRequired, Reason: reason}
}

// NonZeroExitError covers every exit code outside the mapped set.
type NonZeroExitError struct {
	Code int
}

func (e *NonZeroExitError) Error() string {
	return fmt.Sprintf("process exited with code %d", e.Code)
}

// ToolError wraps a failure with the tool that produced it.
type ToolError struct {
	ToolID string
	Err    error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.ToolID, e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

func NewToolError(toolID string, err error) *ToolError {
	return &ToolError{ToolID: toolID, Err: err}
}
