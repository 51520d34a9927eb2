// Package swarm implements the agent swarm task scheduler: the registry,
// the priority queue, the dispatcher, and the heartbeat/timeout monitor.
package swarm

import "fmt"

// ErrorCode is the closed taxonomy of scheduler errors. Callers map these
// to their own presentation; nothing here is fatal to the process.
type ErrorCode string

const (
	// ErrCodeNotFound covers unknown task, agent, trigger, or run IDs.
	ErrCodeNotFound ErrorCode = "not_found"

	// ErrCodeInvalidRequest covers malformed operations and illegal state
	// transition attempts. The request is rejected with no state mutation.
	ErrCodeInvalidRequest ErrorCode = "invalid_control_request"

	// ErrCodeAgentUnavailable means no agent advertises the requested task
	// type at all, so the task could never dispatch.
	ErrCodeAgentUnavailable ErrorCode = "agent_unavailable"

	// ErrCodeAgentExecution means an agent returned a failure for a task.
	ErrCodeAgentExecution ErrorCode = "agent_execution_failure"

	// ErrCodeHeartbeatTimeout means an agent stopped reporting liveness.
	ErrCodeHeartbeatTimeout ErrorCode = "heartbeat_timeout"

	// ErrCodeTaskTimeout means a task exceeded its execution budget.
	ErrCodeTaskTimeout ErrorCode = "task_timeout"

	// ErrCodeTriggerMisconfigured means a trigger failed validation at
	// registration and was never activated.
	ErrCodeTriggerMisconfigured ErrorCode = "trigger_misconfigured"

	// ErrCodeShuttingDown means the scheduler loop is no longer accepting
	// operations.
	ErrCodeShuttingDown ErrorCode = "shutting_down"
)

// Error is a structured scheduler error: a stable code plus a message.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Errorf builds a structured error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the error code, or empty for foreign errors.
func CodeOf(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}
