package core

import (
	"fmt"
	"time"
)

var (
	// ErrKeyNotFound is returned by StorageProvider implementations when the
	// requested key does not exist.
	ErrKeyNotFound = fmt.Errorf("key not found")

	// ErrMessageNotFound is returned when the bus has no message for the
	// given id.
	ErrMessageNotFound = fmt.Errorf("message not found")
)

// RegistrationError reports a registry misuse: a category mismatch, a
// duplicate registration or an unknown node type. These indicate
// configuration mistakes and are surfaced to the caller unmodified.
type RegistrationError struct {
	NodeType string
	Reason   string
}

// Error implements the error interface.
func (e *RegistrationError) Error() string {
	return fmt.Sprintf("registration failed for node type %q: %s", e.NodeType, e.Reason)
}

// VersionIncompatibilityError reports a node version that cannot satisfy the
// requested version under the registry's compatibility rule.
type VersionIncompatibilityError struct {
	NodeType   string
	Requested  string
	Registered string
}

// Error implements the error interface.
func (e *VersionIncompatibilityError) Error() string {
	return fmt.Sprintf("node type %q version %s is incompatible with requested %s", e.NodeType, e.Registered, e.Requested)
}

// ValidationError reports bad node input/output, an invalid connection or a
// malformed flow. Kind names the offending entity class ("flow", "node",
// "edge", "handle", "input", "output", "mapping", "config") and ID names the
// concrete entity so callers can pinpoint the violation.
type ValidationError struct {
	Kind   string
	ID     string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("validation failed for %s %q: %s", e.Kind, e.ID, e.Reason)
}

// HandlerNotFoundError reports that no bus subscriber exists for a message
// type at processing time.
type HandlerNotFoundError struct {
	MessageType string
}

// Error implements the error interface.
func (e *HandlerNotFoundError) Error() string {
	return fmt.Sprintf("no handlers registered for message type %q", e.MessageType)
}

// RetryExhaustedError reports that a bus handler or node execution consumed
// every allowed attempt. Err holds the last attempt's failure.
type RetryExhaustedError struct {
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

// Unwrap returns the final attempt's error.
func (e *RetryExhaustedError) Unwrap() error { return e.Err }

// AgentStateError reports an illegal lifecycle transition. The agent's state
// is left unchanged.
type AgentStateError struct {
	Op    string
	State AgentState
}

// Error implements the error interface.
func (e *AgentStateError) Error() string {
	return fmt.Sprintf("cannot %s agent in state %q", e.Op, e.State)
}

// ExecutionTimeoutError reports that a node execution exceeded its deadline.
// The execution's context is cancelled so cooperative nodes abort their work.
type ExecutionTimeoutError struct {
	NodeID  string
	Timeout time.Duration
}

// Error implements the error interface.
func (e *ExecutionTimeoutError) Error() string {
	return fmt.Sprintf("execution of node %q timed out after %s", e.NodeID, e.Timeout)
}
