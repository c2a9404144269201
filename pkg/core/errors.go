// Package core provides the turn orchestrator, session pool, and supporting
// agents of the companion engine.
package core

import (
	"errors"
	"fmt"
)

// Predefined errors for common failure scenarios.
var (
	// ErrInvalidConfig indicates that the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidInput indicates that the provided input is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrSessionClosed indicates that an operation was attempted on a closed session.
	ErrSessionClosed = errors.New("session closed")
)

// AgentError wraps errors with operation context.
//
// It provides additional context about which operation failed,
// making error messages more informative for debugging.
//
// Example:
//
//	err := &AgentError{
//	    Op:  "Chat",
//	    Err: ErrInvalidInput,
//	}
//	// Error() returns: "companion: Chat: invalid input"
type AgentError struct {
	// Op is the name of the operation that failed.
	Op string

	// Err is the underlying error.
	Err error
}

// Error returns a formatted error message.
//
// The format is: "companion: <Op>: <Err>"
func (e *AgentError) Error() string {
	return fmt.Sprintf("companion: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
//
// This allows using errors.Is() and errors.As() with AgentError.
func (e *AgentError) Unwrap() error {
	return e.Err
}

// NewAgentError creates a new AgentError wrapping the given error.
//
// If err is nil, returns nil. This allows safe error wrapping:
//
//	if err != nil {
//	    return NewAgentError("Chat", err)
//	}
//
// Parameters:
//   - op: Name of the operation (e.g., "Chat", "Init", "Close")
//   - err: The underlying error to wrap
//
// Returns an AgentError, or nil if err is nil.
func NewAgentError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &AgentError{
		Op:  op,
		Err: err,
	}
}
