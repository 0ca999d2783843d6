package ledger

import "fmt"

// Code classifies a ledger error.
type Code string

const (
	// CodeInsufficientResource means not enough stones or actions remain.
	CodeInsufficientResource Code = "insufficient_resource"
	// CodeInvariantViolation means the request would break a ledger rule.
	CodeInvariantViolation Code = "invariant_violation"
	// CodeMissingActor means the operation named no actor.
	CodeMissingActor Code = "missing_actor"
	// CodeMissingCombat means the operation ran outside an active encounter.
	CodeMissingCombat Code = "missing_combat"
	// CodePersistence means the flag store failed; nothing was committed.
	CodePersistence Code = "persistence"
)

// Error is the ledger error type with structured metadata.
type Error struct {
	Code     Code              // Machine-readable error code
	Message  string            // Internal message (for logs/telemetry)
	Metadata map[string]string // Additional context for user-facing warnings
	Cause    error             // Wrapped underlying error
}

// Sentinels for errors.Is; they match any *Error with the same code.
var (
	ErrInsufficientResource = &Error{Code: CodeInsufficientResource, Message: "insufficient resource"}
	ErrInvariantViolation   = &Error{Code: CodeInvariantViolation, Message: "invariant violation"}
	ErrMissingActor         = &Error{Code: CodeMissingActor, Message: "missing actor"}
	ErrMissingCombat        = &Error{Code: CodeMissingCombat, Message: "no active combat"}
	ErrPersistence          = &Error{Code: CodePersistence, Message: "persistence failure"}
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

func newError(code Code, message string, metadata map[string]string) *Error {
	return &Error{Code: code, Message: message, Metadata: metadata}
}

func insufficient(message string, metadata map[string]string) *Error {
	return newError(CodeInsufficientResource, message, metadata)
}

func violation(message string, metadata map[string]string) *Error {
	return newError(CodeInvariantViolation, message, metadata)
}

func persistence(message string, cause error) *Error {
	return &Error{Code: CodePersistence, Message: message, Cause: cause}
}
