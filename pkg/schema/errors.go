package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeCancelled         = "CANCELLED"
	ErrCodeStore             = "STORE_ERROR"

	// Graph structure.
	ErrCodeDuplicateStepEdge  = "DUPLICATE_STEP_EDGE"
	ErrCodeDuplicateBranch    = "DUPLICATE_BRANCH"
	ErrCodeBranchesExhausted  = "BRANCHES_EXHAUSTED"
	ErrCodeDanglingEdge       = "DANGLING_EDGE"
	ErrCodeEntryNodeProtected = "ENTRY_NODE_PROTECTED"
	ErrCodeMissingEntry       = "MISSING_ENTRY"
	ErrCodeDuplicateNode      = "DUPLICATE_NODE"
	ErrCodeNodeNotFound       = "NODE_NOT_FOUND"

	// Step execution.
	ErrCodeMissingSelector = "MISSING_SELECTOR"
	ErrCodeInvalidDuration = "INVALID_DURATION"
	ErrCodeInvalidStep     = "INVALID_STEP"
	ErrCodeMissingFile     = "MISSING_FILE"
	ErrCodeDriverFailure   = "DRIVER_FAILURE"
	ErrCodeHTTPFailure     = "HTTP_FAILURE"
	ErrCodeCredential      = "CREDENTIAL_ERROR"

	// Condition evaluation.
	ErrCodeEvaluation = "EVALUATION_ERROR"
)

var graphCodes = map[string]bool{
	ErrCodeDuplicateStepEdge:  true,
	ErrCodeDuplicateBranch:    true,
	ErrCodeBranchesExhausted:  true,
	ErrCodeDanglingEdge:       true,
	ErrCodeEntryNodeProtected: true,
	ErrCodeMissingEntry:       true,
	ErrCodeDuplicateNode:      true,
	ErrCodeNodeNotFound:       true,
}

var stepCodes = map[string]bool{
	ErrCodeMissingSelector: true,
	ErrCodeInvalidDuration: true,
	ErrCodeInvalidStep:     true,
	ErrCodeMissingFile:     true,
	ErrCodeDriverFailure:   true,
	ErrCodeHTTPFailure:     true,
	ErrCodeCredential:      true,
}

// FlowError is the structured error type for all flowpilot operations.
type FlowError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	NodeID  string         `json:"node_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *FlowError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("[%s] node %s: %s", e.Code, e.NodeID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *FlowError) Unwrap() error {
	return e.Cause
}

// NewError creates a new FlowError.
func NewError(code, message string) *FlowError {
	return &FlowError{Code: code, Message: message}
}

// NewErrorf creates a new FlowError with a formatted message.
func NewErrorf(code, format string, args ...any) *FlowError {
	return &FlowError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithNode attaches a node ID to the error.
func (e *FlowError) WithNode(nodeID string) *FlowError {
	e.NodeID = nodeID
	return e
}

// WithCause attaches an underlying cause.
func (e *FlowError) WithCause(err error) *FlowError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *FlowError) WithDetails(details map[string]any) *FlowError {
	e.Details = details
	return e
}

// CodeOf returns the code of the first FlowError in err's chain, or "".
func CodeOf(err error) string {
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// HasCode reports whether err carries a FlowError with the given code.
func HasCode(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

// IsGraphError reports whether err is a structural graph violation.
func IsGraphError(err error) bool {
	return graphCodes[CodeOf(err)]
}

// IsStepError reports whether err came from executing a step.
func IsStepError(err error) bool {
	return stepCodes[CodeOf(err)]
}
