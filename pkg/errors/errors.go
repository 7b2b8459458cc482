// SPDX-License-Identifier: Apache-2.0

// Package errors provides typed error handling with rich context for Tom.
package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode classifies Tom errors for monitoring and recovery.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeDuplicateModule indicates two capability modules share a name.
	// Raised only while the registry is being built; fatal at startup.
	CodeDuplicateModule ErrorCode = "DUPLICATE_MODULE"

	// CodeUnknownOperation indicates the model requested an operation
	// that is not present in the merged schema.
	CodeUnknownOperation ErrorCode = "UNKNOWN_OPERATION"

	// CodeInvalidArgument indicates operation arguments failed schema
	// validation.
	CodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"

	// CodeOperationFailure indicates an operation handler failed.
	CodeOperationFailure ErrorCode = "OPERATION_FAILURE"

	// CodeLLMError indicates a language-model gateway error.
	CodeLLMError ErrorCode = "LLM_ERROR"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeRateLimit indicates rate limiting was triggered.
	CodeRateLimit ErrorCode = "RATE_LIMITED"

	// CodeNotFound indicates a resource was not found.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeSessionError indicates a session store error.
	CodeSessionError ErrorCode = "SESSION_ERROR"

	// CodeContextLost indicates context was lost (e.g., canceled mid-retry).
	CodeContextLost ErrorCode = "CONTEXT_LOST"
)

// Error is a typed error with rich context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type Error struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Recoverable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *Error) MarshalJSON() ([]byte, error) {
	payload := struct {
		Code        string                 `json:"code"`
		Message     string                 `json:"message"`
		Err         string                 `json:"error,omitempty"`
		Recoverable bool                   `json:"recoverable"`
		Context     map[string]interface{} `json:"context,omitempty"`
	}{
		Code:        string(e.Code),
		Message:     e.Message,
		Recoverable: e.Recoverable,
		Context:     e.Context,
	}
	if e.Err != nil {
		payload.Err = e.Err.Error()
	}
	return json.Marshal(payload)
}

// New creates a new Error with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: msg,
		Err:     cause,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *Error) WithRecoverable(recoverable bool) *Error {
	e.Recoverable = recoverable
	return e
}

// As attempts to convert an error to a *Error.
// Returns the error unchanged if it is one, or wraps it as internal otherwise.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	if te, ok := err.(*Error); ok {
		return te
	}
	return New(CodeInternal, "wrapped error", err)
}

// Match walks err's chain and returns the first *Error, without wrapping.
// The second return is false when the chain carries no typed error.
func Match(err error) (*Error, bool) {
	for err != nil {
		if te, ok := err.(*Error); ok {
			return te, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		if te, ok := err.(*Error); ok && te.Code == code {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Sanitized returns a user-safe message for the error: the typed message
// without the underlying cause, so provider responses and stack details never
// reach the model or the user verbatim.
func (e *Error) Sanitized() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}
