package domain

import (
	"errors"
	"fmt"
)

// ErrExecutionLimit is returned when a run exhausts its wall-clock budget
// or is cancelled by the caller.
var ErrExecutionLimit = errors.New("execution limit exceeded")

// ValidationError reports a missing or empty required field.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return e.Field + " required"
}

// AuthorizationError reports a mutation attempted by a caller who does not
// own the record.
type AuthorizationError struct {
	ScriptID    string
	RequesterID string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("requester %q is not the owner of script %q", e.RequesterID, e.ScriptID)
}

// NotFoundError reports an unknown script id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("script %q not found", e.ID)
}

// CompileError reports script source that does not parse. The environment
// is never touched when compilation fails.
type CompileError struct {
	Detail string
}

func (e *CompileError) Error() string {
	return "compile error: " + e.Detail
}

// ExecutionError reports a runtime fault raised inside sandboxed code,
// including explicit error() calls. It never unwinds past the executor.
type ExecutionError struct {
	Message string
}

func (e *ExecutionError) Error() string {
	return e.Message
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsAuthorization(err error) bool {
	var ae *AuthorizationError
	return errors.As(err, &ae)
}

func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}
