// Package errors provides structured error types for crateherd.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across all commands
//   - Machine-readable error codes for programmatic handling
//   - User-friendly error messages
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Error codes follow a hierarchical naming convention:
//   - INVALID_*: configuration and input validation failures
//   - GIT_* / NO_* / BRANCH_* / BEHIND_*: workspace-state preflight failures
//   - PUBLISH_* / UPDATE_*: mutation and publish phase failures
//
// # Usage
//
//	err := errors.New(errors.ErrCodeAmbiguousGroup, "package %s matches groups %v", name, groups)
//	if errors.Is(err, errors.ErrCodeAmbiguousGroup) {
//	    // Handle configuration error
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeGit, origErr, "git %s", strings.Join(args, " "))
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Configuration errors, reported before any mutation.
	ErrCodeInvalidGroup    Code = "INVALID_GROUP"
	ErrCodeAmbiguousGroup  Code = "AMBIGUOUS_GROUP"
	ErrCodeInvalidPattern  Code = "INVALID_PATTERN"
	ErrCodeBadManifest     Code = "BAD_MANIFEST"
	ErrCodeBadConfigOutput Code = "BAD_CONFIG_OUTPUT"

	// Workspace-state errors, fatal preflight checks.
	ErrCodeEmptyWorkspace   Code = "EMPTY_WORKSPACE"
	ErrCodeNotInWorkspace   Code = "NOT_IN_WORKSPACE"
	ErrCodeNotGit           Code = "NOT_GIT"
	ErrCodeNoCommits        Code = "NO_COMMITS"
	ErrCodeDetachedHead     Code = "DETACHED_HEAD"
	ErrCodeBranchNotAllowed Code = "BRANCH_NOT_ALLOWED"
	ErrCodeNoRemote         Code = "NO_REMOTE"
	ErrCodeBehindRemote     Code = "BEHIND_REMOTE"

	// Mutation-phase errors. No rollback of already-written files.
	ErrCodeUpdateFailed Code = "UPDATE_FAILED"
	ErrCodeGit          Code = "GIT_ERROR"
	ErrCodeCargo        Code = "CARGO_ERROR"
	ErrCodeGraphCycle   Code = "GRAPH_CYCLE"

	// Publish-phase errors.
	ErrCodePublishFailed  Code = "PUBLISH_FAILED"
	ErrCodePublishTimeout Code = "PUBLISH_TIMEOUT"

	// Registry errors.
	ErrCodeNetwork  Code = "NETWORK_ERROR"
	ErrCodeNotFound Code = "NOT_FOUND"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
