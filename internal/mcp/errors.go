// Copyright 2025 The Switchboard Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"
)

// ErrorClass represents a category of orchestration error.
type ErrorClass string

const (
	// ErrClassConfig indicates an invalid server configuration.
	ErrClassConfig ErrorClass = "CONFIG"
	// ErrClassConnection indicates a transport-level connection failure.
	ErrClassConnection ErrorClass = "CONNECTION"
	// ErrClassToolList indicates the server connected but tool listing failed.
	ErrClassToolList ErrorClass = "TOOL_LIST"
	// ErrClassExecution indicates a tool call failed.
	ErrClassExecution ErrorClass = "EXECUTION"
	// ErrClassApprovalDenied indicates the user denied a tool execution.
	ErrClassApprovalDenied ErrorClass = "APPROVAL_DENIED"
	// ErrClassNotFound indicates a server or tool was not found.
	ErrClassNotFound ErrorClass = "NOT_FOUND"
)

// OrchError is an error type that includes suggestions for resolution.
type OrchError struct {
	// Class is the error category.
	Class ErrorClass
	// Message is the primary error message.
	Message string
	// Detail provides additional context.
	Detail string
	// Suggestions are actionable steps to resolve the error.
	Suggestions []string
	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *OrchError) Error() string {
	var sb strings.Builder

	sb.WriteString(e.Message)
	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}

	return sb.String()
}

// Unwrap returns the underlying error.
func (e *OrchError) Unwrap() error {
	return e.Cause
}

// IsUserVisible implements pkg/errors.UserVisibleError.
// Orchestration errors are always user-visible.
func (e *OrchError) IsUserVisible() bool {
	return true
}

// Suggestion implements pkg/errors.UserVisibleError.
// Returns the first actionable suggestion; the full list is in UserMessage.
func (e *OrchError) Suggestion() string {
	if len(e.Suggestions) == 0 {
		return ""
	}
	return e.Suggestions[0]
}

// UserMessage returns a user-friendly message, with the suggestion list
// appended when present.
func (e *OrchError) UserMessage() string {
	var sb strings.Builder

	sb.WriteString(e.Message)
	if e.Detail != "" {
		sb.WriteString("\n  → ")
		sb.WriteString(e.Detail)
	}
	if len(e.Suggestions) > 0 {
		sb.WriteString("\n  Suggestions:")
		for _, s := range e.Suggestions {
			sb.WriteString("\n  - ")
			sb.WriteString(s)
		}
	}

	return sb.String()
}

// NewOrchError creates a new OrchError.
func NewOrchError(class ErrorClass, message string) *OrchError {
	return &OrchError{
		Class:   class,
		Message: message,
	}
}

// WithDetail adds detail to the error.
func (e *OrchError) WithDetail(detail string) *OrchError {
	e.Detail = detail
	return e
}

// WithSuggestions adds suggestions to the error.
func (e *OrchError) WithSuggestions(suggestions ...string) *OrchError {
	e.Suggestions = suggestions
	return e
}

// WithCause adds an underlying cause to the error.
func (e *OrchError) WithCause(cause error) *OrchError {
	e.Cause = cause
	return e
}

// ErrInvalidConfig creates an error for invalid server configuration.
func ErrInvalidConfig(detail string) *OrchError {
	return NewOrchError(ErrClassConfig, "invalid tool server configuration").
		WithDetail(detail).
		WithSuggestions(
			"Check the configuration syntax in servers.yaml",
			"Run: switchboard validate --config <file>",
		)
}

// ErrInvalidServerName creates an error for an invalid server name.
func ErrInvalidServerName(name string) *OrchError {
	return NewOrchError(ErrClassConfig, fmt.Sprintf("invalid server name '%s'", name)).
		WithDetail("names must start with a letter, contain only letters/numbers/hyphens/underscores, and be at most 64 characters").
		WithSuggestions(
			"Use only letters, numbers, hyphens (-), and underscores (_)",
			"Start the name with a letter",
		)
}

// ErrServerNotFound creates an error for an unknown server.
func ErrServerNotFound(name string) *OrchError {
	return NewOrchError(ErrClassNotFound, fmt.Sprintf("tool server '%s' not found", name)).
		WithSuggestions(
			"Check the server name against the current configuration",
		)
}

// ErrToolNotFound creates an error for an unknown tool.
func ErrToolNotFound(name string) *OrchError {
	return NewOrchError(ErrClassNotFound, fmt.Sprintf("tool '%s' is not registered", name)).
		WithSuggestions(
			"Check that the owning server is available",
		)
}

// ErrConnectionFailed wraps a transport-level failure with a human-readable
// classification of the cause.
func ErrConnectionFailed(name string, cause error) *OrchError {
	return NewOrchError(ErrClassConnection, fmt.Sprintf("failed to connect to tool server '%s'", name)).
		WithDetail(ClassifyConnectionError(cause)).
		WithCause(cause)
}

// ErrToolListFailed creates an error for a failed tool listing.
func ErrToolListFailed(name string, cause error) *OrchError {
	return NewOrchError(ErrClassToolList, fmt.Sprintf("failed to list tools from server '%s'", name)).
		WithDetail(cause.Error()).
		WithCause(cause)
}

// ErrExecutionFailed creates an error for a failed tool call.
func ErrExecutionFailed(tool string, cause error) *OrchError {
	return NewOrchError(ErrClassExecution, fmt.Sprintf("tool '%s' execution failed", tool)).
		WithDetail(cause.Error()).
		WithCause(cause)
}

// ErrApprovalDenied creates an error for a user-denied execution.
func ErrApprovalDenied(tool string) *OrchError {
	return NewOrchError(ErrClassApprovalDenied, fmt.Sprintf("execution of tool '%s' was denied by the user", tool))
}

// ClassifyConnectionError maps a raw connection error onto a short
// human-readable category for status display. The raw error stays available
// through the OrchError cause chain.
func ClassifyConnectionError(err error) string {
	if err == nil {
		return ""
	}

	// Structural checks first: these survive message rewording.
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return fmt.Sprintf("hostname could not be resolved: %s", dnsErr.Name)
	}
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return fmt.Sprintf("command not found: %s", execErr.Name)
	}
	if errors.Is(err, os.ErrPermission) {
		return "permission denied"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "connection timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "connection timed out"
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection refused"):
		return "connection refused"
	case strings.Contains(msg, "no such host"):
		return "hostname could not be resolved"
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out") || strings.Contains(msg, "deadline exceeded"):
		return "connection timed out"
	case strings.Contains(msg, "401") || strings.Contains(msg, "unauthorized"):
		return "unauthorized (check credentials)"
	case strings.Contains(msg, "403") || strings.Contains(msg, "forbidden"):
		return "forbidden (check permissions)"
	case strings.Contains(msg, "404") || strings.Contains(msg, "not found"):
		return "endpoint not found (check the URL)"
	case strings.Contains(msg, "executable file not found") || strings.Contains(msg, "no such file"):
		return "command not found"
	case strings.Contains(msg, "permission denied"):
		return "permission denied"
	case strings.Contains(msg, "certificate") || strings.Contains(msg, "x509") || strings.Contains(msg, "tls"):
		return "certificate error"
	default:
		return err.Error()
	}
}

// AsOrchError extracts an OrchError from an error chain, or nil.
func AsOrchError(err error) *OrchError {
	var oe *OrchError
	if errors.As(err, &oe) {
		return oe
	}
	return nil
}
