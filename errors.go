package mcp

import (
	"errors"
	"fmt"

	"golang.org/x/exp/jsonrpc2"
)

var (
	// ErrServerLockingConflicts occurs when registration is attempted while the
	// server is already running, or two configuration calls race.
	ErrServerLockingConflicts = errors.New(
		"mcp: server is already running or there is a configuration process conflict",
	)

	// ErrInvalidPromptRole occurs when an invalid prompt role is provided.
	ErrInvalidPromptRole = errors.New("mcp: invalid prompt role, must be one of: system, user, assistant")

	// ErrAlreadyRegistered occurs when a tool/resource/template/prompt name or
	// URI collides with an existing registration.
	ErrAlreadyRegistered = errors.New("mcp: already registered")

	// ErrClientDisconnected occurs when a request arrives for a session that
	// has already disconnected.
	ErrClientDisconnected = errors.New("mcp: server is gone")
)

// ToolNotFoundError is raised when tools/call names a tool the registry does
// not hold.
type ToolNotFoundError struct {
	Name string
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("tool %q not found", e.Name)
}

// ResourceNotFoundError is raised when resources/read matches neither a
// static resource nor any registered template.
type ResourceNotFoundError struct {
	URI string
}

func (e *ResourceNotFoundError) Error() string {
	return fmt.Sprintf("resource %q not found", e.URI)
}

// PromptNotFoundError is raised when prompts/get names an unregistered prompt.
type PromptNotFoundError struct {
	Name string
}

func (e *PromptNotFoundError) Error() string {
	return fmt.Sprintf("prompt %q not found", e.Name)
}

// InvalidTemplateError is raised when a URI template fails to compile.
type InvalidTemplateError struct {
	Pattern string
	Reason  string
}

func (e *InvalidTemplateError) Error() string {
	return fmt.Sprintf("invalid template %q: %s", e.Pattern, e.Reason)
}

// CapabilityNotSupportedError is raised when a server- or client-capability
// gated operation is attempted without the capability being declared.
type CapabilityNotSupportedError struct {
	Capability string
}

func (e *CapabilityNotSupportedError) Error() string {
	return fmt.Sprintf("capability %q not supported", e.Capability)
}

// InvalidToolInputError is raised when a tool's arguments fail to decode or
// validate against its input schema.
type InvalidToolInputError struct {
	ToolName string
	Cause    error
}

func (e *InvalidToolInputError) Error() string {
	return fmt.Sprintf("invalid input for tool %q: %v", e.ToolName, e.Cause)
}

func (e *InvalidToolInputError) Unwrap() error { return e.Cause }

// InvalidPromptArgumentsError is raised when a prompt's arguments fail to
// decode.
type InvalidPromptArgumentsError struct {
	PromptName string
	Cause      error
}

func (e *InvalidPromptArgumentsError) Error() string {
	return fmt.Sprintf("invalid arguments for prompt %q: %v", e.PromptName, e.Cause)
}

func (e *InvalidPromptArgumentsError) Unwrap() error { return e.Cause }

// DecodingError carries both the raw payload and the expected schema so a
// caller can render both for diagnostics.
type DecodingError struct {
	RawInput       []byte
	ExpectedSchema any
	Cause          error
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf(
		"failed to decode %s against schema %v: %v",
		string(e.RawInput), e.ExpectedSchema, e.Cause,
	)
}

func (e *DecodingError) Unwrap() error { return e.Cause }

// ToolCallError aggregates one or more handler-raised causes for a single
// tool invocation failure.
type ToolCallError struct {
	Causes []error
}

func (e *ToolCallError) Error() string {
	return fmt.Sprintf("tool call failed: %v", errors.Join(e.Causes...))
}

func (e *ToolCallError) Unwrap() []error { return e.Causes }

// InternalError is the catch-all error kind for conditions that do not map to
// a more specific taxonomy entry.
type InternalError struct {
	Message string
	Cause   error
}

func (e *InternalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("internal error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("internal error: %s", e.Message)
}

func (e *InternalError) Unwrap() error { return e.Cause }

// AsJSONRPCError maps a domain error to a JSON-RPC 2.0 error: malformed input
// maps to invalid-params, an unsupported capability to invalid-request, and
// everything else (including missing tool/resource/prompt) to the
// internal-error code, carrying the domain error's own message.
func AsJSONRPCError(err error) error {
	switch {
	case asAny[*InvalidToolInputError](err),
		asAny[*InvalidPromptArgumentsError](err),
		asAny[*DecodingError](err):
		return fmt.Errorf("%w: %s", jsonrpc2.ErrInvalidParams, err)
	case asAny[*CapabilityNotSupportedError](err):
		return fmt.Errorf("%w: %s", jsonrpc2.ErrInvalidRequest, err)
	default:
		return fmt.Errorf("%w: %s", jsonrpc2.ErrInternal, err)
	}
}

func asAny[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}
