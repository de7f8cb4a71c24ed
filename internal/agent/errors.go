package agent

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoProvider indicates no LLM provider is configured.
	ErrNoProvider = errors.New("no provider configured")

	// ErrDuplicateTool indicates a tool name is already registered.
	ErrDuplicateTool = errors.New("tool already registered")

	// ErrToolNotFound indicates a requested tool doesn't exist.
	ErrToolNotFound = errors.New("tool not found")

	// ErrToolPanic indicates a tool panicked during execution.
	ErrToolPanic = errors.New("tool panicked")
)

// ToolErrorType categorizes tool execution failures.
type ToolErrorType string

const (
	ToolErrorNotFound     ToolErrorType = "not_found"
	ToolErrorInvalidInput ToolErrorType = "invalid_input"
	ToolErrorTimeout      ToolErrorType = "timeout"
	ToolErrorNetwork      ToolErrorType = "network"
	ToolErrorRateLimit    ToolErrorType = "rate_limit"
	ToolErrorExecution    ToolErrorType = "execution"
	ToolErrorPanic        ToolErrorType = "panic"
	ToolErrorUnknown      ToolErrorType = "unknown"
)

// ToolError is a categorized tool execution failure. The category lands in
// the error string, so the model sees what class of failure it is retrying
// against.
type ToolError struct {
	Type       ToolErrorType
	ToolName   string
	ToolCallID string
	Message    string
	Cause      error
}

// NewToolError wraps cause with a category inferred from its content.
func NewToolError(toolName string, cause error) *ToolError {
	e := &ToolError{
		Type:     classifyToolError(cause),
		ToolName: toolName,
		Cause:    cause,
	}
	if cause != nil {
		e.Message = cause.Error()
	}
	return e
}

// WithToolCallID stamps the failing call's ID for correlation.
func (e *ToolError) WithToolCallID(id string) *ToolError {
	e.ToolCallID = id
	return e
}

func (e *ToolError) Error() string {
	parts := []string{fmt.Sprintf("[tool:%s]", e.Type)}
	if e.ToolName != "" {
		parts = append(parts, e.ToolName)
	}
	switch {
	case e.Message != "":
		parts = append(parts, e.Message)
	case e.Cause != nil:
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

func (e *ToolError) Unwrap() error { return e.Cause }

// classifyToolError infers a category from the error's sentinels and text.
func classifyToolError(err error) ToolErrorType {
	if err == nil {
		return ToolErrorUnknown
	}
	if errors.Is(err, ErrToolNotFound) {
		return ToolErrorNotFound
	}
	if errors.Is(err, ErrToolPanic) {
		return ToolErrorPanic
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "deadline exceeded"),
		strings.Contains(msg, "context deadline"):
		return ToolErrorTimeout
	case strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "rate_limit"),
		strings.Contains(msg, "too many requests"),
		strings.Contains(msg, "429"):
		return ToolErrorRateLimit
	case strings.Contains(msg, "connection"),
		strings.Contains(msg, "network"),
		strings.Contains(msg, "dns"),
		strings.Contains(msg, "refused"),
		strings.Contains(msg, "unreachable"):
		return ToolErrorNetwork
	case strings.Contains(msg, "invalid"),
		strings.Contains(msg, "validation"),
		strings.Contains(msg, "required"),
		strings.Contains(msg, "missing"):
		return ToolErrorInvalidInput
	}
	return ToolErrorExecution
}

// LoopPhase names the loop step an error escaped from.
type LoopPhase string

const (
	// PhaseStream covers the model call and delta accumulation.
	PhaseStream LoopPhase = "stream"

	// PhaseExecuteTools covers the tool batch and result appends.
	PhaseExecuteTools LoopPhase = "execute_tools"
)

// LoopError carries the phase and iteration an error occurred in, so run
// failures are attributable from the event stream alone.
type LoopError struct {
	Phase     LoopPhase
	Iteration int
	Message   string
	Cause     error
}

func (e *LoopError) Error() string {
	prefix := fmt.Sprintf("loop error at %s (iteration %d)", e.Phase, e.Iteration)
	switch {
	case e.Message != "":
		return prefix + ": " + e.Message
	case e.Cause != nil:
		return prefix + ": " + e.Cause.Error()
	}
	return prefix
}

func (e *LoopError) Unwrap() error { return e.Cause }
