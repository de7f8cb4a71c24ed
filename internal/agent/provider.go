package agent

import (
	"context"
	"encoding/json"

	"github.com/haasonsaas/finch/pkg/models"
)

// LLMProvider defines the interface for model completion backends.
//
// Implementations handle the specifics of communicating with different LLM
// APIs (Anthropic, OpenAI) while presenting a unified streaming interface to
// the loop.
//
// Thread safety: implementations must be safe for concurrent use. Multiple
// goroutines may call Complete simultaneously for different requests.
type LLMProvider interface {
	// Complete sends a request and returns a streaming response. The
	// returned channel is closed after the final chunk (Done or Error).
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)

	// Name returns the provider name.
	Name() string
}

// CompletionRequest contains all parameters for one model completion request.
type CompletionRequest struct {
	// Model specifies which model to use. If empty, the provider's default
	// model is used.
	Model string `json:"model"`

	// System is the system prompt. Handled separately from messages in most
	// LLM APIs.
	System string `json:"system,omitempty"`

	// Messages contains the conversation history in chronological order.
	Messages []models.Message `json:"messages"`

	// Tools defines the tool schemas the model can request. If empty, no
	// tool calling is available.
	Tools []ToolSchema `json:"tools,omitempty"`

	// MaxTokens limits the generated response length. If 0 the provider's
	// default is used.
	MaxTokens int `json:"max_tokens,omitempty"`
}

// ToolSchema is the declarative description of a tool sent to the model.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// CompletionChunk represents a single chunk in a streaming model response.
//
// Each chunk may contain partial text, a complete tool call (providers
// accumulate fragmented argument deltas and deliver calls whole), a done
// signal with token usage, or an error.
type CompletionChunk struct {
	// Text contains partial response text.
	Text string `json:"text,omitempty"`

	// ToolCall contains one complete tool execution request.
	ToolCall *models.ToolCall `json:"tool_call,omitempty"`

	// Done is true when the stream has completed successfully.
	Done bool `json:"done,omitempty"`

	// Error terminates the stream.
	Error error `json:"-"`

	// InputTokens and OutputTokens are populated on the final chunk only.
	InputTokens  int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens,omitempty"`
}

// Tool defines the interface for executable agent tools.
//
// Implementing a Tool:
//
//	type Calculator struct{}
//
//	func (c *Calculator) Name() string { return "calculator" }
//
//	func (c *Calculator) Description() string {
//	    return "Performs mathematical calculations"
//	}
//
//	func (c *Calculator) Schema() json.RawMessage {
//	    return json.RawMessage(`{
//	        "type": "object",
//	        "properties": {
//	            "expression": {"type": "string", "description": "Math expression"}
//	        },
//	        "required": ["expression"]
//	    }`)
//	}
//
//	func (c *Calculator) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
//	    ...
//	}
type Tool interface {
	// Name returns the tool name for model function calling.
	Name() string

	// Description returns a natural language description of the tool.
	Description() string

	// Schema returns the JSON Schema defining the tool's parameters.
	Schema() json.RawMessage

	// Execute runs the tool with the given JSON parameters, already
	// validated against Schema. Returns the tool output or an error.
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// StreamingTool is an optional capability for tools that report progress
// while running. The runner detects it by type assertion and forwards
// reporter callbacks onto the run's event stream as they occur.
type StreamingTool interface {
	Tool

	// ExecuteStreaming runs the tool with a reporter for intermediate
	// status, progress, and log output. It still returns exactly one
	// terminal result.
	ExecuteStreaming(ctx context.Context, params json.RawMessage, reporter ProgressReporter) (*ToolResult, error)
}

// ProgressReporter receives intermediate updates from a running tool.
// Calls after the tool's result has been delivered are dropped.
type ProgressReporter interface {
	// Status reports a human-readable status line.
	Status(status string)

	// Progress reports fractional completion in [0, 1].
	Progress(fraction float64)

	// Log reports one log line.
	Log(line string)
}

// ToolResult contains the output from a tool execution. Errors are also
// communicated via ToolResult with IsError=true, allowing the model to
// handle failures gracefully.
type ToolResult struct {
	// Content is the tool's output (text, JSON, etc.)
	Content string `json:"content"`

	// IsError indicates this result represents an error condition.
	IsError bool `json:"is_error,omitempty"`
}
