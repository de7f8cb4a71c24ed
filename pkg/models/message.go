package models

import (
	"encoding/json"
	"time"
)

// Role indicates the message author type.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn-unit in a conversation.
//
// Assistant messages may carry ToolCalls; tool messages carry exactly one
// result, identified by ToolCallID. Sequence is assigned by the conversation
// state at append time and is never mutated afterward; it is the sort key and
// the unit on which window boundaries are computed.
type Message struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session_id,omitempty"`
	Role      Role       `json:"role"`
	Content   string     `json:"content,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID and ToolName are set only on tool messages and identify
	// which tool call this message answers. IsError marks the result as a
	// failure so providers can flag it to the model.
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
	IsError    bool   `json:"is_error,omitempty"`

	Sequence  int64     `json:"sequence"`
	CreatedAt time.Time `json:"created_at"`

	// CacheBoundary marks a cache-stable position on an outgoing request
	// copy. It is never persisted.
	CacheBoundary bool `json:"-"`
}

// HasToolCalls reports whether this is an assistant message requesting tools.
func (m *Message) HasToolCalls() bool {
	return m != nil && m.Role == RoleAssistant && len(m.ToolCalls) > 0
}

// Clone returns a shallow copy with its own ToolCalls slice.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	if len(m.ToolCalls) > 0 {
		c.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		copy(c.ToolCalls, m.ToolCalls)
	}
	return &c
}

// ToolCall represents the model's request to execute one named tool.
// Immutable once created.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult represents the outcome of executing one tool call. A failure is
// a valid result, not an escaped error: Content carries the rendered text
// that re-enters the conversation, IsError flags failures, and Err holds the
// failure message when present.
type ToolResult struct {
	ToolCallID string        `json:"tool_call_id"`
	Content    string        `json:"content"`
	IsError    bool          `json:"is_error,omitempty"`
	Err        string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration_ms,omitempty"`
}

// Session represents one conversation thread.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	Model     string    `json:"model,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
