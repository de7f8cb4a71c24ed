package models

import "encoding/json"

// StreamEventType defines the kinds of events emitted on a run's stream.
type StreamEventType string

const (
	// EventMessageDelta carries an incremental fragment of assistant text.
	EventMessageDelta StreamEventType = "message_delta"

	// EventToolCallStart announces that a tool call is about to execute.
	EventToolCallStart StreamEventType = "tool_call_start"

	// EventToolStatus carries a human-readable status line from a running tool.
	EventToolStatus StreamEventType = "tool_status"

	// EventToolProgress carries fractional completion from a running tool.
	EventToolProgress StreamEventType = "tool_progress"

	// EventToolLog carries a log line produced by a running tool.
	EventToolLog StreamEventType = "tool_log"

	// EventToolCallComplete announces that a tool call finished, with a
	// bounded summary of its outcome.
	EventToolCallComplete StreamEventType = "tool_call_complete"

	// EventTurnEnd indicates the assistant finished one full turn.
	EventTurnEnd StreamEventType = "turn_end"

	// EventDone indicates the run is over and no further events follow.
	EventDone StreamEventType = "done"

	// EventError indicates the run failed; it is terminal.
	EventError StreamEventType = "error"
)

// StreamEvent is one frame on the run's outbound stream. Exactly the fields
// relevant to Type are populated.
type StreamEvent struct {
	Type StreamEventType `json:"type"`

	// Text is the delta fragment for message_delta events.
	Text string `json:"text,omitempty"`

	// ToolCallID and ToolName identify the call for all tool_* events.
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`

	// Arguments is the full decoded input, present on tool_call_start.
	Arguments json.RawMessage `json:"arguments,omitempty"`

	// Status, Progress and Log carry tool-reported updates.
	Status   string  `json:"status,omitempty"`
	Progress float64 `json:"progress,omitempty"`
	Log      string  `json:"log,omitempty"`

	// Summary is a bounded outcome description on tool_call_complete.
	Summary string `json:"summary,omitempty"`
	IsError bool   `json:"is_error,omitempty"`

	// Message is a human-readable note on turn_end and error events.
	Message string `json:"message,omitempty"`

	// Iteration is the loop iteration the event belongs to (0-indexed).
	Iteration int `json:"iteration,omitempty"`

	// Sequence is a per-run monotonic counter assigned at emit time.
	Sequence uint64 `json:"sequence"`
}

// NewMessageDelta builds a message_delta event for one text fragment.
func NewMessageDelta(text string) StreamEvent {
	return StreamEvent{Type: EventMessageDelta, Text: text}
}

// NewToolCallStart builds the announcement event for one tool call.
func NewToolCallStart(call ToolCall) StreamEvent {
	return StreamEvent{
		Type:       EventToolCallStart,
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Arguments:  call.Input,
	}
}

// NewToolCallComplete builds the completion event for one tool call.
func NewToolCallComplete(callID, toolName, summary string, isError bool) StreamEvent {
	return StreamEvent{
		Type:       EventToolCallComplete,
		ToolCallID: callID,
		ToolName:   toolName,
		Summary:    summary,
		IsError:    isError,
	}
}

// Terminal reports whether no further events may follow this one.
func (e StreamEvent) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}
