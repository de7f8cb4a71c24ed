// Package builtin provides the tools that ship with the agent: a clock, a
// calculator, and a streaming report generator. They double as reference
// implementations of the Tool and StreamingTool interfaces.
package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/haasonsaas/finch/internal/agent"
)

// ClockTool reports the current time, optionally in a named timezone.
type ClockTool struct {
	now func() time.Time
}

// NewClockTool creates a clock tool.
func NewClockTool() *ClockTool {
	return &ClockTool{now: time.Now}
}

func (t *ClockTool) Name() string { return "clock" }

func (t *ClockTool) Description() string {
	return "Get the current date and time, optionally in a specific IANA timezone."
}

func (t *ClockTool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"timezone": map[string]any{
				"type":        "string",
				"description": "IANA timezone name, e.g. America/New_York. Defaults to UTC.",
			},
		},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *ClockTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Timezone string `json:"timezone"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}

	loc := time.UTC
	if input.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(input.Timezone)
		if err != nil {
			return toolError(fmt.Sprintf("unknown timezone %q", input.Timezone)), nil
		}
	}

	now := t.now().In(loc)
	payload, _ := json.MarshalIndent(map[string]any{
		"time":     now.Format(time.RFC3339),
		"timezone": loc.String(),
		"weekday":  now.Weekday().String(),
		"unix":     now.Unix(),
	}, "", "  ")
	return &agent.ToolResult{Content: string(payload)}, nil
}

func toolError(msg string) *agent.ToolResult {
	return &agent.ToolResult{Content: msg, IsError: true}
}
