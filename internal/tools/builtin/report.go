package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/finch/internal/agent"
)

// ReportTool assembles a sectioned text report, reporting progress as each
// section is produced. It implements agent.StreamingTool; when invoked
// through the plain Execute path no progress is reported.
type ReportTool struct {
	// stepDelay paces section generation so progress events are observable.
	stepDelay time.Duration
}

// NewReportTool creates a report tool with the given pacing between
// sections. A zero delay generates everything immediately.
func NewReportTool(stepDelay time.Duration) *ReportTool {
	return &ReportTool{stepDelay: stepDelay}
}

func (t *ReportTool) Name() string { return "report" }

func (t *ReportTool) Description() string {
	return "Generate a structured report with a title and one block per requested section."
}

func (t *ReportTool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title": map[string]any{
				"type":        "string",
				"description": "Report title.",
			},
			"sections": map[string]any{
				"type":        "array",
				"description": "Section headings to include, in order.",
				"items":       map[string]any{"type": "string"},
				"minItems":    1,
			},
		},
		"required": []string{"title", "sections"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *ReportTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	return t.ExecuteStreaming(ctx, params, nil)
}

func (t *ReportTool) ExecuteStreaming(ctx context.Context, params json.RawMessage, reporter agent.ProgressReporter) (*agent.ToolResult, error) {
	var input struct {
		Title    string   `json:"title"`
		Sections []string `json:"sections"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.Title) == "" {
		return toolError("title is required"), nil
	}
	if len(input.Sections) == 0 {
		return toolError("at least one section is required"), nil
	}

	if reporter != nil {
		reporter.Status(fmt.Sprintf("generating %d sections", len(input.Sections)))
	}

	var out strings.Builder
	out.WriteString("# " + input.Title + "\n")

	for i, section := range input.Sections {
		if err := t.pace(ctx); err != nil {
			return nil, err
		}

		out.WriteString("\n## " + section + "\n")
		out.WriteString(fmt.Sprintf("Section %d of %d.\n", i+1, len(input.Sections)))

		if reporter != nil {
			reporter.Log(fmt.Sprintf("wrote section %q", section))
			reporter.Progress(float64(i+1) / float64(len(input.Sections)))
		}
	}

	if reporter != nil {
		reporter.Status("report complete")
	}
	return &agent.ToolResult{Content: out.String()}, nil
}

func (t *ReportTool) pace(ctx context.Context) error {
	if t.stepDelay <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(t.stepDelay):
		return nil
	}
}
