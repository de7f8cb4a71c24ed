package agent

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/haasonsaas/finch/internal/observability"
	"github.com/haasonsaas/finch/pkg/models"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.LogConfig{Output: io.Discard})
}

const emptyObjectSchema = `{"type":"object"}`

// mockTool is a scriptable Tool for tests.
type mockTool struct {
	name    string
	schema  string
	execute func(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

func (t *mockTool) Name() string        { return t.name }
func (t *mockTool) Description() string { return "mock tool " + t.name }

func (t *mockTool) Schema() json.RawMessage {
	if t.schema == "" {
		return json.RawMessage(emptyObjectSchema)
	}
	return json.RawMessage(t.schema)
}

func (t *mockTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	return t.execute(ctx, params)
}

// mockStreamingTool additionally reports progress through the reporter.
type mockStreamingTool struct {
	mockTool
	executeStreaming func(ctx context.Context, params json.RawMessage, reporter ProgressReporter) (*ToolResult, error)
}

func (t *mockStreamingTool) ExecuteStreaming(ctx context.Context, params json.RawMessage, reporter ProgressReporter) (*ToolResult, error) {
	return t.executeStreaming(ctx, params, reporter)
}

// mockProvider replays one scripted chunk sequence per Complete call.
type mockProvider struct {
	mu      sync.Mutex
	scripts [][]*CompletionChunk
	calls   int

	// lastRequest records the most recent request for assertions.
	lastRequest *CompletionRequest

	completeErr error
}

func (p *mockProvider) Name() string { return "mock" }

func (p *mockProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.completeErr != nil {
		return nil, p.completeErr
	}

	p.lastRequest = req
	script := p.scripts[len(p.scripts)-1]
	if p.calls < len(p.scripts) {
		script = p.scripts[p.calls]
	}
	p.calls++

	out := make(chan *CompletionChunk, len(script))
	for _, chunk := range script {
		out <- chunk
	}
	close(out)
	return out, nil
}

func textDone(text string) []*CompletionChunk {
	return []*CompletionChunk{
		{Text: text},
		{Done: true, InputTokens: 10, OutputTokens: 5},
	}
}

func toolCallChunk(id, name, input string) *CompletionChunk {
	return &CompletionChunk{ToolCall: &models.ToolCall{
		ID:    id,
		Name:  name,
		Input: json.RawMessage(input),
	}}
}

func drainEvents(events <-chan models.StreamEvent) []models.StreamEvent {
	var out []models.StreamEvent
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func eventsOfType(events []models.StreamEvent, t models.StreamEventType) []models.StreamEvent {
	var out []models.StreamEvent
	for _, ev := range events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
