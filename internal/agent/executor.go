package agent

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/finch/internal/observability"
	"github.com/haasonsaas/finch/pkg/models"
)

// ExecMode selects how a batch of tool calls is dispatched.
type ExecMode string

const (
	// ExecParallel runs calls concurrently under the concurrency cap.
	ExecParallel ExecMode = "parallel"

	// ExecSequential runs calls one at a time in original order.
	ExecSequential ExecMode = "sequential"
)

// ExecutorConfig configures batch tool execution.
type ExecutorConfig struct {
	// Concurrency is the maximum number of concurrent tool executions.
	// Default: 4.
	Concurrency int

	// Mode selects parallel or sequential dispatch. Default: parallel.
	Mode ExecMode

	// Truncate bounds each result before it becomes a tool message.
	Truncate TruncateConfig
}

// DefaultExecutorConfig returns sensible defaults: 4 concurrent tools,
// parallel dispatch, default truncation.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		Concurrency: 4,
		Mode:        ExecParallel,
		Truncate:    DefaultTruncateConfig(),
	}
}

// maxSummaryRunes bounds the outcome summary carried on tool_call_complete.
const maxSummaryRunes = 200

// Executor runs one assistant turn's worth of tool calls and streams their
// lifecycle events in real time.
//
// Every tool_call_start is emitted before any call is dispatched. Unit
// goroutines write progress and completion events to a single fan-in channel;
// the executor drains it and re-emits each event to the caller as it arrives,
// so a fast tool's completion is visible while a slow sibling still runs. One
// call's failure or timeout never aborts the rest; the batch always runs to
// completion and results come back in original call order.
type Executor struct {
	runner  *Runner
	config  ExecutorConfig
	logger  *observability.Logger
	metrics *observability.Metrics
}

// BatchResult is the outcome of one executed batch, in original call order.
type BatchResult struct {
	// ToolMessages are the conversation messages to append after the
	// assistant message, one per call, content already truncated.
	ToolMessages []models.Message

	// Results are the per-call outcomes backing ToolMessages.
	Results []models.ToolResult
}

// NewExecutor creates an executor over the given runner.
// Metrics may be nil.
func NewExecutor(runner *Runner, config ExecutorConfig, logger *observability.Logger, metrics *observability.Metrics) *Executor {
	if config.Concurrency <= 0 {
		config.Concurrency = 4
	}
	if config.Mode == "" {
		config.Mode = ExecParallel
	}
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{})
	}
	return &Executor{
		runner:  runner,
		config:  config,
		logger:  logger,
		metrics: metrics,
	}
}

// Execute runs the batch, forwarding every event to emit as it occurs.
// emit is called from the executor's goroutine only.
func (e *Executor) Execute(ctx context.Context, calls []models.ToolCall, emit func(models.StreamEvent)) *BatchResult {
	if len(calls) == 0 {
		return &BatchResult{}
	}

	// Announce the whole batch before anything runs.
	for _, call := range calls {
		emit(models.NewToolCallStart(call))
	}

	if e.config.Mode == ExecSequential {
		return e.executeSequential(ctx, calls, emit)
	}
	return e.executeParallel(ctx, calls, emit)
}

func (e *Executor) executeParallel(ctx context.Context, calls []models.ToolCall, emit func(models.StreamEvent)) *BatchResult {
	results := make([]models.ToolResult, len(calls))
	fanIn := make(chan models.StreamEvent, 64)

	sem := make(chan struct{}, e.config.Concurrency)
	var wg sync.WaitGroup

	for i, tc := range calls {
		wg.Add(1)
		go func(idx int, call models.ToolCall) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx] = models.ToolResult{
					ToolCallID: call.ID,
					Content:    "tool execution canceled",
					IsError:    true,
					Err:        "tool execution canceled",
				}
				fanIn <- models.NewToolCallComplete(call.ID, call.Name, "tool execution canceled", true)
				return
			}

			result := e.runner.Run(ctx, call, fanIn)
			results[idx] = e.bound(ctx, call, result)
			fanIn <- completionEvent(call, results[idx])
		}(i, tc)
	}

	go func() {
		wg.Wait()
		close(fanIn)
	}()

	// Single consumer: re-emit in arrival order until every unit signaled.
	for ev := range fanIn {
		emit(ev)
	}

	return e.assemble(calls, results)
}

func (e *Executor) executeSequential(ctx context.Context, calls []models.ToolCall, emit func(models.StreamEvent)) *BatchResult {
	results := make([]models.ToolResult, len(calls))

	for i, tc := range calls {
		unitEvents := make(chan models.StreamEvent, 16)

		go func(idx int, call models.ToolCall) {
			result := e.runner.Run(ctx, call, unitEvents)
			results[idx] = e.bound(ctx, call, result)
			unitEvents <- completionEvent(call, results[idx])
			close(unitEvents)
		}(i, tc)

		for ev := range unitEvents {
			emit(ev)
		}
	}

	return e.assemble(calls, results)
}

// bound applies the truncation policy to one result's content.
func (e *Executor) bound(ctx context.Context, call models.ToolCall, result models.ToolResult) models.ToolResult {
	t := TruncateContent(result.Content, e.config.Truncate)
	if t.Truncated {
		e.logger.Debug(ctx, "tool result truncated",
			"tool", call.Name,
			"tool_call_id", call.ID,
			"kind", t.Kind,
			"original_bytes", t.OriginalBytes,
			"bounded_bytes", len(t.Content),
		)
		if e.metrics != nil {
			e.metrics.RecordTruncation(call.Name, t.Kind)
		}
		result.Content = t.Content
	}
	return result
}

// assemble builds the ordered tool messages for the batch.
func (e *Executor) assemble(calls []models.ToolCall, results []models.ToolResult) *BatchResult {
	msgs := make([]models.Message, len(calls))
	for i, call := range calls {
		msgs[i] = models.Message{
			ID:         uuid.NewString(),
			Role:       models.RoleTool,
			Content:    results[i].Content,
			ToolCallID: call.ID,
			ToolName:   call.Name,
			IsError:    results[i].IsError,
			CreatedAt:  time.Now(),
		}
	}
	return &BatchResult{ToolMessages: msgs, Results: results}
}

func completionEvent(call models.ToolCall, result models.ToolResult) models.StreamEvent {
	return models.NewToolCallComplete(call.ID, call.Name, summarize(result.Content), result.IsError)
}

// summarize bounds completion-event content so the stream stays light even
// when the full result is large.
func summarize(content string) string {
	runes := []rune(content)
	if len(runes) <= maxSummaryRunes {
		return content
	}
	return string(runes[:maxSummaryRunes]) + "..."
}
