package agent

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haasonsaas/finch/internal/observability"
	"github.com/haasonsaas/finch/pkg/models"
)

// RunnerConfig configures per-call execution behavior.
type RunnerConfig struct {
	// DefaultTimeout bounds each tool execution. Default: 30 seconds.
	DefaultTimeout time.Duration

	// ToolTimeouts overrides the timeout for specific tools by name.
	ToolTimeouts map[string]time.Duration
}

// DefaultRunnerConfig returns sensible defaults with a 30 second timeout.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		DefaultTimeout: 30 * time.Second,
	}
}

// Runner executes a single tool call and always hands back exactly one
// result. Unknown tools, invalid arguments, handler errors, panics, and
// timeouts all surface as failure results, never as escaped errors. A result
// arriving after the timeout fired is discarded with a warning, so no call
// ever reports twice.
type Runner struct {
	registry *Registry
	config   RunnerConfig
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewRunner creates a runner over the given registry.
// Metrics may be nil.
func NewRunner(registry *Registry, config RunnerConfig, logger *observability.Logger, metrics *observability.Metrics) *Runner {
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{})
	}
	return &Runner{
		registry: registry,
		config:   config,
		logger:   logger,
		metrics:  metrics,
	}
}

func (r *Runner) timeoutFor(name string) time.Duration {
	if d, ok := r.config.ToolTimeouts[name]; ok && d > 0 {
		return d
	}
	return r.config.DefaultTimeout
}

// Run executes one tool call. Progress callbacks from tools implementing
// StreamingTool are forwarded on events as they occur; events may be nil.
func (r *Runner) Run(ctx context.Context, call models.ToolCall, events chan<- models.StreamEvent) models.ToolResult {
	start := time.Now()

	tool, ok := r.registry.Lookup(call.Name)
	if !ok {
		return r.failure(call, start, "not_found", fmt.Sprintf("tool not found: %s", call.Name))
	}

	if err := r.registry.ValidateInput(call.Name, call.Input); err != nil {
		return r.failure(call, start, "invalid_input", err.Error())
	}

	timeout := r.timeoutFor(call.Name)
	toolCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	toolCtx = observability.AddToolCallID(toolCtx, call.ID)

	reporter := newCallReporter(call, events)
	defer reporter.stop()

	type outcome struct {
		result *ToolResult
		err    error
	}
	resultChan := make(chan outcome, 1)

	// Exactly one side claims delivery: either the handler goroutine hands
	// its outcome over, or the timeout path wins and a later outcome is
	// dropped on the floor.
	var claimed atomic.Bool

	deliver := func(out outcome) {
		if claimed.CompareAndSwap(false, true) {
			resultChan <- out
			return
		}
		r.logger.Warn(toolCtx, "tool execution completed after timeout, result discarded",
			"tool", call.Name,
			"tool_call_id", call.ID,
		)
	}

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error(toolCtx, "tool panicked",
					"tool", call.Name,
					"panic", fmt.Sprint(rec),
					"stack", string(debug.Stack()),
				)
				deliver(outcome{err: fmt.Errorf("%w: %v", ErrToolPanic, rec)})
			}
		}()

		var res *ToolResult
		var err error
		if st, streams := tool.(StreamingTool); streams && events != nil {
			res, err = st.ExecuteStreaming(toolCtx, call.Input, reporter)
		} else {
			res, err = tool.Execute(toolCtx, call.Input)
		}
		deliver(outcome{result: res, err: err})
	}()

	var out outcome
	select {
	case <-toolCtx.Done():
		if claimed.CompareAndSwap(false, true) {
			reporter.stop()
			if errors.Is(toolCtx.Err(), context.DeadlineExceeded) {
				return r.failure(call, start, "timeout", fmt.Sprintf("tool execution timed out after %v", timeout))
			}
			return r.failure(call, start, "canceled", "tool execution canceled")
		}
		// Lost the race: the handler finished first, take its outcome.
		out = <-resultChan
	case out = <-resultChan:
	}

	reporter.stop()
	duration := time.Since(start)
	if out.err != nil {
		toolErr := NewToolError(call.Name, out.err).WithToolCallID(call.ID)
		r.record(call.Name, "error", duration)
		return models.ToolResult{
			ToolCallID: call.ID,
			Content:    toolErr.Error(),
			IsError:    true,
			Err:        out.err.Error(),
			Duration:   duration,
		}
	}
	if out.result == nil {
		r.record(call.Name, "error", duration)
		return models.ToolResult{
			ToolCallID: call.ID,
			Content:    "tool returned no result",
			IsError:    true,
			Duration:   duration,
		}
	}
	status := "success"
	if out.result.IsError {
		status = "error"
	}
	r.record(call.Name, status, duration)
	return models.ToolResult{
		ToolCallID: call.ID,
		Content:    out.result.Content,
		IsError:    out.result.IsError,
		Duration:   duration,
	}
}

func (r *Runner) failure(call models.ToolCall, start time.Time, status, content string) models.ToolResult {
	duration := time.Since(start)
	r.record(call.Name, status, duration)
	return models.ToolResult{
		ToolCallID: call.ID,
		Content:    content,
		IsError:    true,
		Err:        content,
		Duration:   duration,
	}
}

func (r *Runner) record(toolName, status string, duration time.Duration) {
	if r.metrics != nil {
		r.metrics.RecordToolExecution(toolName, status, duration.Seconds())
	}
}

// callReporter forwards tool progress onto the run's event channel. Once
// stopped it drops all further updates so nothing lands after the call's
// terminal result.
type callReporter struct {
	call   models.ToolCall
	events chan<- models.StreamEvent
	done   chan struct{}
	once   sync.Once
}

func newCallReporter(call models.ToolCall, events chan<- models.StreamEvent) *callReporter {
	return &callReporter{
		call:   call,
		events: events,
		done:   make(chan struct{}),
	}
}

func (p *callReporter) stop() {
	p.once.Do(func() { close(p.done) })
}

func (p *callReporter) send(ev models.StreamEvent) {
	if p.events == nil {
		return
	}
	ev.ToolCallID = p.call.ID
	ev.ToolName = p.call.Name
	select {
	case <-p.done:
	case p.events <- ev:
	}
}

// Status implements ProgressReporter.
func (p *callReporter) Status(status string) {
	p.send(models.StreamEvent{Type: models.EventToolStatus, Status: status})
}

// Progress implements ProgressReporter.
func (p *callReporter) Progress(fraction float64) {
	p.send(models.StreamEvent{Type: models.EventToolProgress, Progress: fraction})
}

// Log implements ProgressReporter.
func (p *callReporter) Log(line string) {
	p.send(models.StreamEvent{Type: models.EventToolLog, Log: line})
}
