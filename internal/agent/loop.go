package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/finch/internal/conversation"
	"github.com/haasonsaas/finch/internal/observability"
	"github.com/haasonsaas/finch/internal/sessions"
	"github.com/haasonsaas/finch/pkg/models"
)

// LoopConfig configures one agent loop.
type LoopConfig struct {
	// Model selects the provider model. Empty uses the provider default.
	Model string

	// SystemPrompt sets the assistant's behavior.
	SystemPrompt string

	// MaxIterations bounds model/tool round trips per run. Default: 10.
	MaxIterations int

	// MaxTokens limits each model response. 0 uses the provider default.
	MaxTokens int

	// HistoryLimit bounds how many messages are rendered into each request.
	// 0 means unbounded. Default: 100.
	HistoryLimit int

	// MaxAssistantBytes bounds accumulated assistant text per iteration.
	// Default: 256 KiB.
	MaxAssistantBytes int

	// EventBuffer sizes the run's output channel. Default: 64.
	EventBuffer int
}

// DefaultLoopConfig returns the default loop settings.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		MaxIterations:     10,
		HistoryLimit:      100,
		MaxAssistantBytes: 256 << 10,
		EventBuffer:       64,
	}
}

func (c *LoopConfig) applyDefaults() {
	def := DefaultLoopConfig()
	if c.MaxIterations <= 0 {
		c.MaxIterations = def.MaxIterations
	}
	if c.HistoryLimit < 0 {
		c.HistoryLimit = def.HistoryLimit
	}
	if c.MaxAssistantBytes <= 0 {
		c.MaxAssistantBytes = def.MaxAssistantBytes
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = def.EventBuffer
	}
}

// Loop is the turn state machine: it alternates model calls and tool batches
// until the model stops requesting tools or the iteration cap is hit.
//
// One Loop drives one conversation; the conversation state is owned by the
// run goroutine and never shared. Hitting the iteration cap is a degraded
// turn_end, not an error. An upstream model fault terminates the run with an
// error event; work already appended stays appended.
type Loop struct {
	provider LLMProvider
	registry *Registry
	executor *Executor
	store    sessions.Store
	state    *conversation.State
	config   LoopConfig
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewLoop creates a loop over the given collaborators. store and metrics may
// be nil; everything else is required.
func NewLoop(provider LLMProvider, registry *Registry, executor *Executor, store sessions.Store, state *conversation.State, config LoopConfig, logger *observability.Logger, metrics *observability.Metrics) (*Loop, error) {
	if provider == nil {
		return nil, ErrNoProvider
	}
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if state == nil {
		return nil, fmt.Errorf("conversation state is required")
	}
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{})
	}
	config.applyDefaults()
	return &Loop{
		provider: provider,
		registry: registry,
		executor: executor,
		store:    store,
		state:    state,
		config:   config,
		logger:   logger,
		metrics:  metrics,
	}, nil
}

// Run appends the user message and starts one run. The returned channel
// carries the run's events and is closed after the terminal event (done or
// error).
func (l *Loop) Run(ctx context.Context, userText string) (<-chan models.StreamEvent, error) {
	user := l.state.Append(models.Message{
		ID:        uuid.NewString(),
		Role:      models.RoleUser,
		Content:   userText,
		CreatedAt: time.Now(),
	})
	l.persist(ctx, user)

	out := make(chan models.StreamEvent, l.config.EventBuffer)
	go l.run(ctx, out)
	return out, nil
}

func (l *Loop) run(ctx context.Context, out chan<- models.StreamEvent) {
	defer close(out)

	runID := uuid.NewString()
	ctx = observability.AddRunID(ctx, runID)
	ctx = observability.AddSessionID(ctx, l.state.SessionID())

	emitter := NewEmitter(runID, out)
	stats := NewRunStats(runID)

	l.logger.Info(ctx, "run started",
		"provider", l.provider.Name(),
		"model", l.config.Model,
		"tools", len(l.registry.Names()),
	)

	for iteration := 0; iteration < l.config.MaxIterations; iteration++ {
		emitter.SetIteration(iteration)
		stats.Iterations++

		assistant, err := l.streamOnce(ctx, emitter, stats)
		if err != nil {
			loopErr := &LoopError{Phase: PhaseStream, Iteration: iteration, Cause: err}
			l.logger.Error(ctx, "model stream failed", "iteration", iteration, "error", err)
			if l.metrics != nil {
				l.metrics.RecordError("loop", "stream")
			}
			stats.Errors++
			emitter.Emit(models.StreamEvent{Type: models.EventError, Message: loopErr.Error()})
			l.finish(ctx, stats, "error")
			return
		}

		// The assistant message is appended before its tools run so an
		// interruption leaves a prefix that sanitation can repair.
		stored := l.state.Append(*assistant)
		l.persist(context.WithoutCancel(ctx), stored)

		if !stored.HasToolCalls() {
			emitter.Emit(models.StreamEvent{Type: models.EventTurnEnd, Text: stored.Content})
			emitter.Emit(models.StreamEvent{Type: models.EventDone})
			l.finish(ctx, stats, "completed")
			return
		}

		batch := l.executor.Execute(ctx, stored.ToolCalls, emitter.Emit)
		stats.ToolCalls += len(stored.ToolCalls)

		// The batch ran to completion; its appends must not be torn by a
		// caller cancellation landing mid-write.
		appendCtx := context.WithoutCancel(ctx)
		for _, msg := range batch.ToolMessages {
			l.persist(appendCtx, l.state.Append(msg))
		}

		if ctx.Err() != nil {
			loopErr := &LoopError{Phase: PhaseExecuteTools, Iteration: iteration, Message: "run canceled", Cause: ctx.Err()}
			l.logger.Info(ctx, "run canceled", "iteration", iteration)
			emitter.Emit(models.StreamEvent{Type: models.EventError, Message: loopErr.Error()})
			l.finish(ctx, stats, "canceled")
			return
		}
	}

	// Model never stopped asking for tools. Degrade, don't error.
	msg := fmt.Sprintf("reached the maximum of %d tool iterations before a final response", l.config.MaxIterations)
	l.logger.Warn(ctx, "iteration cap reached", "max_iterations", l.config.MaxIterations)
	emitter.Emit(models.StreamEvent{Type: models.EventTurnEnd, Message: msg})
	emitter.Emit(models.StreamEvent{Type: models.EventDone})
	l.finish(ctx, stats, "iteration_cap")
}

// streamOnce performs one model call, forwarding text deltas as they arrive
// and accumulating tool calls until the stream ends.
func (l *Loop) streamOnce(ctx context.Context, emitter *Emitter, stats *RunStats) (*models.Message, error) {
	msgs := l.state.Render(l.config.HistoryLimit)
	msgs = conversation.WithCacheBoundaries(msgs)

	req := &CompletionRequest{
		Model:     l.config.Model,
		System:    l.config.SystemPrompt,
		Messages:  msgs,
		Tools:     l.registry.Schemas(),
		MaxTokens: l.config.MaxTokens,
	}

	start := time.Now()
	chunks, err := l.provider.Complete(ctx, req)
	if err != nil {
		l.recordLLM("error", start, 0, 0)
		return nil, err
	}

	var text strings.Builder
	var toolCalls []models.ToolCall
	var textOverflow bool

	for chunk := range chunks {
		switch {
		case chunk.Error != nil:
			l.recordLLM("error", start, 0, 0)
			return nil, chunk.Error

		case chunk.ToolCall != nil:
			toolCalls = append(toolCalls, *chunk.ToolCall)

		case chunk.Text != "":
			if text.Len()+len(chunk.Text) > l.config.MaxAssistantBytes {
				if !textOverflow {
					textOverflow = true
					l.logger.Warn(ctx, "assistant text exceeded accumulation bound, dropping further deltas",
						"max_bytes", l.config.MaxAssistantBytes,
					)
				}
				continue
			}
			text.WriteString(chunk.Text)
			emitter.Emit(models.NewMessageDelta(chunk.Text))

		case chunk.Done:
			stats.AddUsage(chunk.InputTokens, chunk.OutputTokens)
			l.recordLLM("success", start, chunk.InputTokens, chunk.OutputTokens)
		}
	}

	return &models.Message{
		ID:        uuid.NewString(),
		Role:      models.RoleAssistant,
		Content:   text.String(),
		ToolCalls: toolCalls,
		CreatedAt: time.Now(),
	}, nil
}

func (l *Loop) recordLLM(status string, start time.Time, inputTokens, outputTokens int) {
	if l.metrics == nil {
		return
	}
	l.metrics.RecordLLMRequest(l.provider.Name(), l.config.Model, status, time.Since(start).Seconds(), inputTokens, outputTokens)
}

func (l *Loop) finish(ctx context.Context, stats *RunStats, status string) {
	stats.Flush(l.metrics, status)
	l.logger.Info(ctx, "run finished",
		"status", status,
		"iterations", stats.Iterations,
		"tool_calls", stats.ToolCalls,
		"input_tokens", stats.InputTokens,
		"output_tokens", stats.OutputTokens,
		"wall_time_ms", stats.WallTime().Milliseconds(),
	)
}

func (l *Loop) persist(ctx context.Context, msg models.Message) {
	if l.store == nil {
		return
	}
	if err := l.store.AppendMessage(ctx, l.state.SessionID(), &msg); err != nil {
		l.logger.Error(ctx, "failed to persist message",
			"message_id", msg.ID,
			"role", string(msg.Role),
			"error", err,
		)
		if l.metrics != nil {
			l.metrics.RecordError("store", "append")
		}
	}
}
