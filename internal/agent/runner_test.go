package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/finch/pkg/models"
)

func newTestRunner(t *testing.T, tools ...Tool) *Runner {
	t.Helper()
	r := NewRegistry()
	for _, tool := range tools {
		if err := r.Register(tool); err != nil {
			t.Fatalf("Register %s: %v", tool.Name(), err)
		}
	}
	return NewRunner(r, RunnerConfig{DefaultTimeout: 2 * time.Second}, testLogger(), nil)
}

func TestRunnerSuccess(t *testing.T) {
	runner := newTestRunner(t, okTool("echo"))

	result := runner.Run(context.Background(), models.ToolCall{
		ID:    "call_1",
		Name:  "echo",
		Input: json.RawMessage(`{}`),
	}, nil)

	if result.IsError {
		t.Fatalf("unexpected error result: %s", result.Content)
	}
	if result.Content != "ok" {
		t.Errorf("Content = %q, want ok", result.Content)
	}
	if result.ToolCallID != "call_1" {
		t.Errorf("ToolCallID = %q, want call_1", result.ToolCallID)
	}
	if result.Duration <= 0 {
		t.Error("expected positive duration")
	}
}

func TestRunnerUnknownTool(t *testing.T) {
	runner := newTestRunner(t)

	result := runner.Run(context.Background(), models.ToolCall{
		ID:    "call_1",
		Name:  "ghost",
		Input: json.RawMessage(`{}`),
	}, nil)

	if !result.IsError {
		t.Fatal("expected failure result")
	}
	if !strings.Contains(result.Content, "tool not found: ghost") {
		t.Errorf("Content = %q, want tool-not-found message", result.Content)
	}
}

func TestRunnerInvalidInput(t *testing.T) {
	tool := okTool("strict")
	tool.schema = `{"type":"object","properties":{"n":{"type":"integer"}},"required":["n"]}`
	runner := newTestRunner(t, tool)

	result := runner.Run(context.Background(), models.ToolCall{
		ID:    "call_1",
		Name:  "strict",
		Input: json.RawMessage(`{"n":"nope"}`),
	}, nil)

	if !result.IsError {
		t.Fatal("expected failure result for invalid input")
	}
}

func TestRunnerHandlerError(t *testing.T) {
	tool := &mockTool{
		name: "flaky",
		execute: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
			return nil, errors.New("backend unavailable")
		},
	}
	runner := newTestRunner(t, tool)

	result := runner.Run(context.Background(), models.ToolCall{ID: "c", Name: "flaky"}, nil)
	if !result.IsError {
		t.Fatal("expected failure result")
	}
	if result.Err != "backend unavailable" {
		t.Errorf("Err = %q, want backend unavailable", result.Err)
	}
}

func TestRunnerErrorResultFromTool(t *testing.T) {
	tool := &mockTool{
		name: "refuser",
		execute: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
			return &ToolResult{Content: "no such file", IsError: true}, nil
		},
	}
	runner := newTestRunner(t, tool)

	result := runner.Run(context.Background(), models.ToolCall{ID: "c", Name: "refuser"}, nil)
	if !result.IsError {
		t.Fatal("expected error result to pass through")
	}
	if result.Content != "no such file" {
		t.Errorf("Content = %q, want no such file", result.Content)
	}
}

func TestRunnerNilResult(t *testing.T) {
	tool := &mockTool{
		name: "voids",
		execute: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
			return nil, nil
		},
	}
	runner := newTestRunner(t, tool)

	result := runner.Run(context.Background(), models.ToolCall{ID: "c", Name: "voids"}, nil)
	if !result.IsError {
		t.Fatal("expected failure for nil result")
	}
	if !strings.Contains(result.Content, "no result") {
		t.Errorf("Content = %q, want no-result message", result.Content)
	}
}

func TestRunnerPanicIsolation(t *testing.T) {
	tool := &mockTool{
		name: "bomb",
		execute: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
			panic("kaboom")
		},
	}
	runner := newTestRunner(t, tool)

	result := runner.Run(context.Background(), models.ToolCall{ID: "c", Name: "bomb"}, nil)
	if !result.IsError {
		t.Fatal("expected failure result from panic")
	}
	if !strings.Contains(result.Err, "kaboom") {
		t.Errorf("Err = %q, want panic payload", result.Err)
	}
}

func TestRunnerTimeout(t *testing.T) {
	release := make(chan struct{})
	tool := &mockTool{
		name: "sleeper",
		execute: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
			select {
			case <-release:
				return &ToolResult{Content: "late"}, nil
			case <-ctx.Done():
				<-release
				return &ToolResult{Content: "late"}, nil
			}
		},
	}
	registry := NewRegistry()
	if err := registry.Register(tool); err != nil {
		t.Fatalf("Register: %v", err)
	}
	runner := NewRunner(registry, RunnerConfig{DefaultTimeout: 30 * time.Millisecond}, testLogger(), nil)

	start := time.Now()
	result := runner.Run(context.Background(), models.ToolCall{ID: "c", Name: "sleeper"}, nil)
	close(release)

	if !result.IsError {
		t.Fatal("expected timeout failure")
	}
	if !strings.Contains(result.Content, "timed out") {
		t.Errorf("Content = %q, want timeout message", result.Content)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout took %v, expected prompt return", elapsed)
	}
}

func TestRunnerPerToolTimeoutOverride(t *testing.T) {
	tool := &mockTool{
		name: "slow",
		execute: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
			select {
			case <-time.After(60 * time.Millisecond):
				return &ToolResult{Content: "done"}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
	registry := NewRegistry()
	if err := registry.Register(tool); err != nil {
		t.Fatalf("Register: %v", err)
	}

	// Default timeout would kill it; the override gives it room.
	runner := NewRunner(registry, RunnerConfig{
		DefaultTimeout: 10 * time.Millisecond,
		ToolTimeouts:   map[string]time.Duration{"slow": time.Second},
	}, testLogger(), nil)

	result := runner.Run(context.Background(), models.ToolCall{ID: "c", Name: "slow"}, nil)
	if result.IsError {
		t.Fatalf("expected success under per-tool timeout, got: %s", result.Content)
	}
}

func TestRunnerCancellation(t *testing.T) {
	tool := &mockTool{
		name: "patient",
		execute: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	runner := newTestRunner(t, tool)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	result := runner.Run(ctx, models.ToolCall{ID: "c", Name: "patient"}, nil)
	if !result.IsError {
		t.Fatal("expected failure on cancellation")
	}
	if !strings.Contains(result.Content, "canceled") {
		t.Errorf("Content = %q, want canceled message", result.Content)
	}
}

func TestRunnerStreamingProgressEvents(t *testing.T) {
	tool := &mockStreamingTool{
		mockTool: mockTool{name: "streamer"},
		executeStreaming: func(ctx context.Context, params json.RawMessage, reporter ProgressReporter) (*ToolResult, error) {
			reporter.Status("warming up")
			reporter.Progress(0.5)
			reporter.Log("halfway there")
			return &ToolResult{Content: "finished"}, nil
		},
	}
	runner := newTestRunner(t, tool)

	events := make(chan models.StreamEvent, 16)
	result := runner.Run(context.Background(), models.ToolCall{ID: "call_s", Name: "streamer"}, events)
	close(events)

	if result.IsError {
		t.Fatalf("unexpected failure: %s", result.Content)
	}

	collected := drainEvents(events)
	if len(collected) != 3 {
		t.Fatalf("got %d progress events, want 3", len(collected))
	}
	if collected[0].Type != models.EventToolStatus || collected[0].Status != "warming up" {
		t.Errorf("event 0 = %+v, want status event", collected[0])
	}
	if collected[1].Type != models.EventToolProgress || collected[1].Progress != 0.5 {
		t.Errorf("event 1 = %+v, want progress event", collected[1])
	}
	if collected[2].Type != models.EventToolLog || collected[2].Log != "halfway there" {
		t.Errorf("event 2 = %+v, want log event", collected[2])
	}
	for i, ev := range collected {
		if ev.ToolCallID != "call_s" || ev.ToolName != "streamer" {
			t.Errorf("event %d missing call identity: %+v", i, ev)
		}
	}
}

func TestRunnerStreamingToolWithoutChannelFallsBackToExecute(t *testing.T) {
	executed := false
	tool := &mockStreamingTool{
		mockTool: mockTool{
			name: "dual",
			execute: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
				executed = true
				return &ToolResult{Content: "plain"}, nil
			},
		},
		executeStreaming: func(ctx context.Context, params json.RawMessage, reporter ProgressReporter) (*ToolResult, error) {
			t.Error("ExecuteStreaming must not be called without an event channel")
			return nil, nil
		},
	}
	runner := newTestRunner(t, tool)

	result := runner.Run(context.Background(), models.ToolCall{ID: "c", Name: "dual"}, nil)
	if !executed {
		t.Error("Execute was not called")
	}
	if result.Content != "plain" {
		t.Errorf("Content = %q, want plain", result.Content)
	}
}

func TestRunnerProgressAfterCompletionIsDropped(t *testing.T) {
	var reporterRef ProgressReporter
	tool := &mockStreamingTool{
		mockTool: mockTool{name: "lingerer"},
		executeStreaming: func(ctx context.Context, params json.RawMessage, reporter ProgressReporter) (*ToolResult, error) {
			reporterRef = reporter
			return &ToolResult{Content: "done"}, nil
		},
	}
	runner := newTestRunner(t, tool)

	events := make(chan models.StreamEvent, 16)
	runner.Run(context.Background(), models.ToolCall{ID: "c", Name: "lingerer"}, events)

	// The call is over; a late report must not land on the channel.
	reporterRef.Status("too late")
	close(events)

	if got := len(drainEvents(events)); got != 0 {
		t.Errorf("got %d events after completion, want 0", got)
	}
}
