package agent

import (
	"time"

	"github.com/haasonsaas/finch/internal/observability"
)

// RunStats accumulates usage for one run. The loop goroutine owns it; nothing
// here is shared across runs, and the totals reach the metrics registry in
// one flush at turn end.
type RunStats struct {
	RunID        string
	StartedAt    time.Time
	FinishedAt   time.Time
	Iterations   int
	ToolCalls    int
	InputTokens  int
	OutputTokens int
	Errors       int
}

// NewRunStats starts tracking a run.
func NewRunStats(runID string) *RunStats {
	return &RunStats{RunID: runID, StartedAt: time.Now()}
}

// AddUsage records token usage from one completed model request.
func (s *RunStats) AddUsage(inputTokens, outputTokens int) {
	s.InputTokens += inputTokens
	s.OutputTokens += outputTokens
}

// WallTime returns the run's elapsed time so far, or its final duration once
// flushed.
func (s *RunStats) WallTime() time.Duration {
	if s.FinishedAt.IsZero() {
		return time.Since(s.StartedAt)
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Flush marks the run finished and pushes run-level totals to metrics.
// Token counters are recorded per model request, not here. Metrics may be nil.
func (s *RunStats) Flush(m *observability.Metrics, status string) {
	s.FinishedAt = time.Now()
	if m == nil {
		return
	}
	m.RecordRun(status, s.WallTime().Seconds())
	if s.Iterations > 0 {
		m.IterationCounter.Add(float64(s.Iterations))
	}
}
