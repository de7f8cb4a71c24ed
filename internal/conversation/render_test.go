package conversation

import (
	"fmt"
	"io"
	"testing"

	"github.com/haasonsaas/finch/internal/observability"
	"github.com/haasonsaas/finch/pkg/models"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.LogConfig{Output: io.Discard})
}

func stateOf(t *testing.T, msgs ...models.Message) *State {
	t.Helper()
	s := NewState("sess", nil, testLogger())
	for _, m := range msgs {
		s.Append(m)
	}
	return s
}

func TestRenderUnbounded(t *testing.T) {
	s := stateOf(t, user("one"), assistant("two"), user("three"))

	got := s.Render(0)
	if len(got) != 3 {
		t.Errorf("len = %d, want 3", len(got))
	}
	got = s.Render(10)
	if len(got) != 3 {
		t.Errorf("len = %d, want all 3 when under limit", len(got))
	}
}

func TestRenderShiftsForwardPastSplitExchange(t *testing.T) {
	// 12 messages; positions 6..9 are a four-message tool exchange. A naive
	// cut at limit=5 would start at index 7, inside the exchange; the window
	// shifts forward to the next safe boundary instead.
	msgs := []models.Message{
		user("q1"),                                  // 0
		assistant("a1"),                             // 1
		user("q2"),                                  // 2
		assistant("a2"),                             // 3
		user("q3"),                                  // 4
		assistant("a3"),                             // 5
		user("q4"),                                  // 6
		assistant("", call("c1", "lookup", `{}`)),   // 7
		toolMsg("c1", "r1"),                         // 8
		assistant("a4"),                             // 9
		user("q5"),                                  // 10
		assistant("a5"),                             // 11
	}
	s := stateOf(t, msgs...)

	got := s.Render(5)

	// Naive cut lands at index 7 which happens to be safe here (its result
	// is retained), so the window is exactly 5.
	if len(got) != 5 {
		t.Fatalf("len = %d, want 5", len(got))
	}
	if got[0].Role != models.RoleAssistant || len(got[0].ToolCalls) == 0 {
		t.Errorf("window starts at %+v", got[0])
	}
	assertPaired(t, got)
}

func TestRenderNeverStartsAtToolMessage(t *testing.T) {
	msgs := []models.Message{
		user("q1"),
		assistant("", call("c1", "a", `{}`), call("c2", "b", `{}`)),
		toolMsg("c1", "r1"),
		toolMsg("c2", "r2"),
		assistant("done"),
		user("q2"),
		assistant("final"),
	}
	s := stateOf(t, msgs...)

	// limit=5 naively starts at index 2, a tool message. The window must
	// shift forward to the next safe boundary (index 4).
	got := s.Render(5)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3 after forward shift: %+v", len(got), got)
	}
	if got[0].Content != "done" {
		t.Errorf("window starts at %+v", got[0])
	}
	assertPaired(t, got)
}

func TestRenderBackwardFallbackReturnsMore(t *testing.T) {
	// One oversized exchange fills the whole tail: the only safe boundary
	// is at or before the assistant that made the calls. The window grows
	// backward past the requested limit rather than splitting the pair.
	calls := make([]models.ToolCall, 6)
	results := make([]models.Message, 6)
	for i := range calls {
		id := fmt.Sprintf("c%d", i)
		calls[i] = call(id, "batch", `{}`)
		results[i] = toolMsg(id, "r")
	}
	msgs := []models.Message{
		user("q1"),
		assistant("", calls...),
	}
	msgs = append(msgs, results...)
	s := stateOf(t, msgs...)

	got := s.Render(3)
	if len(got) <= 3 {
		t.Fatalf("len = %d, want more than requested", len(got))
	}
	// The window starts at the assistant carrying the calls (its results
	// all follow), or at the user before it.
	first := got[0]
	if first.Role == models.RoleTool {
		t.Errorf("window starts at a tool message: %+v", first)
	}
	assertPaired(t, got)
}

func TestRenderKeepsPairingAcrossArbitraryLimits(t *testing.T) {
	var msgs []models.Message
	for i := 0; i < 8; i++ {
		id := fmt.Sprintf("c%d", i)
		msgs = append(msgs,
			user(fmt.Sprintf("q%d", i)),
			assistant("", call(id, "step", `{}`)),
			toolMsg(id, "r"),
			assistant(fmt.Sprintf("a%d", i)),
		)
	}
	s := stateOf(t, msgs...)

	for limit := 1; limit <= len(msgs); limit++ {
		assertPaired(t, s.Render(limit))
	}
}

// assertPaired fails if any assistant tool call in msgs lacks a following
// result, or any tool message lacks a preceding call.
func assertPaired(t *testing.T, msgs []models.Message) {
	t.Helper()

	known := make(map[string]bool)
	for _, m := range msgs {
		switch m.Role {
		case models.RoleAssistant:
			for _, c := range m.ToolCalls {
				known[c.ID] = true
			}
		case models.RoleTool:
			if !known[m.ToolCallID] {
				t.Errorf("tool message %q has no preceding call in window", m.ToolCallID)
			}
		}
	}

	answered := make(map[string]bool)
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		switch m.Role {
		case models.RoleTool:
			answered[m.ToolCallID] = true
		case models.RoleAssistant:
			for _, c := range m.ToolCalls {
				if !answered[c.ID] {
					t.Errorf("call %q has no result in window", c.ID)
				}
			}
		}
	}
}
