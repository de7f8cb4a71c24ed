package conversation

import (
	"context"

	"github.com/haasonsaas/finch/pkg/models"
)

// Render returns an ordered view of the log bounded to roughly limit
// messages, cut only at a safe boundary so no tool exchange is ever split.
//
// A safe boundary is a user message, an assistant message without tool
// calls, or an assistant message whose every tool call has a matching result
// inside the retained window. Starting from the naive cut at len-limit the
// scan moves forward; if no boundary exists ahead (the window landed inside
// one oversized exchange) it walks backward instead, returning more messages
// than requested rather than splitting a pair.
//
// limit <= 0 means no bound.
func (s *State) Render(limit int) []models.Message {
	msgs := s.messages
	if limit <= 0 || len(msgs) <= limit {
		out := make([]models.Message, len(msgs))
		copy(out, msgs)
		return out
	}

	naive := len(msgs) - limit

	// Forward scan.
	for i := naive; i < len(msgs); i++ {
		if s.safeBoundary(i) {
			if i != naive {
				s.logger.Debug(context.Background(), "render window shifted forward",
					"session_id", s.sessionID,
					"requested", limit,
					"returned", len(msgs)-i,
				)
			}
			return copySlice(msgs[i:])
		}
	}

	// Everything ahead of the naive cut sits inside one exchange. Walk
	// backward and take the larger window.
	for i := naive - 1; i >= 0; i-- {
		if s.safeBoundary(i) {
			s.logger.Debug(context.Background(), "render window shifted backward",
				"session_id", s.sessionID,
				"requested", limit,
				"returned", len(msgs)-i,
			)
			return copySlice(msgs[i:])
		}
	}

	return copySlice(msgs)
}

// safeBoundary reports whether the window may start at index i without
// violating the pairing invariant.
func (s *State) safeBoundary(i int) bool {
	msg := s.messages[i]
	switch msg.Role {
	case models.RoleUser:
		return true
	case models.RoleAssistant:
		if len(msg.ToolCalls) == 0 {
			return true
		}
		return s.resultsFollow(i, msg.ToolCalls)
	default:
		return false
	}
}

// resultsFollow reports whether every tool call of the assistant message at
// index i has a matching tool result later in the log.
func (s *State) resultsFollow(i int, calls []models.ToolCall) bool {
	answered := make(map[string]bool, len(calls))
	for _, m := range s.messages[i+1:] {
		if m.Role == models.RoleTool && m.ToolCallID != "" {
			answered[m.ToolCallID] = true
		}
	}
	for _, call := range calls {
		if !answered[call.ID] {
			return false
		}
	}
	return true
}

func copySlice(msgs []models.Message) []models.Message {
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	return out
}
