// Package conversation owns the ordered message log for one session and the
// invariants that make multi-turn tool calling safe: every rendered view
// keeps tool-call-bearing assistant messages paired with their results, no
// matter where storage was interrupted or where a window boundary lands.
package conversation

import (
	"context"

	"github.com/haasonsaas/finch/internal/observability"
	"github.com/haasonsaas/finch/pkg/models"
)

// State is the in-memory message log for one session. It is owned by a
// single loop goroutine and is not safe for concurrent use.
type State struct {
	sessionID string
	messages  []models.Message
	nextSeq   int64
	logger    *observability.Logger
}

// NewState builds a state from raw stored history. The history is sanitized
// first (see Sanitize); sequence numbering continues after the highest
// surviving entry.
func NewState(sessionID string, history []models.Message, logger *observability.Logger) *State {
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{})
	}

	clean, report := Sanitize(history)
	if report.Dirty() {
		logger.Warn(context.Background(), "sanitized stored history",
			"session_id", sessionID,
			"dropped_tool_calls", len(report.RemovedCallIDs),
			"dropped_messages", report.DroppedMessages,
		)
	}

	var nextSeq int64
	for _, m := range clean {
		if m.Sequence >= nextSeq {
			nextSeq = m.Sequence + 1
		}
	}

	return &State{
		sessionID: sessionID,
		messages:  clean,
		nextSeq:   nextSeq,
		logger:    logger,
	}
}

// SessionID returns the owning session's ID.
func (s *State) SessionID() string {
	return s.sessionID
}

// Append assigns the next sequence number, stamps the session ID, and stores
// the message. Prior entries are never mutated. The stored copy is returned.
func (s *State) Append(msg models.Message) models.Message {
	msg.SessionID = s.sessionID
	msg.Sequence = s.nextSeq
	s.nextSeq++
	s.messages = append(s.messages, msg)
	return msg
}

// Len returns the number of stored messages.
func (s *State) Len() int {
	return len(s.messages)
}

// Messages returns a copy of the full log.
func (s *State) Messages() []models.Message {
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Last returns the most recent message, or nil when the log is empty.
func (s *State) Last() *models.Message {
	if len(s.messages) == 0 {
		return nil
	}
	m := s.messages[len(s.messages)-1]
	return &m
}
