package conversation

import (
	"encoding/json"

	"github.com/haasonsaas/finch/pkg/models"
)

// SanitizeReport describes what Sanitize removed.
type SanitizeReport struct {
	// RemovedCallIDs are tool call ids dropped because their arguments
	// never closed into valid JSON.
	RemovedCallIDs []string

	// DroppedMessages counts whole messages removed.
	DroppedMessages int
}

// Dirty reports whether sanitation changed anything.
func (r SanitizeReport) Dirty() bool {
	return len(r.RemovedCallIDs) > 0 || r.DroppedMessages > 0
}

// Sanitize restores the pairing invariant over raw stored history, which may
// have been cut off mid-turn by a crash or disconnect.
//
// Two passes:
//
//  1. Every assistant tool call whose arguments are not valid JSON is
//     dropped (a streamed generation was interrupted before the argument
//     payload closed) and its id recorded as removed. An assistant message
//     left with no content and no calls is dropped entirely.
//  2. Every tool message whose ToolCallID is in the removed set, or does not
//     match any surviving call of the immediately preceding assistant
//     message, is dropped (the call that would have produced it was lost).
//
// The result satisfies the pairing invariant for any prefix of history.
// Sanitize is idempotent: running it on its own output changes nothing.
func Sanitize(raw []models.Message) ([]models.Message, SanitizeReport) {
	var report SanitizeReport
	if len(raw) == 0 {
		return nil, report
	}

	pending := make(map[string]struct{})
	clean := make([]models.Message, 0, len(raw))

	clearPending := func() {
		for k := range pending {
			delete(pending, k)
		}
	}

	for _, msg := range raw {
		switch msg.Role {
		case models.RoleAssistant:
			clearPending()
			kept := make([]models.ToolCall, 0, len(msg.ToolCalls))
			for _, call := range msg.ToolCalls {
				if call.ID == "" || !json.Valid(call.Input) {
					report.RemovedCallIDs = append(report.RemovedCallIDs, call.ID)
					continue
				}
				kept = append(kept, call)
				pending[call.ID] = struct{}{}
			}
			if len(kept) == 0 && msg.Content == "" {
				report.DroppedMessages++
				continue
			}
			copied := msg
			copied.ToolCalls = kept
			clean = append(clean, copied)

		case models.RoleTool:
			if msg.ToolCallID == "" {
				report.DroppedMessages++
				continue
			}
			if _, ok := pending[msg.ToolCallID]; !ok {
				report.DroppedMessages++
				continue
			}
			delete(pending, msg.ToolCallID)
			clean = append(clean, msg)

		default:
			clearPending()
			clean = append(clean, msg)
		}
	}

	return clean, report
}
