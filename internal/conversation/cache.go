package conversation

import "github.com/haasonsaas/finch/pkg/models"

// minCacheSpan is the minimum number of messages between cache boundaries;
// below this a marker costs more than the reuse it buys.
const minCacheSpan = 8

// WithCacheBoundaries returns a value copy of msgs with cache-stable
// positions marked for providers that support prefix caching. It is applied
// only to the outgoing request; the stored log never carries the markers.
//
// The last message is always marked (the whole conversation so far is a
// stable prefix for the next call). Long conversations additionally get a
// mid-conversation marker so an append-only tail does not invalidate the
// entire cached prefix.
func WithCacheBoundaries(msgs []models.Message) []models.Message {
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	if len(out) == 0 {
		return out
	}

	out[len(out)-1].CacheBoundary = true

	if len(out) >= 2*minCacheSpan {
		mid := len(out) / 2
		// Only mark a safe position; a marker inside a tool exchange would
		// move on every render.
		for i := mid; i >= minCacheSpan; i-- {
			m := out[i]
			if m.Role == models.RoleUser || (m.Role == models.RoleAssistant && len(m.ToolCalls) == 0) {
				out[i].CacheBoundary = true
				break
			}
		}
	}

	return out
}
