package agent

import (
	"sync/atomic"

	"github.com/haasonsaas/finch/pkg/models"
)

// Emitter stamps outbound events with a per-run monotonic sequence and the
// current iteration, then delivers them on the run's output channel.
type Emitter struct {
	runID    string
	out      chan<- models.StreamEvent
	sequence uint64
	iter     atomic.Int64
}

// NewEmitter creates an emitter writing to out.
func NewEmitter(runID string, out chan<- models.StreamEvent) *Emitter {
	return &Emitter{runID: runID, out: out}
}

// SetIteration updates the iteration stamped on subsequent events.
func (e *Emitter) SetIteration(i int) {
	e.iter.Store(int64(i))
}

// Emit assigns the next sequence number and delivers the event.
func (e *Emitter) Emit(ev models.StreamEvent) {
	ev.Sequence = atomic.AddUint64(&e.sequence, 1)
	ev.Iteration = int(e.iter.Load())
	e.out <- ev
}
