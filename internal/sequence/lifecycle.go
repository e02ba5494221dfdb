package sequence

import (
	"container/heap"
	"fmt"
	"time"

	"github.com/lightshow/fxrunner/internal/effect"
)

// Phase is the lifecycle phase of a loaded event.
type Phase int

const (
	// Scheduled events wait in the pending queue until FireAt.
	Scheduled Phase = iota
	// Active events have running effects.
	Active
	// Expired events ran to the end of their window, or were due only after
	// their window had already closed.
	Expired
	// Cancelled events were dropped by a stop or a track change.
	Cancelled
)

func (p Phase) String() string {
	switch p {
	case Scheduled:
		return "scheduled"
	case Active:
		return "active"
	case Expired:
		return "expired"
	case Cancelled:
		return "cancelled"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Lifecycle describes where an event is in its lifecycle. FireAt is set while
// Scheduled, Since once the event became Active.
type Lifecycle struct {
	Phase  Phase
	FireAt time.Duration
	Since  time.Time
}

type entry struct {
	event     Event
	builder   effect.Builder
	lifecycle Lifecycle

	// position in pendingQueue, -1 when not queued
	index int
	seq   int
}

// pendingQueue is a min-heap of scheduled entries ordered by fire offset,
// then event id, then load order.
type pendingQueue []*entry

var _ heap.Interface = (*pendingQueue)(nil)

func (q pendingQueue) Len() int { return len(q) }

func (q pendingQueue) Less(i, j int) bool {
	a, b := q[i], q[j]
	if a.lifecycle.FireAt != b.lifecycle.FireAt {
		return a.lifecycle.FireAt < b.lifecycle.FireAt
	}
	if a.event.ID != b.event.ID {
		return a.event.ID < b.event.ID
	}
	return a.seq < b.seq
}

func (q pendingQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *pendingQueue) Push(x any) {
	e := x.(*entry)
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *pendingQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}

// peek returns the next entry to fire without removing it.
func (q pendingQueue) peek() *entry {
	if len(q) == 0 {
		return nil
	}
	return q[0]
}
