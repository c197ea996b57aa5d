// Package deliberation implements the divert queue messages are
// enqueued to instead of being delivered, once their impact score
// crosses the deliberation threshold. An external approval-chain
// engine eventually resolves entries; this package only owns the
// queue and the divert decision.
package deliberation

import (
	"context"
	"sync"
	"time"

	"github.com/acgs/agentbus/pkg/message"
)

// DefaultThreshold is the impact score at or above which a message is
// diverted instead of delivered.
const DefaultThreshold = 0.8

// Entry is one diverted message awaiting human/committee review.
type Entry struct {
	Message    *message.AgentMessage
	ImpactScore float64
	Metadata   map[string]any
	EnqueuedAt time.Time
}

// Queue is an in-process, unbounded FIFO for diverted messages. A
// separate approval-chain process (out of scope for this core) drains
// it via Next and may report outcomes back via Resolve.
type Queue struct {
	mu        sync.Mutex
	cond      *sync.Cond
	entries   []Entry
	closed    bool
	threshold *AdaptiveThreshold
}

// NewQueue builds an empty deliberation queue using the fixed
// DefaultThreshold.
func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// NewQueueWithThreshold builds an empty deliberation queue whose
// divert threshold adapts as resolved outcomes are fed back through
// Resolve, instead of staying fixed at DefaultThreshold.
func NewQueueWithThreshold(t *AdaptiveThreshold) *Queue {
	q := NewQueue()
	q.threshold = t
	return q
}

// ShouldDivert reports whether impactScore crosses the fixed
// DefaultThreshold. Kept as a package function for callers with no
// adaptive threshold configured.
func ShouldDivert(impactScore float64) bool {
	return impactScore >= DefaultThreshold
}

// ShouldDivert reports whether impactScore crosses this queue's
// divert threshold: the adaptive threshold's current value when one
// is configured, DefaultThreshold otherwise.
func (q *Queue) ShouldDivert(impactScore float64) bool {
	q.mu.Lock()
	t := q.threshold
	q.mu.Unlock()
	if t == nil {
		return ShouldDivert(impactScore)
	}
	return impactScore >= t.Value()
}

// Resolve folds a diverted entry's real-world outcome back into the
// adaptive threshold, when one is configured. outcomeSuccess reports
// whether diverting entry turned out to be the right call;
// humanFeedback optionally carries a reviewer's override of that
// assessment. No-op when the queue has no adaptive threshold.
func (q *Queue) Resolve(entry Entry, outcomeSuccess bool, humanFeedback *bool) {
	q.mu.Lock()
	t := q.threshold
	q.mu.Unlock()
	if t == nil {
		return
	}
	t.RecordOutcome(entry.ImpactScore, outcomeSuccess, humanFeedback)
}

// Enqueue adds a diverted message and marks msg.Status accordingly.
func (q *Queue) Enqueue(msg *message.AgentMessage, impactScore float64, metadata map[string]any) {
	msg.Status = message.StatusPendingDeliberation
	msg.Touch()

	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, Entry{
		Message:     msg,
		ImpactScore: impactScore,
		Metadata:    metadata,
		EnqueuedAt:  time.Now().UTC(),
	})
	q.cond.Signal()
}

// Next blocks until an entry is available, ctx is cancelled, or the
// queue is closed, matching the bus's cooperative suspension-point
// model for queue pops.
func (q *Queue) Next(ctx context.Context) (Entry, bool) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			q.mu.Lock()
			q.cond.Broadcast()
			q.mu.Unlock()
		case <-done:
		}
	}()
	defer close(done)

	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.entries) == 0 && !q.closed {
		if ctx.Err() != nil {
			return Entry{}, false
		}
		q.cond.Wait()
	}
	if len(q.entries) == 0 {
		return Entry{}, false
	}
	e := q.entries[0]
	q.entries = q.entries[1:]
	return e, true
}

// Len reports the current queue depth, for the queue-depth gauge.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Close unblocks any waiters in Next with ok=false.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
