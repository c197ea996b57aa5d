package bus

import (
	"context"
	"sync"
	"time"

	"github.com/acgs/agentbus/pkg/message"
)

// inbox is the bus's unbounded internal delivery queue: messages
// routed locally (no Kafka, or alongside it) land here until a
// caller's Receive pops them. Condition-variable based like
// pkg/deliberation.Queue, but bounded by a caller timeout rather than
// context cancellation alone.
type inbox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []*message.AgentMessage
	closed bool
}

func newInbox() *inbox {
	in := &inbox{}
	in.cond = sync.NewCond(&in.mu)
	return in
}

func (b *inbox) push(msg *message.AgentMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.items = append(b.items, msg)
	b.cond.Signal()
}

// pop blocks until a message is available, the timeout elapses, or the
// inbox is closed. A zero or negative timeout blocks indefinitely
// until one of the other two conditions.
func (b *inbox) pop(ctx context.Context, timeout time.Duration) (*message.AgentMessage, bool) {
	done := make(chan struct{})
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	go func() {
		select {
		case <-ctx.Done():
			b.mu.Lock()
			b.cond.Broadcast()
			b.mu.Unlock()
		case <-done:
		}
	}()
	defer close(done)

	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.items) == 0 && !b.closed {
		if ctx.Err() != nil {
			return nil, false
		}
		b.cond.Wait()
	}
	if len(b.items) == 0 {
		return nil, false
	}
	msg := b.items[0]
	b.items = b.items[1:]
	return msg, true
}

func (b *inbox) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

func (b *inbox) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.cond.Broadcast()
}
