package deliberation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acgs/agentbus/pkg/deliberation"
	"github.com/acgs/agentbus/pkg/message"
)

func TestShouldDivert(t *testing.T) {
	assert.True(t, deliberation.ShouldDivert(0.8))
	assert.True(t, deliberation.ShouldDivert(0.95))
	assert.False(t, deliberation.ShouldDivert(0.79))
}

func TestEnqueue_SetsStatus(t *testing.T) {
	q := deliberation.NewQueue()
	m := message.New("a", "b", "a", message.TypeCommand)

	q.Enqueue(m, 0.9, map[string]any{"reason": "high impact"})
	assert.Equal(t, message.StatusPendingDeliberation, m.Status)
	assert.Equal(t, 1, q.Len())
}

func TestNext_FIFO(t *testing.T) {
	q := deliberation.NewQueue()
	m1 := message.New("a", "b", "a", message.TypeCommand)
	m2 := message.New("a", "c", "a", message.TypeCommand)
	q.Enqueue(m1, 0.9, nil)
	q.Enqueue(m2, 0.85, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	e1, ok := q.Next(ctx)
	require.True(t, ok)
	assert.Equal(t, m1.MessageID, e1.Message.MessageID)

	e2, ok := q.Next(ctx)
	require.True(t, ok)
	assert.Equal(t, m2.MessageID, e2.Message.MessageID)
}

func TestNext_ContextCancelled(t *testing.T) {
	q := deliberation.NewQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, ok := q.Next(ctx)
	assert.False(t, ok)
}

func TestClose_UnblocksWaiters(t *testing.T) {
	q := deliberation.NewQueue()
	done := make(chan bool, 1)
	go func() {
		_, ok := q.Next(context.Background())
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Next did not unblock after Close")
	}
}
