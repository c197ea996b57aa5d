package strategy_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acgs/agentbus/pkg/message"
	"github.com/acgs/agentbus/pkg/strategy"
)

func TestRunHandlers_InvokesRegisteredHandler(t *testing.T) {
	var ran bool
	handlers := strategy.HandlerSet{
		message.TypeCommand: {
			func(context.Context, *message.AgentMessage) error { ran = true; return nil },
		},
	}

	msg := message.New("a", "b", "a", message.TypeCommand)
	result := strategy.RunHandlers(context.Background(), msg, handlers, message.Valid(msg.ConstitutionalHash))

	require.NotNil(t, result)
	assert.True(t, result.IsValid)
	assert.True(t, ran)
}

func TestRunHandlers_FailureInvalidatesResult(t *testing.T) {
	handlers := strategy.HandlerSet{
		message.TypeCommand: {
			func(context.Context, *message.AgentMessage) error { return errors.New("boom") },
		},
	}

	msg := message.New("a", "b", "a", message.TypeCommand)
	result := strategy.RunHandlers(context.Background(), msg, handlers, message.Valid(msg.ConstitutionalHash))

	assert.False(t, result.IsValid)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "boom")
}

func TestRunHandlers_RunsOnlyHandlersForMessageType(t *testing.T) {
	var commandRan, eventRan bool
	handlers := strategy.HandlerSet{
		message.TypeCommand: {
			func(context.Context, *message.AgentMessage) error { commandRan = true; return nil },
		},
		message.TypeEvent: {
			func(context.Context, *message.AgentMessage) error { eventRan = true; return nil },
		},
	}

	msg := message.New("a", "b", "a", message.TypeCommand)
	strategy.RunHandlers(context.Background(), msg, handlers, message.Valid(msg.ConstitutionalHash))

	assert.True(t, commandRan)
	assert.False(t, eventRan)
}
