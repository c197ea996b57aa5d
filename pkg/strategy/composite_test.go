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

type fakeStrategy struct {
	name      string
	available bool
	result    *message.ValidationResult
	err       error
	calls     int
}

func (f *fakeStrategy) Name() string                  { return f.name }
func (f *fakeStrategy) Available(context.Context) bool { return f.available }
func (f *fakeStrategy) Process(_ context.Context, _ *message.AgentMessage) (*message.ValidationResult, error) {
	f.calls++
	return f.result, f.err
}

func TestComposite_FirstAvailableWins(t *testing.T) {
	first := &fakeStrategy{name: "first", available: true, result: message.Valid("h")}
	second := &fakeStrategy{name: "second", available: true, result: message.Valid("h")}

	c := strategy.NewComposite(nil, first, second)
	res, err := c.Process(context.Background(), message.New("a", "b", "a", message.TypeCommand))
	require.NoError(t, err)
	assert.True(t, res.IsValid)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 0, second.calls)
}

func TestComposite_TransientErrorFallsThrough(t *testing.T) {
	first := &fakeStrategy{name: "first", available: true, err: errors.New("unreachable")}
	second := &fakeStrategy{name: "second", available: true, result: message.Valid("h")}

	c := strategy.NewComposite(nil, first, second)
	res, err := c.Process(context.Background(), message.New("a", "b", "a", message.TypeCommand))
	require.NoError(t, err)
	assert.True(t, res.IsValid)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
}

func TestComposite_DeterministicDenialShortCircuits(t *testing.T) {
	denial := &message.DeterministicDenial{Reason: "hash mismatch"}
	first := &fakeStrategy{name: "first", available: true, result: message.Invalid("h", "hash mismatch"), err: denial}
	second := &fakeStrategy{name: "second", available: true, result: message.Valid("h")}

	c := strategy.NewComposite(nil, first, second)
	res, err := c.Process(context.Background(), message.New("a", "b", "a", message.TypeCommand))
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 0, second.calls, "deterministic denial must not be shadowed by fallback")
}

func TestComposite_UnavailableChildIsSkipped(t *testing.T) {
	first := &fakeStrategy{name: "first", available: false}
	second := &fakeStrategy{name: "second", available: true, result: message.Valid("h")}

	c := strategy.NewComposite(nil, first, second)
	res, err := c.Process(context.Background(), message.New("a", "b", "a", message.TypeCommand))
	require.NoError(t, err)
	assert.True(t, res.IsValid)
	assert.Equal(t, 0, first.calls)
	assert.Equal(t, 1, second.calls)
}

func TestComposite_AllFail(t *testing.T) {
	first := &fakeStrategy{name: "first", available: true, err: errors.New("down")}
	second := &fakeStrategy{name: "second", available: true, err: errors.New("down too")}

	c := strategy.NewComposite(nil, first, second)
	res, err := c.Process(context.Background(), message.New("a", "b", "a", message.TypeCommand))
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.Contains(t, res.Errors, "all strategies failed")
}
