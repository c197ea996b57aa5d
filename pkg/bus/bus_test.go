package bus_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acgs/agentbus/pkg/bus"
	"github.com/acgs/agentbus/pkg/deliberation"
	"github.com/acgs/agentbus/pkg/identity"
	"github.com/acgs/agentbus/pkg/impact"
	"github.com/acgs/agentbus/pkg/injection"
	"github.com/acgs/agentbus/pkg/message"
	"github.com/acgs/agentbus/pkg/processor"
	"github.com/acgs/agentbus/pkg/registry"
	"github.com/acgs/agentbus/pkg/router"
	"github.com/acgs/agentbus/pkg/strategy"
	"github.com/acgs/agentbus/pkg/validator"
)

func newTestBus(t *testing.T, extra bus.Config) *bus.Bus {
	t.Helper()
	reg := registry.NewInMemory()
	proc, err := processor.New(processor.Config{
		Detector: injection.New(nil),
		Strategy: strategy.NewStatic(validator.NewStaticHash()),
	})
	require.NoError(t, err)

	cfg := bus.Config{
		Registry:  reg,
		Router:    router.New(nil),
		Processor: proc,
	}
	if extra.Deliberation != nil {
		cfg.Deliberation = extra.Deliberation
	}
	if extra.TokenVerifier != nil {
		cfg.TokenVerifier = extra.TokenVerifier
	}
	cfg.DynamicPolicyMode = extra.DynamicPolicyMode

	b := bus.New(cfg)
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(func() { _ = b.Stop(context.Background()) })
	return b
}

func registerAgent(t *testing.T, b *bus.Bus, agentID, tenantID string) {
	t.Helper()
	ok, err := b.Register(context.Background(), bus.RegisterRequest{
		AgentID:   agentID,
		AgentType: "worker",
		TenantID:  tenantID,
	})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestBus_StartStop_StateMachine(t *testing.T) {
	b := bus.New(bus.Config{Registry: registry.NewInMemory(), Router: router.New(nil)})
	assert.Equal(t, bus.StateStopped, b.State())

	require.NoError(t, b.Start(context.Background()))
	assert.Equal(t, bus.StateRunning, b.State())

	require.NoError(t, b.Stop(context.Background()))
	assert.Equal(t, bus.StateStopped, b.State())
}

func TestBus_Stop_Idempotent(t *testing.T) {
	b := bus.New(bus.Config{Registry: registry.NewInMemory(), Router: router.New(nil)})
	require.NoError(t, b.Start(context.Background()))
	require.NoError(t, b.Stop(context.Background()))
	require.NoError(t, b.Stop(context.Background()))
	assert.Equal(t, bus.StateStopped, b.State())
}

func TestBus_Start_Idempotent(t *testing.T) {
	b := bus.New(bus.Config{Registry: registry.NewInMemory(), Router: router.New(nil)})
	require.NoError(t, b.Start(context.Background()))
	require.NoError(t, b.Start(context.Background()))
	assert.Equal(t, bus.StateRunning, b.State())
	_ = b.Stop(context.Background())
}

func TestBus_OperationsFailWhenNotRunning(t *testing.T) {
	b := bus.New(bus.Config{Registry: registry.NewInMemory(), Router: router.New(nil)})

	_, err := b.Register(context.Background(), bus.RegisterRequest{AgentID: "a"})
	assert.ErrorIs(t, err, bus.ErrNotRunning)

	_, err = b.Send(context.Background(), message.New("a", "b", "a", message.TypeCommand))
	assert.ErrorIs(t, err, bus.ErrNotRunning)
}

func TestBus_Register_DefaultsCapabilitiesFromCaller(t *testing.T) {
	b := newTestBus(t, bus.Config{})
	ok, err := b.Register(context.Background(), bus.RegisterRequest{
		AgentID:      "agent-a",
		AgentType:    "worker",
		TenantID:     "tenant-1",
		Capabilities: []string{"read"},
		Credential:   "secret",
	})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBus_Register_DuplicateRejected(t *testing.T) {
	b := newTestBus(t, bus.Config{})
	registerAgent(t, b, "agent-a", "tenant-1")

	ok, err := b.Register(context.Background(), bus.RegisterRequest{AgentID: "agent-a", TenantID: "tenant-1"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBus_Register_DynamicPolicyModeRequiresToken(t *testing.T) {
	b := newTestBus(t, bus.Config{DynamicPolicyMode: true})
	_, err := b.Register(context.Background(), bus.RegisterRequest{AgentID: "agent-a", TenantID: "tenant-1"})
	assert.ErrorIs(t, err, bus.ErrTokenRequired)
}

func TestBus_Register_TokenMismatchRejected(t *testing.T) {
	keySet, err := identity.NewInMemoryKeySet()
	require.NoError(t, err)
	verifier := bus.NewTokenVerifier(keySet)
	b := newTestBus(t, bus.Config{TokenVerifier: verifier})

	token, err := keySet.Sign(context.Background(), &bus.AgentClaims{
		AgentID:  "agent-a",
		TenantID: "tenant-1",
	})
	require.NoError(t, err)

	_, err = b.Register(context.Background(), bus.RegisterRequest{
		AgentID:  "agent-a",
		TenantID: "tenant-wrong",
		Token:    token,
	})
	assert.Error(t, err)
}

func TestBus_Register_ValidTokenGrantsCapabilities(t *testing.T) {
	keySet, err := identity.NewInMemoryKeySet()
	require.NoError(t, err)
	verifier := bus.NewTokenVerifier(keySet)
	b := newTestBus(t, bus.Config{TokenVerifier: verifier})

	claims := &bus.AgentClaims{
		AgentID:      "agent-a",
		TenantID:     "tenant-1",
		Capabilities: []string{"deploy"},
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := keySet.Sign(context.Background(), claims)
	require.NoError(t, err)

	ok, err := b.Register(context.Background(), bus.RegisterRequest{
		AgentID:  "agent-a",
		TenantID: "tenant-1",
		Token:    token,
	})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBus_Send_AllowsSameTenantMessage(t *testing.T) {
	b := newTestBus(t, bus.Config{})
	registerAgent(t, b, "agent-a", "tenant-1")
	registerAgent(t, b, "agent-b", "tenant-1")

	msg := message.New("agent-a", "agent-b", "agent-a", message.TypeCommand)
	msg.TenantID = "tenant-1"

	result, err := b.Send(context.Background(), msg)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.IsValid)

	received, ok := b.Receive(context.Background(), time.Second)
	require.True(t, ok)
	assert.Equal(t, msg.MessageID, received.MessageID)
}

func TestBus_Send_CrossTenantDenied(t *testing.T) {
	b := newTestBus(t, bus.Config{})
	registerAgent(t, b, "agent-a", "tenant-1")
	registerAgent(t, b, "agent-b", "tenant-2")

	msg := message.New("agent-a", "agent-b", "agent-a", message.TypeCommand)
	msg.TenantID = "tenant-1"

	result, err := b.Send(context.Background(), msg)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.IsValid)
}

func TestBus_Send_HighImpactDivertsToDeliberation(t *testing.T) {
	queue := deliberation.NewQueue()
	reg := registry.NewInMemory()
	proc, err := processor.New(processor.Config{
		Strategy:     strategy.NewStatic(validator.NewStaticHash()),
		Scorer:       impact.NewScorer(1000),
		Deliberation: queue,
	})
	require.NoError(t, err)

	b := bus.New(bus.Config{Registry: reg, Router: router.New(nil), Processor: proc})
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(func() { _ = b.Stop(context.Background()) })

	registerAgent(t, b, "agent-a", "tenant-1")
	registerAgent(t, b, "agent-b", "tenant-1")

	msg := message.New("agent-a", "agent-b", "agent-a", message.TypeCommand)
	msg.TenantID = "tenant-1"
	msg.Content = map[string]any{
		"agent_count":          100.0,
		"resource_utilization": 1.0,
		"tenant_complexity":    1.0,
		"semantic_similarity":  1.0,
	}

	result, err := b.Send(context.Background(), msg)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, message.StatusPendingDeliberation, msg.Status)
	assert.Equal(t, 1, queue.Len())

	_, ok := b.Receive(context.Background(), 100*time.Millisecond)
	assert.False(t, ok, "diverted messages must not reach local delivery")
}

func TestBus_Broadcast_ExcludesSenderAndOtherTenants(t *testing.T) {
	b := newTestBus(t, bus.Config{})
	registerAgent(t, b, "agent-a", "tenant-1")
	registerAgent(t, b, "agent-b", "tenant-1")
	registerAgent(t, b, "agent-c", "tenant-2")

	msg := message.New("agent-a", "", "agent-a", message.TypeEvent)
	msg.TenantID = "tenant-1"

	results, err := b.Broadcast(context.Background(), msg)
	require.NoError(t, err)
	assert.Contains(t, results, "agent-b")
	assert.NotContains(t, results, "agent-a")
	assert.NotContains(t, results, "agent-c")
}

func TestBus_Receive_TimesOutWhenEmpty(t *testing.T) {
	b := newTestBus(t, bus.Config{})
	_, ok := b.Receive(context.Background(), 50*time.Millisecond)
	assert.False(t, ok)
}

func TestBus_Send_CrossTenantDenialIncrementsFailedCount(t *testing.T) {
	b := newTestBus(t, bus.Config{})
	registerAgent(t, b, "agent-a", "tenant-1")
	registerAgent(t, b, "agent-b", "tenant-2")

	msg := message.New("agent-a", "agent-b", "agent-a", message.TypeCommand)
	msg.TenantID = "tenant-1"

	_, err := b.Send(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, int64(1), b.FailedCount(), "a tenant denial is an invalid Send result and counts as failed")
}

func TestBus_Send_FailedCountIncrementsOnProcessorDenial(t *testing.T) {
	b := newTestBus(t, bus.Config{})
	registerAgent(t, b, "agent-a", "tenant-1")
	registerAgent(t, b, "agent-b", "tenant-1")

	msg := message.New("agent-a", "agent-b", "agent-a", message.TypeCommand)
	msg.TenantID = "tenant-1"
	msg.ConstitutionalHash = "wrong-hash"

	result, err := b.Send(context.Background(), msg)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.IsValid)
	assert.Equal(t, int64(1), b.FailedCount())
}
