package registry_test

import (
	"context"
	"sync"
	"testing"

	"github.com/acgs/agentbus/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemory_RegisterNoOverwrite(t *testing.T) {
	ctx := context.Background()
	r := registry.NewInMemory()

	ok, err := r.Register(ctx, registry.Record{AgentID: "a", TenantID: "t1"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.Register(ctx, registry.Record{AgentID: "a", TenantID: "t2"})
	require.NoError(t, err)
	assert.False(t, ok)

	rec, found, _ := r.Get(ctx, "a")
	assert.True(t, found)
	assert.Equal(t, "t1", rec.TenantID) // original not overwritten
}

func TestInMemory_UnregisterMissing(t *testing.T) {
	ctx := context.Background()
	r := registry.NewInMemory()

	ok, err := r.Unregister(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInMemory_ExistsAndList(t *testing.T) {
	ctx := context.Background()
	r := registry.NewInMemory()

	_, _ = r.Register(ctx, registry.Record{AgentID: "a"})
	_, _ = r.Register(ctx, registry.Record{AgentID: "b"})

	exists, _ := r.Exists(ctx, "a")
	assert.True(t, exists)

	ids, _ := r.ListAgents(ctx)
	assert.ElementsMatch(t, []string{"a", "b"}, ids)
}

func TestInMemory_UpdateMetadata(t *testing.T) {
	ctx := context.Background()
	r := registry.NewInMemory()
	_, _ = r.Register(ctx, registry.Record{AgentID: "a", Capabilities: []string{"x"}})

	ok, err := r.UpdateMetadata(ctx, "a", func(rec *registry.Record) {
		rec.Capabilities = append(rec.Capabilities, "y")
	})
	require.NoError(t, err)
	assert.True(t, ok)

	rec, _, _ := r.Get(ctx, "a")
	assert.ElementsMatch(t, []string{"x", "y"}, rec.Capabilities)

	ok, err = r.UpdateMetadata(ctx, "ghost", func(*registry.Record) {})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInMemory_Clear(t *testing.T) {
	ctx := context.Background()
	r := registry.NewInMemory()
	_, _ = r.Register(ctx, registry.Record{AgentID: "a"})
	require.NoError(t, r.Clear(ctx))

	ids, _ := r.ListAgents(ctx)
	assert.Empty(t, ids)
}

func TestInMemory_ConcurrentRegisterUnique(t *testing.T) {
	ctx := context.Background()
	r := registry.NewInMemory()

	var wg sync.WaitGroup
	var successCount int
	var mu sync.Mutex

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := r.Register(ctx, registry.Record{AgentID: "contested"})
			require.NoError(t, err)
			if ok {
				mu.Lock()
				successCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successCount, "no two concurrent registrations may both succeed for the same agent_id")
}

func TestRecord_Capabilities(t *testing.T) {
	rec := registry.Record{Capabilities: []string{"search", "summarize"}}
	assert.True(t, rec.HasCapability("search"))
	assert.False(t, rec.HasCapability("translate"))
	assert.True(t, rec.HasAllCapabilities([]string{"search", "summarize"}))
	assert.False(t, rec.HasAllCapabilities([]string{"search", "translate"}))
}
