package tenant_test

import (
	"testing"

	"github.com/acgs/agentbus/pkg/message"
	"github.com/acgs/agentbus/pkg/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck_SameTenant_OK(t *testing.T) {
	m := message.New("a", "b", "a", message.TypeCommand)
	m.TenantID = "t1"
	require.NoError(t, tenant.Check(m, "t1", "t1"))
}

func TestCheck_CrossTenant_Denied(t *testing.T) {
	m := message.New("a", "b", "a", message.TypeCommand)
	m.TenantID = "t1"

	err := tenant.Check(m, "t1", "t2")
	require.Error(t, err)
	assert.True(t, message.IsDeterministic(err))
	assert.Contains(t, err.Error(), "recipient tenant_id 't2'")
}

func TestCheck_SenderMismatch_Denied(t *testing.T) {
	m := message.New("a", "b", "a", message.TypeCommand)
	m.TenantID = "t1"

	err := tenant.Check(m, "t9", "t1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sender tenant_id 't9'")
}

func TestCheck_Broadcast_SkipsRecipient(t *testing.T) {
	m := message.New("a", "", "a", message.TypeEvent)
	m.TenantID = "t1"
	require.NoError(t, tenant.Check(m, "t1", "irrelevant"))
}

func TestCheck_NoTenant_Untenanted(t *testing.T) {
	m := message.New("a", "b", "a", message.TypeCommand)
	require.NoError(t, tenant.Check(m, "anything", "anything-else"))
}

type rec struct{ tenantID string }

func (r rec) GetTenantID() string { return r.tenantID }

func TestFilter(t *testing.T) {
	candidates := map[string]rec{
		"a": {tenantID: "t1"},
		"b": {tenantID: "t1"},
		"c": {tenantID: "t2"},
	}
	got := tenant.Filter(candidates, "t1", "a")
	assert.Equal(t, []string{"b"}, got)
}
