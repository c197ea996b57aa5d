// Package tenant enforces the multi-tenant isolation invariant: a
// sender's tenant, a recipient's tenant, and a message's declared
// tenant must all agree before the message is routed or delivered.
package tenant

import (
	"fmt"

	"github.com/acgs/agentbus/pkg/message"
)

// Record is the minimal view of an agent needed for a tenant check.
type Record interface {
	GetTenantID() string
}

// MismatchError carries the expected-vs-actual tenant ids for a denial
// message, per spec scenario S2 ("recipient tenant_id 't2'").
type MismatchError struct {
	Role     string // "sender" or "recipient"
	Expected string
	Actual   string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s tenant_id '%s' does not match message tenant_id '%s'", e.Role, e.Actual, e.Expected)
}

// Check verifies that senderTenant, recipientTenant (if the message is
// not a broadcast), and msg.TenantID all agree. It returns a
// *message.DeterministicDenial whose Reason is the MismatchError's text so
// the composite strategy never shadows this with a fallback attempt.
func Check(msg *message.AgentMessage, senderTenant, recipientTenant string) error {
	if msg.TenantID == "" {
		return nil
	}
	if senderTenant != msg.TenantID {
		return &message.DeterministicDenial{
			Reason: (&MismatchError{Role: "sender", Expected: msg.TenantID, Actual: senderTenant}).Error(),
		}
	}
	if !msg.IsBroadcast() && recipientTenant != msg.TenantID {
		return &message.DeterministicDenial{
			Reason: (&MismatchError{Role: "recipient", Expected: msg.TenantID, Actual: recipientTenant}).Error(),
		}
	}
	return nil
}

// Filter narrows candidates to those sharing tenantID, with excludeID
// removed, used by Router.Broadcast.
func Filter[T Record](candidates map[string]T, tenantID string, excludeID string) []string {
	out := make([]string, 0, len(candidates))
	for id, rec := range candidates {
		if id == excludeID {
			continue
		}
		if rec.GetTenantID() == tenantID {
			out = append(out, id)
		}
	}
	return out
}
