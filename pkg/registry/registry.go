// Package registry implements the Agent Registry: a thread-safe
// directory of agent_id -> {type, capabilities, tenant, cred-hash},
// with an in-memory implementation for single-process deployments and
// a Redis-hash-backed implementation for distributed ones.
package registry

import (
	"context"
	"time"
)

// Status is the lifecycle state of a registered agent.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

// Record describes a registered agent. ConstitutionalKey stores a
// bcrypt hash of the credential presented at registration, never the
// credential itself.
type Record struct {
	AgentID           string    `json:"agent_id"`
	AgentType         string    `json:"agent_type"`
	Capabilities      []string  `json:"capabilities"`
	TenantID          string    `json:"tenant_id"`
	RegisteredAt      time.Time `json:"registered_at"`
	UpdatedAt         time.Time `json:"updated_at"`
	ConstitutionalKey string    `json:"constitutional_key,omitempty"`
	Status            Status    `json:"status"`
}

// GetTenantID implements tenant.Record.
func (r Record) GetTenantID() string { return r.TenantID }

// HasCapability reports whether the record's capability set contains cap.
func (r Record) HasCapability(cap string) bool {
	for _, c := range r.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// HasAllCapabilities reports whether the record's capability set is a
// superset of required.
func (r Record) HasAllCapabilities(required []string) bool {
	for _, req := range required {
		if !r.HasCapability(req) {
			return false
		}
	}
	return true
}

// Registry is the contract every backend (in-memory, distributed)
// implements. All operations must be safe under concurrent access.
type Registry interface {
	// Register inserts a new record. Returns false without error if
	// agent_id is already present (no overwrite).
	Register(ctx context.Context, rec Record) (bool, error)
	// Unregister removes a record. Returns false if not present.
	Unregister(ctx context.Context, agentID string) (bool, error)
	// Get returns a snapshot copy, or (Record{}, false) if absent.
	Get(ctx context.Context, agentID string) (Record, bool, error)
	// ListAgents returns a snapshot of all agent ids.
	ListAgents(ctx context.Context) ([]string, error)
	// Exists is an O(1) presence test.
	Exists(ctx context.Context, agentID string) (bool, error)
	// UpdateMetadata performs an atomic read-modify-write, bumping
	// UpdatedAt. Returns false if the agent does not exist.
	UpdateMetadata(ctx context.Context, agentID string, mutate func(*Record)) (bool, error)
	// Clear wipes all records. Test-only.
	Clear(ctx context.Context) error
}
