// Package message defines the wire and in-memory representation of
// messages flowing through the agent bus, along with the validation
// and decision-log records produced while a message is processed.
package message

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Type enumerates the kind of content an AgentMessage carries.
type Type string

const (
	TypeCommand            Type = "COMMAND"
	TypeQuery               Type = "QUERY"
	TypeEvent               Type = "EVENT"
	TypeResponse            Type = "RESPONSE"
	TypeGovernanceRequest   Type = "GOVERNANCE_REQUEST"
	TypeNotification        Type = "NOTIFICATION"
)

// Priority enumerates delivery priority.
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityNormal   Priority = "NORMAL"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// Status enumerates the lifecycle of an AgentMessage. Once a message
// reaches Delivered or Failed it is terminal; a retry of a Failed
// message MUST mint a new MessageID rather than mutate the original.
type Status string

const (
	StatusPending              Status = "PENDING"
	StatusProcessing           Status = "PROCESSING"
	StatusDelivered            Status = "DELIVERED"
	StatusFailed               Status = "FAILED"
	StatusPendingDeliberation  Status = "PENDING_DELIBERATION"
)

// IsTerminal reports whether status admits no further transitions
// except the FAILED->retry-with-new-id path.
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusFailed
}

// StaticConstitutionalHash is the immutable 16-hex constant used by
// static-hash validation. Dynamic-policy mode substitutes a rotating
// public-key fingerprint of the same shape but the contract - a
// 16-hex identifier of the active constitution - is unchanged.
const StaticConstitutionalHash = "cdd01ef066bc6cf2"

// AgentMessage is the canonical unit exchanged between agents.
type AgentMessage struct {
	MessageID               string         `json:"message_id"`
	CreatedAt                time.Time      `json:"created_at"`
	UpdatedAt                time.Time      `json:"updated_at"`
	FromAgent                string         `json:"from_agent"`
	ToAgent                  string         `json:"to_agent,omitempty"` // empty => broadcast
	SenderID                 string         `json:"sender_id"`
	MessageType              Type           `json:"message_type"`
	Priority                 Priority       `json:"priority"`
	Status                   Status         `json:"status"`
	TenantID                 string         `json:"tenant_id,omitempty"`
	Content                  map[string]any `json:"content"`
	Payload                  []byte         `json:"payload,omitempty"`
	ConstitutionalHash        string         `json:"constitutional_hash"`
	ConstitutionalValidated  bool           `json:"constitutional_validated"`
	ImpactScore              *float64       `json:"impact_score,omitempty"`
}

// New constructs a new AgentMessage with a fresh UUID, the current
// time (ms precision, UTC) for both timestamps, and PENDING status.
func New(from, to, sender string, msgType Type) *AgentMessage {
	now := nowMS()
	return &AgentMessage{
		MessageID:        uuid.NewString(),
		CreatedAt:        now,
		UpdatedAt:        now,
		FromAgent:        from,
		ToAgent:          to,
		SenderID:         sender,
		MessageType:      msgType,
		Priority:         PriorityNormal,
		Status:           StatusPending,
		Content:          map[string]any{},
		ConstitutionalHash: StaticConstitutionalHash,
	}
}

// nowMS rounds to millisecond precision, matching the round-trip
// invariant (ToJSON -> FromJSON preserves timestamps at ms precision).
func nowMS() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}

// Touch updates UpdatedAt to the current time.
func (m *AgentMessage) Touch() {
	m.UpdatedAt = nowMS()
}

// IsBroadcast reports whether the message has no explicit recipient.
func (m *AgentMessage) IsBroadcast() bool {
	return m.ToAgent == ""
}

// RequiredCapabilities extracts the capability-routing hint from
// Content, used by the capability-based Router variant.
func (m *AgentMessage) RequiredCapabilities() []string {
	raw, ok := m.Content["required_capabilities"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// ToJSON serializes the message, preserving timestamps at millisecond
// precision.
func (m *AgentMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// FromJSON deserializes a message previously produced by ToJSON.
func FromJSON(data []byte) (*AgentMessage, error) {
	var m AgentMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
