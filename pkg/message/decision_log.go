package message

import "time"

// DecisionLog is the append-only record emitted for every terminal
// Process call, forwarded to the audit ledger.
type DecisionLog struct {
	TraceID            string         `json:"trace_id"`
	SpanID             string         `json:"span_id"`
	AgentID            string         `json:"agent_id"`
	TenantID           string         `json:"tenant_id,omitempty"`
	PolicyVersion      string         `json:"policy_version,omitempty"`
	RiskScore          float64        `json:"risk_score"`
	Decision           Decision       `json:"decision"`
	ConstitutionalHash string         `json:"constitutional_hash"`
	ComplianceTags     []string       `json:"compliance_tags,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	Timestamp          time.Time      `json:"timestamp"`
}
