package processor

import (
	"encoding/json"

	"github.com/acgs/agentbus/pkg/impact"
	"github.com/acgs/agentbus/pkg/message"
)

// featuresFromMessage derives impact-scorer features from a message
// when the strategy chain didn't already attach a score. Optional
// Content keys let an upstream agent supply a better-informed input
// than the generic fallback.
func featuresFromMessage(msg *message.AgentMessage) impact.Features {
	return impact.Features{
		MessageLength:       lengthFeature(msg),
		AgentCount:          floatFromContent(msg, "agent_count", 0) / 100,
		TenantComplexity:    floatFromContent(msg, "tenant_complexity", 0),
		ResourceUtilization: floatFromContent(msg, "resource_utilization", 0),
		SemanticSimilarity:  floatFromContent(msg, "semantic_similarity", 0),
	}
}

func lengthFeature(msg *message.AgentMessage) float64 {
	raw, err := json.Marshal(msg.Content)
	if err != nil {
		return 0
	}
	f := float64(len(raw)) / 4000.0
	if f > 1 {
		f = 1
	}
	return f
}

func floatFromContent(msg *message.AgentMessage, key string, def float64) float64 {
	v, ok := msg.Content[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return def
	}
}
