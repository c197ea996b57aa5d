// Package observability provides agent-bus-specific instrumentation helpers.
package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Agent-bus semantic convention attributes.
var (
	// Message attributes
	AttrMessageID   = attribute.Key("agentbus.message.id")
	AttrMessageType = attribute.Key("agentbus.message.type")
	AttrTenantID    = attribute.Key("agentbus.tenant.id")
	AttrFromAgent   = attribute.Key("agentbus.from_agent")
	AttrToAgent     = attribute.Key("agentbus.to_agent")

	// Strategy attributes
	AttrStrategyName  = attribute.Key("agentbus.strategy.name")
	AttrStrategyEvent = attribute.Key("agentbus.strategy.decision")

	// Guardrail attributes
	AttrGuardrailLayer  = attribute.Key("agentbus.guardrail.layer")
	AttrGuardrailAction = attribute.Key("agentbus.guardrail.action")

	// Impact/deliberation attributes
	AttrImpactScore   = attribute.Key("agentbus.impact.score")
	AttrImpactLevel   = attribute.Key("agentbus.impact.level")
	AttrDeliberation  = attribute.Key("agentbus.deliberation.diverted")

	// Decision attributes
	AttrDecision          = attribute.Key("agentbus.decision")
	AttrPolicyVersion     = attribute.Key("agentbus.policy_version")
	AttrConstitutionalHash = attribute.Key("agentbus.constitutional_hash")
)

// MessageOperation creates attributes identifying a message being processed.
func MessageOperation(messageID string, msgType string, tenantID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrMessageID.String(messageID),
		AttrMessageType.String(msgType),
		AttrTenantID.String(tenantID),
	}
}

// StrategyOperation creates attributes for a processing-strategy outcome.
func StrategyOperation(name, decision string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrStrategyName.String(name),
		AttrStrategyEvent.String(decision),
	}
}

// GuardrailOperation creates attributes for a guardrail layer's verdict.
func GuardrailOperation(layer, action string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrGuardrailLayer.String(layer),
		AttrGuardrailAction.String(action),
	}
}

// ImpactOperation creates attributes for an impact-scoring outcome.
func ImpactOperation(score float64, level string, diverted bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrImpactScore.Float64(score),
		AttrImpactLevel.String(level),
		AttrDeliberation.Bool(diverted),
	}
}

// DecisionOperation creates attributes for a terminal processing decision.
func DecisionOperation(decision, policyVersion, constitutionalHash string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrDecision.String(decision),
		AttrPolicyVersion.String(policyVersion),
		AttrConstitutionalHash.String(constitutionalHash),
	}
}

// SpanFromContext extracts the span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanStatus sets the span status based on error.
func SetSpanStatus(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
	}
}
