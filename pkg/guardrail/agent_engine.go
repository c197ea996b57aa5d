package guardrail

import (
	"context"

	"github.com/acgs/agentbus/pkg/impact"
	"github.com/acgs/agentbus/pkg/message"
	"github.com/acgs/agentbus/pkg/validator"
)

// AgentEngine is pipeline layer three: constitutional validation plus
// impact scoring. A score at or above DeliberationThreshold escalates
// rather than blocking outright - the message proceeds to the
// deliberation divert rather than being denied.
type AgentEngine struct {
	Validator             validator.Validator
	Scorer                *impact.Scorer
	DeliberationThreshold float64
}

// NewAgentEngine wires a validator and scorer with the default 0.8
// deliberation threshold.
func NewAgentEngine(v validator.Validator, scorer *impact.Scorer) *AgentEngine {
	return &AgentEngine{Validator: v, Scorer: scorer, DeliberationThreshold: 0.8}
}

func (a *AgentEngine) Name() string { return "agent_engine" }

func (a *AgentEngine) Run(ctx context.Context, req *Request) LayerResult {
	msg := &message.AgentMessage{
		ConstitutionalHash: req.ConstitutionalHash,
		Content:            req.Content,
		TenantID:           req.TenantID,
		MessageID:          req.TraceID,
	}

	result, err := a.Validator.Validate(ctx, msg)
	if err != nil || result == nil || !result.IsValid {
		reason := "constitutional validation failed"
		if err != nil {
			reason = err.Error()
		} else if len(result.Errors) > 0 {
			reason = result.Errors[0]
		}
		return LayerResult{Action: ActionBlock, Violations: []Violation{{
			Rule: "constitutional_validation_failed", Severity: SeverityCritical, Detail: reason,
		}}}
	}

	score := a.Scorer.Score(msg, impact.Features{
		MessageLength:       lengthFeature(req.Content),
		AgentCount:          float64(req.AgentCount) / 100,
		ResourceUtilization: req.ResourceUtilization,
	})

	if score >= a.DeliberationThreshold {
		return LayerResult{Action: ActionEscalate, Violations: []Violation{{
			Rule: "impact_score_threshold", Severity: SeverityHigh, Detail: "escalated for deliberation",
		}}, ModifiedData: withImpactScore(req.Content, score)}
	}

	return LayerResult{Action: ActionAllow, ModifiedData: withImpactScore(req.Content, score)}
}

func lengthFeature(content map[string]any) float64 {
	n := len(textOf(content))
	f := float64(n) / 4000.0
	if f > 1 {
		f = 1
	}
	return f
}

func withImpactScore(content map[string]any, score float64) map[string]any {
	out := make(map[string]any, len(content)+1)
	for k, v := range content {
		out[k] = v
	}
	out["impact_score"] = score
	return out
}
