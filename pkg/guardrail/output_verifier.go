package guardrail

import (
	"context"
	"regexp"
)

// harmfulPatterns re-runs the safety/toxicity/harmful-instruction scan
// against outgoing content. Kept distinct from the inbound injection
// patterns: the outbound concern is harmful generated content, not
// attacker-supplied payloads.
var harmfulPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)how to (make|build|synthesize) (a bomb|explosives|nerve gas)`),
	regexp.MustCompile(`(?i)step[- ]by[- ]step (guide|instructions) (to|for) (kill|harm|poison)`),
}

// OutputVerifier is pipeline layer five: re-checks the outgoing
// content for harmful instructions and redacts PII before it leaves
// the system.
type OutputVerifier struct{}

func NewOutputVerifier() *OutputVerifier { return &OutputVerifier{} }

func (o *OutputVerifier) Name() string { return "output_verifier" }

func (o *OutputVerifier) Run(_ context.Context, req *Request) LayerResult {
	if req.OutgoingContent == nil {
		return LayerResult{Action: ActionAllow}
	}

	text := textOf(req.OutgoingContent)
	for _, re := range harmfulPatterns {
		if re.MatchString(text) {
			return LayerResult{Action: ActionBlock, Violations: []Violation{{
				Rule: "harmful_content", Severity: SeverityCritical, Detail: "outgoing content matched a harmful-instruction pattern",
			}}}
		}
	}

	redacted := make(map[string]any, len(req.OutgoingContent))
	piiFound := false
	for k, v := range req.OutgoingContent {
		if s, ok := v.(string); ok {
			r := RedactPII(s)
			if r != s {
				piiFound = true
			}
			redacted[k] = r
			continue
		}
		redacted[k] = v
	}
	req.OutgoingContent = redacted

	if piiFound {
		return LayerResult{Action: ActionModify, Violations: []Violation{{
			Rule: "pii_redacted_outgoing", Severity: SeverityLow, Detail: "PII redacted from outgoing content",
		}}}
	}
	return LayerResult{Action: ActionAllow}
}
