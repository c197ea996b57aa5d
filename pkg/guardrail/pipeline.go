// Package guardrail implements the six-layer request pipeline: rate
// limiting, input sanitisation, constitutional/impact evaluation,
// optional tool sandboxing, output verification, and an always-on
// audit log. Layers run in strict order; a BLOCK halts the pipeline
// when fail_closed is set (the default).
package guardrail

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Action is the per-layer verdict.
type Action string

const (
	ActionAllow    Action = "ALLOW"
	ActionBlock    Action = "BLOCK"
	ActionModify   Action = "MODIFY"
	ActionEscalate Action = "ESCALATE"
	ActionSandbox  Action = "SANDBOX"
	ActionAudit    Action = "AUDIT"
)

// Severity ranks a violation.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Violation records one rule hit within a layer.
type Violation struct {
	Rule     string
	Severity Severity
	Detail   string
}

// LayerResult is what each layer returns.
type LayerResult struct {
	Action       Action
	Violations   []Violation
	ModifiedData map[string]any
}

// Request is the mutable context threaded through the pipeline. Layers
// read and may rewrite Content (sanitisation/redaction) in place.
type Request struct {
	TraceID            string
	ClientAPIKey       string
	ClientUserID       string
	ClientIP           string
	ClientSessionID    string
	ContentType        string
	Content             map[string]any
	OutgoingContent     map[string]any
	ConstitutionalHash  string
	TenantID            string
	AgentCount          int
	ResourceUtilization float64
	// ContentSchema, when set, is a compiled JSON Schema the
	// Sanitizer validates Content against before the regex passes run.
	ContentSchema *jsonschema.Schema
}

// ClientKey picks the rate-limiter identity per the priority order:
// API key > user > IP > session.
func (r *Request) ClientKey() string {
	switch {
	case r.ClientAPIKey != "":
		return "apikey:" + r.ClientAPIKey
	case r.ClientUserID != "":
		return "user:" + r.ClientUserID
	case r.ClientIP != "":
		return "ip:" + r.ClientIP
	default:
		return "session:" + r.ClientSessionID
	}
}

// Layer is one stage of the pipeline.
type Layer interface {
	Name() string
	Run(ctx context.Context, req *Request) LayerResult
}

// AuditEntry is the immutable record layer six always appends,
// regardless of what earlier layers decided.
type AuditEntry struct {
	TraceID            string
	Timestamp          time.Time
	Layer              string
	Action             Action
	Allowed            bool
	Violations         []Violation
	ProcessingTimeMS   int64
	Metadata           map[string]any
	ConstitutionalHash string
}

// Pipeline runs layers in strict order under a global timeout. auditLayer
// is appended implicitly and always runs last, even when an earlier
// layer's BLOCK halted the rest - the audit log never blocks and must
// record every outcome.
type Pipeline struct {
	layers     []Layer
	auditLayer Layer
	timeout    time.Duration
	failClosed bool
	entries    []AuditEntry
}

// New builds a pipeline over layers 1-5 (already in their required
// order) plus the always-on audit layer. failClosed is taken as given;
// New applies no default of its own.
func New(timeout time.Duration, failClosed bool, auditLayer Layer, layers ...Layer) *Pipeline {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Pipeline{layers: layers, auditLayer: auditLayer, timeout: timeout, failClosed: failClosed}
}

// Run executes every layer in order. A BLOCK halts the remaining core
// layers iff failClosed is set; the audit layer always runs last.
// TraceID is generated from timestamp+constitutional hash when the
// caller did not supply one.
func (p *Pipeline) Run(ctx context.Context, req *Request) (Action, []Violation) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if req.TraceID == "" {
		req.TraceID = traceID(req.ConstitutionalHash)
	}

	finalAction := ActionAllow
	var allViolations []Violation

	for _, layer := range p.layers {
		result := p.runLayer(ctx, layer, req)
		allViolations = append(allViolations, result.Violations...)
		if result.ModifiedData != nil {
			req.Content = result.ModifiedData
		}

		if result.Action == ActionBlock {
			finalAction = ActionBlock
			if p.failClosed {
				break
			}
			continue
		}
		if result.Action == ActionEscalate && finalAction != ActionBlock {
			finalAction = ActionEscalate
		}
	}

	if p.auditLayer != nil {
		p.runLayer(ctx, p.auditLayer, req)
	}

	return finalAction, allViolations
}

func (p *Pipeline) runLayer(ctx context.Context, layer Layer, req *Request) LayerResult {
	start := time.Now()

	var result LayerResult
	select {
	case <-ctx.Done():
		result = LayerResult{Action: ActionBlock, Violations: []Violation{{
			Rule: "guardrail_timeout", Severity: SeverityCritical, Detail: "pipeline timeout exceeded",
		}}}
	default:
		result = layer.Run(ctx, req)
	}

	p.entries = append(p.entries, AuditEntry{
		TraceID:            req.TraceID,
		Timestamp:          time.Now().UTC(),
		Layer:              layer.Name(),
		Action:             result.Action,
		Allowed:            result.Action != ActionBlock,
		Violations:         result.Violations,
		ProcessingTimeMS:   time.Since(start).Milliseconds(),
		ConstitutionalHash: req.ConstitutionalHash,
	})
	return result
}

// Entries returns every audit-log entry recorded across all Run calls.
func (p *Pipeline) Entries() []AuditEntry { return p.entries }

func traceID(constitutionalHash string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%s", time.Now().UnixNano(), constitutionalHash)))
	return hex.EncodeToString(sum[:8])
}
