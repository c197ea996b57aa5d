// Package processor implements the Message Processor: the single
// orchestration point every message passes through after the bus's
// tenant check and before routing and delivery. It runs prompt-injection detection, delegates to the
// composite processing strategy, fills in an impact score when the
// strategy didn't compute one, diverts high-impact messages to
// deliberation, and fire-and-forgets a decision log to the audit
// ledger - all under one trace span with RED metrics attached.
package processor

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/acgs/agentbus/pkg/audit"
	"github.com/acgs/agentbus/pkg/deliberation"
	"github.com/acgs/agentbus/pkg/impact"
	"github.com/acgs/agentbus/pkg/injection"
	"github.com/acgs/agentbus/pkg/message"
	"github.com/acgs/agentbus/pkg/observability"
	"github.com/acgs/agentbus/pkg/strategy"
)

// Config wires a Processor's dependencies. Strategy is required; the
// rest are optional (a nil Detector skips the prompt-injection check, a
// nil Scorer scores 0, a nil Audit skips the ledger report, a nil
// Deliberation disables divert, a nil Observability disables
// tracing/metrics).
type Config struct {
	Detector      *injection.Detector
	Strategy      strategy.Strategy
	Handlers      strategy.HandlerSet
	Scorer        *impact.Scorer
	Deliberation  *deliberation.Queue
	Audit         *audit.Client
	Observability *observability.Provider
	PolicyVersion string
	Logger        *slog.Logger
}

// Processor is the Message Processor.
type Processor struct {
	detector      *injection.Detector
	strategy      strategy.Strategy
	handlers      strategy.HandlerSet
	scorer        *impact.Scorer
	deliberation  *deliberation.Queue
	auditClient   *audit.Client
	obs           *observability.Provider
	policyVersion string
	logger        *slog.Logger

	decisionCounter metric.Int64Counter
	latencyHist     metric.Float64Histogram
}

// New builds a Processor. An empty PolicyVersion defaults to
// "static:v1".
func New(cfg Config) (*Processor, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	policyVersion := cfg.PolicyVersion
	if policyVersion == "" {
		policyVersion = "static:v1"
	}

	p := &Processor{
		detector:      cfg.Detector,
		strategy:      cfg.Strategy,
		handlers:      cfg.Handlers,
		scorer:        cfg.Scorer,
		deliberation:  cfg.Deliberation,
		auditClient:   cfg.Audit,
		obs:           cfg.Observability,
		policyVersion: policyVersion,
		logger:        logger.With("component", "message_processor"),
	}

	if p.obs != nil {
		meter := p.obs.Meter()
		var err error
		p.decisionCounter, err = meter.Int64Counter("agentbus.processor.decisions",
			metric.WithDescription("Terminal processing decisions by tenant, decision and message type"),
			metric.WithUnit("{decision}"),
		)
		if err != nil {
			return nil, err
		}
		p.latencyHist, err = meter.Float64Histogram("agentbus.processor.latency",
			metric.WithDescription("Message Processor end-to-end latency in seconds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			return nil, err
		}
		if p.deliberation != nil {
			gauge, err := meter.Int64ObservableGauge("agentbus.deliberation.queue_depth",
				metric.WithDescription("Number of messages currently waiting in the deliberation queue"),
				metric.WithUnit("{message}"),
			)
			if err != nil {
				return nil, err
			}
			if _, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
				o.ObserveInt64(gauge, int64(p.deliberation.Len()))
				return nil
			}, gauge); err != nil {
				return nil, err
			}
		}
	}

	return p, nil
}

// Process runs the full processor pipeline for msg and returns the
// terminal validation result. It never returns an error for a denied
// message - denial is represented in the ValidationResult itself -
// and a failure to reach the audit ledger never affects the result.
func (p *Processor) Process(ctx context.Context, msg *message.AgentMessage) (*message.ValidationResult, error) {
	start := time.Now()
	var finish func(error)
	if p.obs != nil {
		ctx, finish = p.obs.TrackOperation(ctx, "message_processor.process",
			observability.MessageOperation(msg.MessageID, string(msg.MessageType), msg.TenantID)...)
	}

	result := func() (r *message.ValidationResult) {
		defer func() {
			if rec := recover(); rec != nil {
				p.logger.ErrorContext(ctx, "processor panic recovered", "message_id", msg.MessageID, "panic", rec)
				r = message.Invalid(msg.ConstitutionalHash, "internal processing error")
			}
		}()
		return p.process(ctx, msg)
	}()

	if finish != nil {
		var trackErr error
		if !result.IsValid {
			trackErr = &deniedError{reason: firstOrDefault(result.Errors, "denied")}
		}
		finish(trackErr)
	}

	p.recordDecision(ctx, msg, result, time.Since(start))
	p.report(ctx, msg, result)

	return result, nil
}

func (p *Processor) process(ctx context.Context, msg *message.AgentMessage) *message.ValidationResult {
	if p.detector != nil {
		detection := p.detector.Detect(msg)
		if detection.Denied {
			p.logger.WarnContext(ctx, "prompt injection denied message",
				"message_id", msg.MessageID, "pattern", detection.MatchedPattern)
			return message.Invalid(msg.ConstitutionalHash, "prompt_injection: "+detection.MatchedPattern).
				WithMetadata("policy_version", p.policyVersion)
		}
	}

	result, err := p.strategy.Process(ctx, msg)
	if err != nil {
		// The composite strategy only returns a non-nil error for a
		// condition it cannot itself represent as a ValidationResult;
		// treat it as a deny rather than propagating.
		result = message.Invalid(msg.ConstitutionalHash, err.Error())
	}
	if result == nil {
		result = message.Invalid(msg.ConstitutionalHash, "strategy returned no result")
	}

	score := p.scoreOf(msg, result)
	result.WithMetadata("impact_score", score).WithMetadata("impact_level", string(impact.LevelFor(score)))

	if !result.IsValid {
		return result
	}

	// The divert check must run before any handler executes: a
	// high-impact message diverted to deliberation must have no
	// handler invoked at all (spec testable property 7 / scenario S5).
	if p.deliberation != nil && p.deliberation.ShouldDivert(score) {
		p.deliberation.Enqueue(msg, score, map[string]any{
			"message_id": msg.MessageID,
			"tenant_id":  msg.TenantID,
		})
		result.WithMetadata("diverted_to_deliberation", true)
		return result
	}

	return strategy.RunHandlers(ctx, msg, p.handlers, result)
}

// scoreOf returns the strategy-supplied impact score if present in
// result.Metadata, otherwise computes one from the message.
func (p *Processor) scoreOf(msg *message.AgentMessage, result *message.ValidationResult) float64 {
	if result.Metadata != nil {
		if v, ok := result.Metadata["impact_score"]; ok {
			if f, ok := v.(float64); ok {
				return f
			}
		}
	}
	if p.scorer == nil {
		return 0
	}
	return p.scorer.Score(msg, featuresFromMessage(msg))
}

func (p *Processor) recordDecision(ctx context.Context, msg *message.AgentMessage, result *message.ValidationResult, elapsed time.Duration) {
	if p.decisionCounter == nil {
		return
	}
	attrs := observability.DecisionOperation(string(result.Decision), p.policyVersion, msg.ConstitutionalHash)
	p.decisionCounter.Add(ctx, 1, metric.WithAttributes(
		append(attrs, observability.AttrTenantID.String(msg.TenantID), observability.AttrMessageType.String(string(msg.MessageType)))...,
	))
	if p.latencyHist != nil {
		p.latencyHist.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attrs...))
	}
}

// report builds the decision log and fire-and-forgets it to the audit
// ledger, detached from the caller's context so a slow or cancelled
// request never blocks the return of Process.
func (p *Processor) report(ctx context.Context, msg *message.AgentMessage, result *message.ValidationResult) {
	if p.auditClient == nil {
		return
	}
	entry := p.buildDecisionLog(msg, result)
	go func() {
		reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		p.auditClient.Report(reportCtx, entry)
	}()
}

func (p *Processor) buildDecisionLog(msg *message.AgentMessage, result *message.ValidationResult) *message.DecisionLog {
	var riskScore float64
	if v, ok := result.Metadata["impact_score"]; ok {
		if f, ok := v.(float64); ok {
			riskScore = f
		}
	}
	policyVersion := p.policyVersion
	if v, ok := result.Metadata["policy_version"]; ok {
		if s, ok := v.(string); ok {
			policyVersion = s
		}
	}
	return &message.DecisionLog{
		TraceID:            msg.MessageID,
		AgentID:            msg.FromAgent,
		TenantID:           msg.TenantID,
		PolicyVersion:      policyVersion,
		RiskScore:          riskScore,
		Decision:           result.Decision,
		ConstitutionalHash: msg.ConstitutionalHash,
		Metadata:           result.Metadata,
		Timestamp:          time.Now().UTC(),
	}
}

type deniedError struct{ reason string }

func (e *deniedError) Error() string { return e.reason }

func firstOrDefault(errs []string, def string) string {
	if len(errs) == 0 {
		return def
	}
	return errs[0]
}
