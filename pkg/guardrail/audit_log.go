package guardrail

import (
	"context"
	"log/slog"
)

// AuditLog is pipeline layer six: an always-on, never-blocking record
// of the pipeline's own pass. It exists purely to get appended to
// Pipeline.entries via Pipeline.runLayer; its own verdict never
// influences the final action.
type AuditLog struct {
	logger *slog.Logger
}

func NewAuditLog(logger *slog.Logger) *AuditLog {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLog{logger: logger.With("component", "guardrail_audit_log")}
}

func (a *AuditLog) Name() string { return "audit_log" }

func (a *AuditLog) Run(ctx context.Context, req *Request) LayerResult {
	a.logger.InfoContext(ctx, "guardrail pass recorded", "trace_id", req.TraceID, "tenant_id", req.TenantID)
	return LayerResult{Action: ActionAllow}
}
