// Package observability provides OpenTelemetry tracing and RED metrics
// for the agent message bus.
//
// # Tracing and metrics
//
// Initialize the provider at application startup:
//
//	p, err := observability.New(ctx, observability.DefaultConfig())
//	defer p.Shutdown(ctx)
//
// Track a message-processing operation end to end:
//
//	ctx, finish := p.TrackOperation(ctx, "message.process",
//		observability.MessageOperation(msg.MessageID, string(msg.MessageType), msg.TenantID)...)
//	defer finish(err)
//
// Create spans manually:
//
//	ctx, span := p.StartSpan(ctx, "strategy.process")
//	defer span.End()
package observability
