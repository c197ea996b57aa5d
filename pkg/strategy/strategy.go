// Package strategy implements the Processing Strategy contract: each
// variant validates a message, RunHandlers runs its registered handlers
// as a separate step, and the Composite strategy chains variants with
// fallback in the order its children were given.
package strategy

import (
	"context"
	"fmt"

	"github.com/acgs/agentbus/pkg/message"
)

// Handler processes a message that has already passed validation.
// Both handlers registered for synchronous work and handlers that
// merely kick off async work (e.g. spawn a goroutine and return
// immediately) satisfy this same signature.
type Handler func(ctx context.Context, msg *message.AgentMessage) error

// HandlerSet maps a message type to its registered handlers.
type HandlerSet map[message.Type][]Handler

// Strategy is one processing variant in the composite fallback chain.
// Process only validates - it never runs handlers. Handler execution
// is a caller-controlled side effect the processor applies separately
// (via RunHandlers) once it has decided the message is not being
// diverted to deliberation; a strategy that ran handlers itself would
// make that decision before the impact score was even computed.
type Strategy interface {
	Name() string
	// Available reports whether this variant's backend is currently
	// reachable/configured. The composite skips unavailable children
	// without counting them as a failure.
	Available(ctx context.Context) bool
	Process(ctx context.Context, msg *message.AgentMessage) (*message.ValidationResult, error)
}

// RunHandlers invokes every handler registered for msg.MessageType in
// order. The first handler error turns the result invalid; remaining
// handlers still run so every side effect a caller registered gets a
// chance to execute. Callers must only invoke this once a result has
// been confirmed valid and not diverted to deliberation.
func RunHandlers(ctx context.Context, msg *message.AgentMessage, handlers HandlerSet, result *message.ValidationResult) *message.ValidationResult {
	for _, h := range handlers[msg.MessageType] {
		if err := h(ctx, msg); err != nil {
			result.IsValid = false
			result.Decision = message.DecisionDeny
			result.Errors = append(result.Errors, fmt.Sprintf("handler failed: %v", err))
		}
	}
	return result
}
