package strategy

import (
	"context"
	"log/slog"

	"github.com/acgs/agentbus/pkg/message"
)

// Composite tries each child strategy in order, falling through to the
// next only on a transient/availability error. A deterministic denial
// (hash mismatch, prompt-injection and the like) or any successful
// verdict - allow or deny - stops the chain immediately: retrying
// against a different backend cannot change a deterministic outcome.
//
// Default ordering per the spec is Rust -> OPA -> Dynamic-Policy ->
// StaticHash, with StaticHash as the always-available terminal
// fallback.
type Composite struct {
	children []Strategy
	logger   *slog.Logger
}

// NewComposite builds a composite over children, tried in the given
// order.
func NewComposite(logger *slog.Logger, children ...Strategy) *Composite {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composite{children: children, logger: logger.With("component", "composite_strategy")}
}

func (c *Composite) Name() string { return "composite" }

func (c *Composite) Available(ctx context.Context) bool {
	for _, child := range c.children {
		if child.Available(ctx) {
			return true
		}
	}
	return false
}

func (c *Composite) Process(ctx context.Context, msg *message.AgentMessage) (*message.ValidationResult, error) {
	for _, child := range c.children {
		if !child.Available(ctx) {
			c.logger.DebugContext(ctx, "strategy unavailable, skipping", "strategy", child.Name())
			continue
		}

		result, err := child.Process(ctx, msg)
		if err == nil {
			return result, nil
		}

		if message.IsDeterministic(err) {
			c.logger.WarnContext(ctx, "deterministic denial, not falling through",
				"strategy", child.Name(), "reason", err.Error())
			if result == nil {
				result = message.Invalid(msg.ConstitutionalHash, err.Error())
			}
			return result, nil
		}

		c.logger.WarnContext(ctx, "transient strategy failure, falling through",
			"strategy", child.Name(), "error", err.Error())
	}

	return &message.ValidationResult{
		IsValid:  false,
		Errors:   []string{"all strategies failed"},
		Decision: message.DecisionDeny,
	}, nil
}
