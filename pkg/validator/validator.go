// Package validator implements the pluggable constitutional-validation
// variants: StaticHash, DynamicPolicy (CEL-backed) and OPA (HTTP PDP).
// Each variant decides whether a message may proceed past the
// constitutional gate.
package validator

import (
	"context"

	"github.com/acgs/agentbus/pkg/canonicalize"
	"github.com/acgs/agentbus/pkg/message"
)

// Validator validates a message against the constitutional policy.
//
// Contract: a nil error with a non-nil result means the strategy
// reached a verdict (allow or deterministic denial) — the caller
// (pkg/strategy's composite) must not consult any other variant. A
// non-nil error means the variant itself could not run (RPC failure,
// timeout, transport error); the caller decides whether that error is
// transient (try the next variant) or should be surfaced, using
// message.IsDeterministic.
type Validator interface {
	Validate(ctx context.Context, msg *message.AgentMessage) (*message.ValidationResult, error)
	// Name identifies the variant for logging and audit.
	Name() string
}

func maskedHashReason(got string) string {
	return "constitutional hash mismatch: " + canonicalize.MaskHash(got)
}
