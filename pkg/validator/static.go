package validator

import (
	"context"

	"github.com/acgs/agentbus/pkg/message"
)

// StaticHash is the terminal fallback validator: it never depends on a
// remote collaborator, so it is always available. It checks the
// message carries the expected constitutional hash (unless running in
// non-strict mode) plus the baseline structural invariants (non-empty
// message id, non-nil content).
type StaticHash struct {
	// Expected is the constitutional hash every message must carry in
	// strict mode. Defaults to message.StaticConstitutionalHash.
	Expected string
	// Strict, when false, skips the hash comparison but still enforces
	// the structural checks.
	Strict bool
}

// NewStaticHash builds the default strict StaticHash validator.
func NewStaticHash() *StaticHash {
	return &StaticHash{Expected: message.StaticConstitutionalHash, Strict: true}
}

func (s *StaticHash) Name() string { return "static_hash" }

func (s *StaticHash) Validate(_ context.Context, msg *message.AgentMessage) (*message.ValidationResult, error) {
	expected := s.Expected
	if expected == "" {
		expected = message.StaticConstitutionalHash
	}

	if msg.MessageID == "" {
		return message.Invalid(expected, "message_id is required"), nil
	}
	if msg.Content == nil {
		return message.Invalid(expected, "content must not be nil"), nil
	}

	if s.Strict && msg.ConstitutionalHash != expected {
		return message.Invalid(expected, maskedHashReason(msg.ConstitutionalHash)), nil
	}

	return message.Valid(expected), nil
}
