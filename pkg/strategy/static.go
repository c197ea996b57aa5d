package strategy

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/acgs/agentbus/pkg/message"
	"github.com/acgs/agentbus/pkg/validator"
)

// Static is the Static/Python variant: validate via the embedded
// Validator; like every variant it leaves handlers to the processor's
// RunHandlers call. It is always available, which is what lets it serve as the composite's
// terminal fallback when paired with validator.StaticHash.
type Static struct {
	Validator validator.Validator

	validationCount  atomic.Int64
	validationFailed atomic.Int64
	lastDuration     atomic.Int64 // nanoseconds
}

// NewStatic wraps v as a Static processing strategy.
func NewStatic(v validator.Validator) *Static {
	return &Static{Validator: v}
}

func (s *Static) Name() string { return "static_python" }

func (s *Static) Available(context.Context) bool { return true }

func (s *Static) Process(ctx context.Context, msg *message.AgentMessage) (*message.ValidationResult, error) {
	start := time.Now()
	result, err := s.Validator.Validate(ctx, msg)
	s.validationCount.Add(1)
	s.lastDuration.Store(int64(time.Since(start)))
	if err != nil {
		if message.IsDeterministic(err) {
			s.validationFailed.Add(1)
			return message.Invalid(msg.ConstitutionalHash, err.Error()), err
		}
		return nil, err
	}
	if !result.IsValid {
		s.validationFailed.Add(1)
	}
	return result, nil
}

// Metrics reports validation duration and success/failure counters, as
// required by the per-variant spec for this strategy.
func (s *Static) Metrics() (count, failed int64, lastDuration time.Duration) {
	return s.validationCount.Load(), s.validationFailed.Load(), time.Duration(s.lastDuration.Load())
}
