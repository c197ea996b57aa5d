package strategy

import (
	"context"

	"github.com/acgs/agentbus/pkg/message"
	"github.com/acgs/agentbus/pkg/resiliency"
	"github.com/acgs/agentbus/pkg/validator"
)

// Dynamic is the Dynamic-Policy variant: validation against the policy
// registry (modeled here by validator.DynamicPolicy's embedded CEL
// program). Gated by the policy-dependency circuit breaker.
type Dynamic struct {
	Validator *validator.DynamicPolicy
	Breakers  *resiliency.Registry
}

func NewDynamic(v *validator.DynamicPolicy, breakers *resiliency.Registry) *Dynamic {
	return &Dynamic{Validator: v, Breakers: breakers}
}

func (d *Dynamic) Name() string { return "dynamic_policy" }

func (d *Dynamic) Available(context.Context) bool {
	if d.Validator == nil {
		return false
	}
	return d.Breakers.For(resiliency.DependencyPolicy).Allow()
}

func (d *Dynamic) Process(ctx context.Context, msg *message.AgentMessage) (*message.ValidationResult, error) {
	breaker := d.Breakers.For(resiliency.DependencyPolicy)

	result, err := d.Validator.Validate(ctx, msg)
	if err != nil {
		if message.IsDeterministic(err) {
			breaker.Success() // the backend answered; fail-closed denial is not a breaker failure
			return message.Invalid(msg.ConstitutionalHash, err.Error()), err
		}
		breaker.Failure()
		return nil, err
	}
	breaker.Success()
	return result, nil
}
