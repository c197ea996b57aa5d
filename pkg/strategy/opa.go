package strategy

import (
	"context"

	"github.com/acgs/agentbus/pkg/message"
	"github.com/acgs/agentbus/pkg/resiliency"
	"github.com/acgs/agentbus/pkg/validator"
)

// OPA is the OPA variant: constitutional validation performed via the
// policy engine. Every call is gated by the OPA circuit breaker so a
// string of transport failures trips the breaker and the composite
// stops trying this child until it recovers.
type OPA struct {
	Validator *validator.OPA
	Breakers  *resiliency.Registry
}

// NewOPA wraps v as an OPA processing strategy, gated by breakers.
func NewOPA(v *validator.OPA, breakers *resiliency.Registry) *OPA {
	return &OPA{Validator: v, Breakers: breakers}
}

func (o *OPA) Name() string { return "opa" }

func (o *OPA) Available(context.Context) bool {
	if o.Validator == nil || o.Validator.URL == "" {
		return false
	}
	return o.Breakers.For(resiliency.DependencyOPA).Allow()
}

func (o *OPA) Process(ctx context.Context, msg *message.AgentMessage) (*message.ValidationResult, error) {
	breaker := o.Breakers.For(resiliency.DependencyOPA)

	result, err := o.Validator.Validate(ctx, msg)
	if err != nil {
		breaker.Failure()
		return nil, err
	}
	breaker.Success()
	return result, nil
}
