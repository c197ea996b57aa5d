package validator

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/acgs/agentbus/pkg/message"
)

// DynamicPolicy models the policy-registry RPC as a locally embedded
// CEL program keyed by policy version: the registry ships a signed CEL
// expression, this validator compiles it once and caches the compiled
// program, and evaluation plays the role of the signature-verification
// result the real registry RPC would return.
type DynamicPolicy struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program

	// Expression is the active policy rule. It must evaluate to a bool.
	Expression string
	// PolicyVersion labels the active rule for audit/decision logs.
	PolicyVersion string
	// RequireToken, when true, denies registration attempts (see
	// Register) that omit an authentication token.
	RequireToken bool
	// FailClosed governs behaviour when the CEL program cannot be
	// compiled or evaluated: true denies, false allows with a warning.
	FailClosed bool
}

// NewDynamicPolicy builds a DynamicPolicy validator with the default
// constitutional-hash-equality rule.
func NewDynamicPolicy() (*DynamicPolicy, error) {
	env, err := cel.NewEnv(
		cel.Variable("hash", cel.StringType),
		cel.Variable("expected", cel.StringType),
		cel.Variable("has_content", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("validator: dynamic policy env: %w", err)
	}
	return &DynamicPolicy{
		env:           env,
		programs:      make(map[string]cel.Program),
		Expression:    `hash == expected && has_content`,
		PolicyVersion: "dynamic:v1",
		FailClosed:    true,
	}, nil
}

func (d *DynamicPolicy) Name() string { return "dynamic_policy" }

// Register installs a new policy expression under a version label.
// Per the governance contract, registration without a token is denied
// when RequireToken is set - the registry RPC this validator stands in
// for requires authenticated writers.
func (d *DynamicPolicy) Register(version, expression, token string) error {
	if d.RequireToken && token == "" {
		return fmt.Errorf("validator: dynamic policy registration requires a token")
	}
	if _, issues := d.env.Compile(expression); issues != nil && issues.Err() != nil {
		return fmt.Errorf("validator: dynamic policy compile: %w", issues.Err())
	}
	d.Expression = expression
	d.PolicyVersion = version
	d.mu.Lock()
	delete(d.programs, expression) // force recompile under the new version
	d.mu.Unlock()
	return nil
}

func (d *DynamicPolicy) program() (cel.Program, error) {
	d.mu.RLock()
	prg, ok := d.programs[d.Expression]
	d.mu.RUnlock()
	if ok {
		return prg, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if prg, ok := d.programs[d.Expression]; ok {
		return prg, nil
	}

	ast, issues := d.env.Compile(d.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("validator: dynamic policy compile: %w", issues.Err())
	}
	prg, err := d.env.Program(ast, cel.InterruptCheckFrequency(100), cel.CostLimit(10000))
	if err != nil {
		return nil, fmt.Errorf("validator: dynamic policy program: %w", err)
	}
	d.programs[d.Expression] = prg
	return prg, nil
}

func (d *DynamicPolicy) Validate(_ context.Context, msg *message.AgentMessage) (*message.ValidationResult, error) {
	expected := message.StaticConstitutionalHash

	prg, err := d.program()
	if err != nil {
		// RPC-equivalent failure: governed by fail_closed, never
		// shadowed/fallen-through silently when fail-closed is set.
		if d.FailClosed {
			return nil, &message.DeterministicDenial{Reason: "dynamic policy unavailable, fail-closed: " + err.Error()}
		}
		return nil, err
	}

	out, _, err := prg.Eval(map[string]any{
		"hash":        msg.ConstitutionalHash,
		"expected":    expected,
		"has_content": msg.Content != nil,
	})
	if err != nil {
		if d.FailClosed {
			return nil, &message.DeterministicDenial{Reason: "dynamic policy evaluation failed, fail-closed: " + err.Error()}
		}
		return nil, err
	}

	allowed, ok := out.Value().(bool)
	if !ok {
		return nil, &message.DeterministicDenial{Reason: "dynamic policy returned a non-boolean result"}
	}

	if !allowed {
		return message.Invalid(expected, "dynamic policy denied message "+msg.MessageID).
			WithMetadata("policy_version", d.PolicyVersion), nil
	}
	return message.Valid(expected).WithMetadata("policy_version", d.PolicyVersion), nil
}
