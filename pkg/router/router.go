// Package router picks delivery targets for an AgentMessage given the
// current Agent Registry, enforcing tenant isolation on every path.
package router

import (
	"context"
	"log/slog"

	"github.com/acgs/agentbus/pkg/message"
	"github.com/acgs/agentbus/pkg/registry"
	"github.com/acgs/agentbus/pkg/tenant"
)

// Router resolves one or more recipients for a message.
type Router interface {
	// Route returns the single target agent id, or "" if none could
	// be resolved (logged, not an error - routing failure is not the
	// same as a validation denial). An error is returned only when a
	// registry call fails.
	Route(ctx context.Context, msg *message.AgentMessage, reg registry.Registry) (string, error)
	// Broadcast returns every eligible recipient after tenant
	// filtering, excluding the sender.
	Broadcast(ctx context.Context, msg *message.AgentMessage, reg registry.Registry) ([]string, error)
}

// Composite tries Direct routing first; if the message has no
// explicit recipient it falls back to capability-based search. This
// mirrors the spec's description of Direct/Capability as two facets
// of one Route() contract rather than independent strategies.
type Composite struct {
	logger *slog.Logger
}

// New creates the default Router.
func New(logger *slog.Logger) *Composite {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composite{logger: logger.With("component", "router")}
}

func (c *Composite) Route(ctx context.Context, msg *message.AgentMessage, reg registry.Registry) (string, error) {
	if !msg.IsBroadcast() {
		return c.routeDirect(ctx, msg, reg)
	}
	return c.routeByCapability(ctx, msg, reg)
}

// routeDirect resolves msg.ToAgent iff it exists in the registry and
// tenants match; otherwise returns "" (logged).
func (c *Composite) routeDirect(ctx context.Context, msg *message.AgentMessage, reg registry.Registry) (string, error) {
	rec, ok, err := reg.Get(ctx, msg.ToAgent)
	if err != nil {
		return "", err
	}
	if !ok {
		c.logger.WarnContext(ctx, "route: recipient not registered", "to_agent", msg.ToAgent)
		return "", nil
	}
	if msg.TenantID != "" && rec.TenantID != msg.TenantID {
		c.logger.WarnContext(ctx, "route: recipient tenant mismatch",
			"to_agent", msg.ToAgent, "expected_tenant", msg.TenantID, "actual_tenant", rec.TenantID)
		return "", nil
	}
	return msg.ToAgent, nil
}

// routeByCapability searches the registry for any agent whose
// capability set is a superset of the message's required
// capabilities, restricted to the message's tenant when set.
func (c *Composite) routeByCapability(ctx context.Context, msg *message.AgentMessage, reg registry.Registry) (string, error) {
	required := msg.RequiredCapabilities()
	if len(required) == 0 {
		return "", nil
	}

	ids, err := reg.ListAgents(ctx)
	if err != nil {
		return "", err
	}
	for _, id := range ids {
		if id == msg.FromAgent {
			continue
		}
		rec, ok, err := reg.Get(ctx, id)
		if err != nil || !ok {
			continue
		}
		if msg.TenantID != "" && rec.TenantID != msg.TenantID {
			continue
		}
		if rec.HasAllCapabilities(required) {
			return id, nil
		}
	}
	c.logger.WarnContext(ctx, "route: no capable agent found", "required_capabilities", required)
	return "", nil
}

// Broadcast returns every registered agent in the message's tenant,
// excluding the sender. When the message is untenanted, every agent
// is eligible.
func (c *Composite) Broadcast(ctx context.Context, msg *message.AgentMessage, reg registry.Registry) ([]string, error) {
	ids, err := reg.ListAgents(ctx)
	if err != nil {
		return nil, err
	}

	candidates := make(map[string]registry.Record, len(ids))
	for _, id := range ids {
		rec, ok, err := reg.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			candidates[id] = rec
		}
	}

	if msg.TenantID == "" {
		out := make([]string, 0, len(candidates))
		for id := range candidates {
			if id != msg.FromAgent {
				out = append(out, id)
			}
		}
		return out, nil
	}

	return tenant.Filter(candidates, msg.TenantID, msg.FromAgent), nil
}
