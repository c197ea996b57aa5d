// Package bus implements the Agent Bus: the top-level service that
// ties together the registry, router, processor, deliberation queue
// and (optionally) a Kafka transport behind a stopped -> starting ->
// running -> stopping -> stopped lifecycle.
package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/acgs/agentbus/pkg/deliberation"
	"github.com/acgs/agentbus/pkg/message"
	"github.com/acgs/agentbus/pkg/processor"
	"github.com/acgs/agentbus/pkg/registry"
	"github.com/acgs/agentbus/pkg/resiliency"
	"github.com/acgs/agentbus/pkg/router"
	"github.com/acgs/agentbus/pkg/tenant"
)

// State is the bus's lifecycle state.
type State string

const (
	StateStopped  State = "STOPPED"
	StateStarting State = "STARTING"
	StateRunning  State = "RUNNING"
	StateStopping State = "STOPPING"
)

// ErrNotRunning is returned by any operation attempted outside the
// RUNNING state.
var ErrNotRunning = errors.New("bus: not running")

// ErrTokenRequired is returned by Register when dynamic-policy mode is
// enabled and the caller supplied no token.
var ErrTokenRequired = errors.New("bus: registration token required in dynamic-policy mode")

// Config wires a Bus's dependencies. Registry, Router and Processor
// are required. KafkaBrokers enables the Kafka bridge; an empty slice
// keeps the bus entirely in-process.
type Config struct {
	Registry          registry.Registry
	Router            router.Router
	Processor         *processor.Processor
	Deliberation      *deliberation.Queue
	Breakers          *resiliency.Registry
	TokenVerifier     *TokenVerifier
	DynamicPolicyMode bool
	KafkaBrokers      []string
	KafkaGroupID      string
	KafkaTimeout      time.Duration
	Logger            *slog.Logger
}

// RegisterRequest is the input to Register.
type RegisterRequest struct {
	AgentID      string
	AgentType    string
	TenantID     string
	Capabilities []string
	Credential   string // raw credential, hashed with bcrypt before storage
	Token        string // JWT/SVID, required in dynamic-policy mode
}

// Bus is the Agent Bus.
type Bus struct {
	mu                sync.RWMutex
	state             State
	registry          registry.Registry
	router            router.Router
	processor         *processor.Processor
	deliberation      *deliberation.Queue
	breakers          *resiliency.Registry
	tokenVerifier     *TokenVerifier
	dynamicPolicyMode bool
	logger            *slog.Logger

	inbox    *inbox
	kafka    *kafkaBridge
	kafkaCfg Config
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	failedCount int64
}

// New builds a Bus in the STOPPED state. Call Start before using it.
func New(cfg Config) *Bus {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	breakers := cfg.Breakers
	if breakers == nil {
		breakers = resiliency.NewRegistry()
	}
	return &Bus{
		state:             StateStopped,
		registry:          cfg.Registry,
		router:            cfg.Router,
		processor:         cfg.Processor,
		deliberation:      cfg.Deliberation,
		breakers:          breakers,
		tokenVerifier:     cfg.TokenVerifier,
		dynamicPolicyMode: cfg.DynamicPolicyMode,
		logger:            logger.With("component", "agent_bus"),
		inbox:             newInbox(),
		kafkaCfg:          cfg,
	}
}

// State reports the bus's current lifecycle state.
func (b *Bus) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Start transitions STOPPED -> STARTING -> RUNNING, initializing the
// Kafka bridge and its background poller when KafkaBrokers is set.
// Calling Start on an already-running bus is a no-op.
func (b *Bus) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.state == StateRunning || b.state == StateStarting {
		b.mu.Unlock()
		return nil
	}
	b.state = StateStarting
	cfg := b.kafkaCfg
	b.mu.Unlock()

	var bridge *kafkaBridge
	if len(cfg.KafkaBrokers) > 0 {
		groupID := cfg.KafkaGroupID
		if groupID == "" {
			groupID = "agentbus"
		}
		timeout := cfg.KafkaTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		bridge = newKafkaBridge(cfg.KafkaBrokers, groupID, timeout, b.inbox, b.logger)
	}

	pollCtx, cancel := context.WithCancel(context.Background())

	b.mu.Lock()
	b.kafka = bridge
	b.cancel = cancel
	b.state = StateRunning
	b.mu.Unlock()

	if bridge != nil {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			bridge.poll(pollCtx)
		}()
	}

	b.logger.InfoContext(ctx, "agent bus started", "kafka_enabled", bridge != nil)
	return nil
}

// Stop transitions to STOPPING, cancels the Kafka poller, drains it
// with a 5s join timeout, closes transports, and settles in STOPPED.
// Idempotent: calling Stop on an already-stopped bus is a no-op.
func (b *Bus) Stop(ctx context.Context) error {
	b.mu.Lock()
	if b.state == StateStopped || b.state == StateStopping {
		b.mu.Unlock()
		return nil
	}
	b.state = StateStopping
	cancel := b.cancel
	bridge := b.kafka
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		b.logger.WarnContext(ctx, "bus stop: poller join timed out")
	}

	if bridge != nil {
		if err := bridge.close(); err != nil {
			b.logger.WarnContext(ctx, "bus stop: kafka bridge close failed", "error", err)
		}
	}
	b.inbox.close()

	b.mu.Lock()
	b.state = StateStopped
	b.mu.Unlock()

	b.logger.InfoContext(ctx, "agent bus stopped")
	return nil
}

// Register verifies (when supplied) a registration token, hashes a
// supplied credential with bcrypt, and inserts the agent record.
// Dynamic-policy mode requires a token; its claims' agent_id/tenant_id
// must match the request or Register fails closed.
func (b *Bus) Register(ctx context.Context, req RegisterRequest) (bool, error) {
	if b.State() != StateRunning {
		return false, ErrNotRunning
	}

	if req.Token == "" && b.dynamicPolicyMode {
		return false, ErrTokenRequired
	}

	capabilities := req.Capabilities
	if req.Token != "" {
		if b.tokenVerifier == nil {
			return false, fmt.Errorf("bus: token supplied but no verifier configured")
		}
		claims, err := b.tokenVerifier.Verify(req.Token, req.AgentID, req.TenantID)
		if err != nil {
			return false, err
		}
		if len(claims.Capabilities) > 0 {
			capabilities = claims.Capabilities
		}
	}

	var credHash string
	if req.Credential != "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(req.Credential), bcrypt.DefaultCost)
		if err != nil {
			return false, fmt.Errorf("bus: credential hashing failed: %w", err)
		}
		credHash = string(hashed)
	}

	now := time.Now().UTC()
	rec := registry.Record{
		AgentID:           req.AgentID,
		AgentType:         req.AgentType,
		Capabilities:      capabilities,
		TenantID:          req.TenantID,
		RegisteredAt:      now,
		UpdatedAt:         now,
		ConstitutionalKey: credHash,
		Status:            registry.StatusActive,
	}
	return b.registry.Register(ctx, rec)
}

// Send runs msg through tenant isolation, the Message Processor, and -
// unless the processor diverted it to deliberation - local and/or
// Kafka transport. The processor's Process call already fire-and-
// forgets the audit report, so Send does not duplicate it.
func (b *Bus) Send(ctx context.Context, msg *message.AgentMessage) (*message.ValidationResult, error) {
	if b.State() != StateRunning {
		return nil, ErrNotRunning
	}

	senderTenant, recipientTenant, err := b.tenantsFor(ctx, msg)
	if err != nil {
		return nil, err
	}
	if err := tenant.Check(msg, senderTenant, recipientTenant); err != nil {
		b.mu.Lock()
		b.failedCount++
		b.mu.Unlock()
		return message.Invalid(msg.ConstitutionalHash, err.Error()), nil
	}

	result, err := b.processor.Process(ctx, msg)
	if err != nil {
		return nil, err
	}
	if !result.IsValid {
		b.mu.Lock()
		b.failedCount++
		b.mu.Unlock()
		return result, nil
	}

	if diverted, ok := result.Metadata["diverted_to_deliberation"].(bool); ok && diverted {
		msg.Status = message.StatusPendingDeliberation
		return result, nil
	}

	if _, err := b.router.Route(ctx, msg, b.registry); err != nil {
		b.logger.WarnContext(ctx, "send: routing failed", "error", err)
	}

	if b.kafka != nil {
		breaker := b.breakers.For("kafka")
		if !breaker.Allow() {
			b.logger.WarnContext(ctx, "send: kafka breaker open, skipping publish")
		} else if err := b.kafka.publish(ctx, msg); err != nil {
			breaker.Failure()
			b.mu.Lock()
			b.failedCount++
			b.mu.Unlock()
			return message.Invalid(msg.ConstitutionalHash, "kafka publish failed: "+err.Error()), nil
		} else {
			breaker.Success()
		}
	}
	b.inbox.push(msg)

	msg.Status = message.StatusDelivered
	return result, nil
}

// Broadcast routes msg to every tenant-eligible recipient (sender
// excluded) and runs each through Send's same pipeline, returning a
// per-recipient result map.
func (b *Bus) Broadcast(ctx context.Context, msg *message.AgentMessage) (map[string]*message.ValidationResult, error) {
	if b.State() != StateRunning {
		return nil, ErrNotRunning
	}

	targets, err := b.router.Broadcast(ctx, msg, b.registry)
	if err != nil {
		return nil, err
	}

	results := make(map[string]*message.ValidationResult, len(targets))
	for _, target := range targets {
		clone := *msg
		clone.ToAgent = target
		result, err := b.Send(ctx, &clone)
		if err != nil {
			results[target] = message.Invalid(msg.ConstitutionalHash, err.Error())
			continue
		}
		results[target] = result
	}
	return results, nil
}

// Receive blocks on the internal delivery queue up to timeout.
func (b *Bus) Receive(ctx context.Context, timeout time.Duration) (*message.AgentMessage, bool) {
	return b.inbox.pop(ctx, timeout)
}

// FailedCount returns the number of Send calls that resulted in an
// invalid ValidationResult since Start.
func (b *Bus) FailedCount() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.failedCount
}

func (b *Bus) tenantsFor(ctx context.Context, msg *message.AgentMessage) (sender, recipient string, err error) {
	if rec, ok, lookupErr := b.registry.Get(ctx, msg.FromAgent); lookupErr == nil && ok {
		sender = rec.TenantID
	} else if lookupErr != nil {
		return "", "", lookupErr
	}
	if !msg.IsBroadcast() {
		if rec, ok, lookupErr := b.registry.Get(ctx, msg.ToAgent); lookupErr == nil && ok {
			recipient = rec.TenantID
		} else if lookupErr != nil {
			return "", "", lookupErr
		}
	}
	return sender, recipient, nil
}
