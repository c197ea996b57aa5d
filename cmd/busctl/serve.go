package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/acgs/agentbus/pkg/audit"
	"github.com/acgs/agentbus/pkg/bus"
	"github.com/acgs/agentbus/pkg/config"
	"github.com/acgs/agentbus/pkg/deliberation"
	"github.com/acgs/agentbus/pkg/identity"
	"github.com/acgs/agentbus/pkg/impact"
	"github.com/acgs/agentbus/pkg/injection"
	"github.com/acgs/agentbus/pkg/processor"
	"github.com/acgs/agentbus/pkg/registry"
	"github.com/acgs/agentbus/pkg/router"
	"github.com/acgs/agentbus/pkg/strategy"
	"github.com/acgs/agentbus/pkg/validator"
)

// newServeBus wires every ambient dependency a running bus needs out
// of process config. The deliberation queue's divert threshold starts
// at cfg.DeliberationThreshold and adapts from there as outcomes are
// resolved (see deliberation.AdaptiveThreshold). The composite strategy
// always holds only the StaticHash-backed static strategy:
// cfg.StrategyOrder is not consulted, and no Rust/OPA/Dynamic-Policy
// child is wired.
func newServeBus(cfg *config.Config, logger *slog.Logger) (*bus.Bus, error) {
	reg := registry.NewInMemory()
	rt := router.New(logger)

	staticStrategy := strategy.NewStatic(&validator.StaticHash{
		Expected: cfg.ConstitutionalHash,
		Strict:   true,
	})

	keySet, err := identity.NewInMemoryKeySet()
	if err != nil {
		return nil, fmt.Errorf("busctl: key set init failed: %w", err)
	}

	threshold := deliberation.NewAdaptiveThreshold(cfg.DeliberationThreshold, cfg.MinSamplesForPrediction)
	queue := deliberation.NewQueueWithThreshold(threshold)
	auditClient := audit.NewClient(cfg.AuditURL, cfg.AuditTimeout, logger)

	proc, err := processor.New(processor.Config{
		Detector:      injection.New(nil),
		Strategy:      strategy.NewComposite(logger, staticStrategy),
		Scorer:        impact.NewScorer(cfg.MinSamplesForPrediction),
		Deliberation:  queue,
		Audit:         auditClient,
		PolicyVersion: "static:v1",
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("busctl: processor init failed: %w", err)
	}

	var brokers []string
	if cfg.KafkaBootstrap != "" {
		brokers = strings.Split(cfg.KafkaBootstrap, ",")
	}

	b := bus.New(bus.Config{
		Registry:          reg,
		Router:            rt,
		Processor:         proc,
		Deliberation:      queue,
		TokenVerifier:     bus.NewTokenVerifier(keySet),
		DynamicPolicyMode: false,
		KafkaBrokers:      brokers,
		KafkaTimeout:      cfg.KafkaTimeout,
		Logger:            logger,
	})
	return b, nil
}

func runServeCmd(_ []string, stdout, stderr io.Writer) int {
	cfg := config.Load()
	logger := slog.Default()

	b, err := newServeBus(cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	ctx := context.Background()
	if err := b.Start(ctx); err != nil {
		fmt.Fprintf(stderr, "Error starting bus: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "agent bus: running (state=%s, kafka=%v)\n", b.State(), cfg.KafkaBootstrap != "")
	fmt.Fprintln(stdout, "press ctrl+c to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := b.Stop(stopCtx); err != nil {
		log.Printf("bus stop: %v", err)
	}
	fmt.Fprintln(stdout, "agent bus: stopped")
	return 0
}
