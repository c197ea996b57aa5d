package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/acgs/agentbus/pkg/bus"
	"github.com/acgs/agentbus/pkg/config"
)

// runSpawnAgentCmd registers a development agent against a freshly
// booted, in-memory bus and reports the outcome. It exists to let a
// developer exercise Register without standing up the full server.
func runSpawnAgentCmd(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		fmt.Fprintln(stderr, "Usage: busctl spawn-agent <type> <name> [--capabilities a,b,c] [--tenant t1] [--json]")
		return 2
	}
	agentType, agentName := args[0], args[1]

	cmd := flag.NewFlagSet("spawn-agent", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		capabilitiesCSV string
		tenantID        string
		jsonOutput      bool
	)
	cmd.StringVar(&capabilitiesCSV, "capabilities", "", "Comma-separated capability list")
	cmd.StringVar(&tenantID, "tenant", "default", "Tenant id to register under")
	cmd.BoolVar(&jsonOutput, "json", false, "Output result as JSON")

	if err := cmd.Parse(args[2:]); err != nil {
		return 2
	}

	var capabilities []string
	if capabilitiesCSV != "" {
		for _, c := range strings.Split(capabilitiesCSV, ",") {
			c = strings.TrimSpace(c)
			if c != "" {
				capabilities = append(capabilities, c)
			}
		}
	}

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
	defer func() { _ = b.Stop(ctx) }()

	ok, regErr := b.Register(ctx, bus.RegisterRequest{
		AgentID:      agentName,
		AgentType:    agentType,
		TenantID:     tenantID,
		Capabilities: capabilities,
	})

	if regErr != nil {
		if jsonOutput {
			result := map[string]any{"success": false, "error": regErr.Error()}
			data, _ := json.MarshalIndent(result, "", "  ")
			fmt.Fprintln(stdout, string(data))
		} else {
			fmt.Fprintf(stderr, "Error registering agent: %v\n", regErr)
		}
		return 1
	}

	if jsonOutput {
		result := map[string]any{
			"success":      ok,
			"agentId":      agentName,
			"agentType":    agentType,
			"tenantId":     tenantID,
			"capabilities": capabilities,
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Fprintln(stdout, string(data))
	} else if ok {
		fmt.Fprintf(stdout, "registered agent %q (type=%s, tenant=%s)\n", agentName, agentType, tenantID)
	} else {
		fmt.Fprintf(stdout, "agent %q already registered\n", agentName)
	}

	if !ok {
		return 1
	}
	return 0
}
