package guardrail

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// ToolSandbox is pipeline layer four: optional isolated execution for
// tool calls, deny-by-default (no filesystem, no network), with
// memory and CPU time ceilings. A message with no tool_call content
// key skips the sandbox entirely - most messages never reach it.
type ToolSandbox struct {
	runtime          wazero.Runtime
	memoryLimitBytes uint32
	cpuTimeLimit     time.Duration
}

// NewToolSandbox builds a sandbox bounding modules to memoryLimitBytes
// and cpuTimeLimit.
func NewToolSandbox(ctx context.Context, memoryLimitBytes uint32, cpuTimeLimit time.Duration) *ToolSandbox {
	cfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if memoryLimitBytes > 0 {
		pages := memoryLimitBytes / (64 * 1024)
		if pages == 0 {
			pages = 1
		}
		cfg = cfg.WithMemoryLimitPages(pages)
	}
	r := wazero.NewRuntimeWithConfig(ctx, cfg)
	wasi_snapshot_preview1.MustInstantiate(ctx, r)
	return &ToolSandbox{runtime: r, memoryLimitBytes: memoryLimitBytes, cpuTimeLimit: cpuTimeLimit}
}

func (t *ToolSandbox) Name() string { return "tool_runner_sandbox" }

func (t *ToolSandbox) Run(ctx context.Context, req *Request) LayerResult {
	toolCall, ok := req.Content["tool_call"]
	if !ok {
		return LayerResult{Action: ActionAllow}
	}
	wasmModule, ok := req.Content["tool_wasm_module"].([]byte)
	if !ok || len(wasmModule) == 0 {
		return LayerResult{Action: ActionBlock, Violations: []Violation{{
			Rule: "sandbox_module_missing", Severity: SeverityHigh, Detail: "tool call requires a sandboxed module",
		}}}
	}

	if t.cpuTimeLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cpuTimeLimit)
		defer cancel()
	}

	input, err := json.Marshal(toolCall)
	if err != nil {
		return LayerResult{Action: ActionBlock, Violations: []Violation{{
			Rule: "sandbox_marshal_failed", Severity: SeverityHigh, Detail: err.Error(),
		}}}
	}

	out, err := t.run(ctx, wasmModule, input)
	if err != nil {
		return LayerResult{Action: ActionBlock, Violations: []Violation{{
			Rule: "sandbox_execution_failed", Severity: SeverityHigh, Detail: err.Error(),
		}}}
	}

	modified := map[string]any{}
	for k, v := range req.Content {
		modified[k] = v
	}
	modified["tool_result"] = string(out)
	return LayerResult{Action: ActionSandbox, ModifiedData: modified}
}

func (t *ToolSandbox) run(ctx context.Context, wasmModule, input []byte) ([]byte, error) {
	compiled, err := t.runtime.CompileModule(ctx, wasmModule)
	if err != nil {
		return nil, err
	}
	defer func() { _ = compiled.Close(ctx) }()

	var stdout bytes.Buffer
	cfg := wazero.NewModuleConfig().
		WithStdin(bytes.NewReader(input)).
		WithStdout(&stdout).
		WithStartFunctions("_start")

	mod, err := t.runtime.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		return nil, err
	}
	defer func() { _ = mod.Close(ctx) }()

	return stdout.Bytes(), nil
}

// Close releases the wazero runtime.
func (t *ToolSandbox) Close(ctx context.Context) error {
	return t.runtime.Close(ctx)
}
