package strategy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/acgs/agentbus/pkg/message"
	"github.com/acgs/agentbus/pkg/resiliency"
)

// nativeVerdict is the wire representation exchanged with the native
// (Rust, compiled to WASM) processor over stdin/stdout.
type nativeVerdict struct {
	Allow  bool   `json:"allow"`
	Reason string `json:"reason,omitempty"`
}

// Rust is the Rust variant: the same validation logic as Static, but
// executed by an external native processor. The processor is a
// WebAssembly module (the realistic compilation target for a Rust
// validator) run inside a wazero sandbox with no filesystem or network
// access; the message is marshalled to JSON on stdin and the verdict
// read back from stdout. Handler execution is the processor's
// responsibility once it has accepted this result.
type Rust struct {
	runtime  wazero.Runtime
	module   []byte
	breakers *resiliency.Registry
}

// NewRust builds a Rust strategy around a compiled WASM module. A nil
// or empty module makes Available() report false so the composite
// skips straight to the next child, exactly as it would if the native
// processor binary were absent from the deployment.
func NewRust(ctx context.Context, wasmModule []byte, breakers *resiliency.Registry) *Rust {
	r := wazero.NewRuntime(ctx)
	wasi_snapshot_preview1.MustInstantiate(ctx, r)
	return &Rust{runtime: r, module: wasmModule, breakers: breakers}
}

func (r *Rust) Name() string { return "rust_native" }

func (r *Rust) Available(context.Context) bool {
	if len(r.module) == 0 {
		return false
	}
	return r.breakers.For("rust_native").Allow()
}

func (r *Rust) Process(ctx context.Context, msg *message.AgentMessage) (*message.ValidationResult, error) {
	breaker := r.breakers.For("rust_native")

	verdict, err := r.invokeNative(ctx, msg)
	if err != nil {
		breaker.Failure()
		return nil, fmt.Errorf("strategy: rust: %w", err)
	}
	breaker.Success()

	if !verdict.Allow {
		reason := verdict.Reason
		if reason == "" {
			reason = "native processor denied message"
		}
		return message.Invalid(msg.ConstitutionalHash, reason), nil
	}

	return message.Valid(msg.ConstitutionalHash), nil
}

func (r *Rust) invokeNative(ctx context.Context, msg *message.AgentMessage) (*nativeVerdict, error) {
	input, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal native input: %w", err)
	}

	compiled, err := r.runtime.CompileModule(ctx, r.module)
	if err != nil {
		return nil, fmt.Errorf("compile native module: %w", err)
	}
	defer func() { _ = compiled.Close(ctx) }()

	var stdout, stderr bytes.Buffer
	cfg := wazero.NewModuleConfig().
		WithStdin(bytes.NewReader(input)).
		WithStdout(&stdout).
		WithStderr(&stderr).
		WithStartFunctions("_start")

	mod, err := r.runtime.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		return nil, fmt.Errorf("instantiate native module: %w", err)
	}
	defer func() { _ = mod.Close(ctx) }()

	var verdict nativeVerdict
	if err := json.Unmarshal(stdout.Bytes(), &verdict); err != nil {
		return nil, fmt.Errorf("decode native verdict: %w", err)
	}
	return &verdict, nil
}

// Close releases the wazero runtime.
func (r *Rust) Close(ctx context.Context) error {
	return r.runtime.Close(ctx)
}
