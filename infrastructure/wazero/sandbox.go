package wazero

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	domainerrors "github.com/yoktobit/wassette/domain/errors"
	"github.com/yoktobit/wassette/domain/ports"
	"github.com/yoktobit/wassette/hostfuncs"
)

const (
	// HostModuleName is the import module components link against.
	HostModuleName = "wassette_host"

	wasmPageSize = 65536
	maxWasmPages = 65536 // 4GiB, the wasm32 ceiling
)

// sandboxConfig holds configuration for the Sandbox.
type sandboxConfig struct {
	maxRequestSize uint32
	logger         *slog.Logger
	httpOpts       []hostfuncs.HTTPOption
}

func defaultSandboxConfig() sandboxConfig {
	return sandboxConfig{
		maxRequestSize: hostfuncs.DefaultMaxRequestSize,
		logger:         slog.Default(),
	}
}

// SandboxOption configures the Sandbox.
type SandboxOption func(*sandboxConfig)

// WithMaxRequestSize sets the maximum request size read from guest memory.
func WithMaxRequestSize(size uint32) SandboxOption {
	return func(c *sandboxConfig) {
		if size > 0 {
			c.maxRequestSize = size
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) SandboxOption {
	return func(c *sandboxConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPOptions configures the outbound HTTP host function.
func WithHTTPOptions(opts ...hostfuncs.HTTPOption) SandboxOption {
	return func(c *sandboxConfig) {
		c.httpOpts = append(c.httpOpts, opts...)
	}
}

// Sandbox instantiates components, one wazero runtime per instance so
// memory limits and host functions never leak between components.
type Sandbox struct {
	config sandboxConfig
}

var _ ports.Sandbox = (*Sandbox)(nil)

// NewSandbox creates a Sandbox with the given options.
func NewSandbox(opts ...SandboxOption) *Sandbox {
	cfg := defaultSandboxConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Sandbox{config: cfg}
}

// Close releases sandbox-wide resources. Per-instance resources are
// released by closing the instance.
func (s *Sandbox) Close(ctx context.Context) error {
	return nil
}

// Instantiate builds a runtime from the binding and instantiates the
// module inside it.
func (s *Sandbox) Instantiate(ctx context.Context, componentID string, wasm []byte, binding ports.EnforcementBinding) (ports.Instance, error) {
	runtimeConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if limit := binding.MemoryLimitBytes(); limit > 0 {
		pages := (limit + wasmPageSize - 1) / wasmPageSize
		if pages == 0 {
			pages = 1
		}
		if pages > maxWasmPages {
			pages = maxWasmPages
		}
		runtimeConfig = runtimeConfig.WithMemoryLimitPages(uint32(pages))
	} else {
		runtimeConfig = runtimeConfig.WithMemoryLimitPages(maxWasmPages)
	}

	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeConfig)

	fail := func(stage string, err error) (ports.Instance, error) {
		runtime.Close(ctx)
		return nil, &domainerrors.LoadFailureError{Source: componentID, Stage: stage, Err: err}
	}

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		return fail("instantiate", fmt.Errorf("failed to instantiate wasi: %w", err))
	}

	registry, err := hostfuncs.NewRegistry(
		hostfuncs.WithMiddleware(
			hostfuncs.PanicRecoveryMiddleware(),
			hostfuncs.SlogMiddleware(s.config.logger),
		),
		hostfuncs.WithBindingBundle(binding, s.config.httpOpts...),
	)
	if err != nil {
		return fail("instantiate", fmt.Errorf("failed to build host function registry: %w", err))
	}

	if err := s.registerHostModule(ctx, runtime, registry, binding); err != nil {
		return fail("instantiate", fmt.Errorf("failed to register host module: %w", err))
	}

	moduleConfig := wazero.NewModuleConfig().WithName(componentID)
	for key, value := range binding.Environment() {
		moduleConfig = moduleConfig.WithEnv(key, value)
	}

	fsConfig := wazero.NewFSConfig()
	for _, mount := range binding.Mounts() {
		if mount.ReadOnly {
			fsConfig = fsConfig.WithReadOnlyDirMount(mount.HostPath, mount.GuestPath)
		} else {
			fsConfig = fsConfig.WithDirMount(mount.HostPath, mount.GuestPath)
		}
	}
	moduleConfig = moduleConfig.WithFSConfig(fsConfig)

	module, err := runtime.InstantiateWithConfig(ctx, wasm, moduleConfig)
	if err != nil {
		if isMemoryLimitError(err) && binding.MemoryLimitBytes() > 0 {
			runtime.Close(ctx)
			return nil, &domainerrors.ResourceExhaustedError{
				ComponentID: binding.ComponentID(),
				Resource:    "memory",
				Limit:       binding.MemoryLimitBytes(),
			}
		}
		return fail("instantiate", err)
	}

	if init := module.ExportedFunction("_initialize"); init != nil {
		if _, err := init.Call(ctx); err != nil {
			return fail("instantiate", fmt.Errorf("failed to call _initialize: %w", err))
		}
	}

	return &instance{
		runtime: runtime,
		module:  module,
		binding: binding,
	}, nil
}

// registerHostModule exports every registry handler under the host module
// name using the packed pointer+length call convention.
func (s *Sandbox) registerHostModule(ctx context.Context, runtime wazero.Runtime, registry *hostfuncs.HandlerRegistry, binding ports.EnforcementBinding) error {
	builder := runtime.NewHostModuleBuilder(HostModuleName)

	for _, name := range registry.Names() {
		funcName := name // capture for closure
		builder.NewFunctionBuilder().
			WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
				s.handleCall(ctx, mod, stack, registry, binding, funcName)
			}), []api.ValueType{api.ValueTypeI64}, []api.ValueType{api.ValueTypeI64}).
			Export(funcName)
	}

	// log-message lets components emit structured log lines without a
	// response payload.
	builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
			ptr, length := unpackPtrLen(stack[0])
			payload, ok := mod.Memory().Read(ptr, length)
			if !ok {
				return
			}
			s.config.logger.InfoContext(ctx, "component log",
				"component", binding.ComponentID(), "message", string(payload))
		}), []api.ValueType{api.ValueTypeI64}, nil).
		Export("log-message")

	_, err := builder.Instantiate(ctx)
	return err
}

// handleCall reads the request from guest memory, dispatches it, and
// writes the response back. Response allocations are accounted against the
// component's memory budget before touching guest memory.
func (s *Sandbox) handleCall(ctx context.Context, mod api.Module, stack []uint64, registry *hostfuncs.HandlerRegistry, binding ports.EnforcementBinding, name string) {
	ptr, length := unpackPtrLen(stack[0])

	if length > s.config.maxRequestSize {
		msg := fmt.Sprintf("request size %d exceeds maximum %d bytes", length, s.config.maxRequestSize)
		s.config.logger.ErrorContext(ctx, "oversized host call", "function", name, "component", binding.ComponentID())
		stack[0] = s.writeResponse(ctx, mod, binding, hostfuncs.NewValidationError(msg).ToJSON())
		return
	}

	payload, ok := mod.Memory().Read(ptr, length)
	if !ok {
		stack[0] = s.writeResponse(ctx, mod, binding, hostfuncs.NewInternalError("failed to read request from guest memory").ToJSON())
		return
	}

	response, err := registry.Invoke(ctx, name, payload)
	if err != nil {
		s.config.logger.ErrorContext(ctx, "host function invocation failed",
			"function", name, "component", binding.ComponentID(), "error", err)
		stack[0] = s.writeResponse(ctx, mod, binding, hostfuncs.ErrorToResponse(err).ToJSON())
		return
	}

	stack[0] = s.writeResponse(ctx, mod, binding, response)
}

// writeResponse allocates guest memory via the component's allocate export
// and writes the response bytes. Returns packed ptr+len, or 0 on failure.
func (s *Sandbox) writeResponse(ctx context.Context, mod api.Module, binding ports.EnforcementBinding, data []byte) uint64 {
	if err := binding.ReserveMemory(int64(len(data))); err != nil {
		s.config.logger.WarnContext(ctx, "response exceeds component memory budget",
			"component", binding.ComponentID(), "size", len(data))
		// Deliver the exhaustion error instead if it fits; otherwise trap
		// with a null response.
		payload := hostfuncs.ErrorToResponse(err).ToJSON()
		if reserveErr := binding.ReserveMemory(int64(len(payload))); reserveErr != nil {
			return 0
		}
		data = payload
	}

	allocate := mod.ExportedFunction("allocate")
	if allocate == nil {
		s.config.logger.ErrorContext(ctx, "guest module missing allocate export")
		return 0
	}

	results, err := allocate.Call(ctx, uint64(len(data)))
	if err != nil || len(results) == 0 {
		s.config.logger.ErrorContext(ctx, "guest allocate failed", "error", err)
		return 0
	}
	ptr := uint32(results[0])

	if !mod.Memory().Write(ptr, data) {
		s.config.logger.ErrorContext(ctx, "failed to write response to guest memory")
		return 0
	}

	return packPtrLen(ptr, uint32(len(data)))
}

func isMemoryLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "memory") &&
		(strings.Contains(msg, "limit") || strings.Contains(msg, "max pages") || strings.Contains(msg, "min pages"))
}

// packPtrLen packs a pointer and length into a single i64: upper 32 bits
// pointer, lower 32 bits length.
func packPtrLen(ptr, length uint32) uint64 {
	return (uint64(ptr) << 32) | uint64(length)
}

func unpackPtrLen(packed uint64) (ptr, length uint32) {
	return uint32(packed >> 32), uint32(packed & 0xFFFFFFFF)
}
