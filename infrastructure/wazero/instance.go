package wazero

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/yoktobit/wassette/domain/ports"
)

// Exports every component carries for the call convention rather than as
// callable tools.
var reservedExports = map[string]bool{
	"allocate":    true,
	"deallocate":  true,
	"_start":      true,
	"_initialize": true,
	"memory":      true,
}

// instance is a live component module plus the runtime that owns it.
type instance struct {
	runtime wazero.Runtime
	module  api.Module
	binding ports.EnforcementBinding
}

var _ ports.Instance = (*instance)(nil)

// Call invokes an exported function using the packed pointer+length
// convention: arguments are written into guest memory through the
// allocate export, the function returns packed ptr+len of the JSON
// response.
func (i *instance) Call(ctx context.Context, function string, args json.RawMessage) (json.RawMessage, error) {
	fn := i.module.ExportedFunction(function)
	if fn == nil {
		return nil, fmt.Errorf("component %s does not export %q", i.binding.ComponentID(), function)
	}

	var results []uint64
	var err error

	if len(args) == 0 {
		results, err = fn.Call(ctx)
	} else {
		allocate := i.module.ExportedFunction("allocate")
		if allocate == nil {
			return nil, fmt.Errorf("component %s does not export allocate", i.binding.ComponentID())
		}
		allocResults, allocErr := allocate.Call(ctx, uint64(len(args)))
		if allocErr != nil {
			return nil, fmt.Errorf("failed to allocate in guest: %w", allocErr)
		}
		if len(allocResults) == 0 {
			return nil, fmt.Errorf("allocate returned no results")
		}
		ptr := uint32(allocResults[0])
		if !i.module.Memory().Write(ptr, args) {
			return nil, fmt.Errorf("failed to write arguments to guest memory")
		}
		results, err = fn.Call(ctx, packPtrLen(ptr, uint32(len(args))))
	}

	if err != nil {
		return nil, fmt.Errorf("call to %s failed: %w", function, err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	ptr, length := unpackPtrLen(results[0])
	if ptr == 0 || length == 0 {
		return nil, nil
	}
	data, ok := i.module.Memory().Read(ptr, length)
	if !ok {
		return nil, fmt.Errorf("failed to read response from guest memory")
	}
	// Copy out of linear memory before the guest reuses it.
	out := make([]byte, length)
	copy(out, data)
	return out, nil
}

// Exports lists callable exported functions, excluding the call
// convention's own exports.
func (i *instance) Exports() []string {
	defs := i.module.ExportedFunctionDefinitions()
	names := make([]string, 0, len(defs))
	for name := range defs {
		if !reservedExports[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Close tears down the module and its runtime.
func (i *instance) Close(ctx context.Context) error {
	return i.runtime.Close(ctx)
}
