package policy

import (
	"fmt"
	"os"

	"github.com/yoktobit/wassette/domain/ports"
)

// Ensure implementations satisfy the interface.
var _ ports.DenialHandler = (*StderrDenialHandler)(nil)
var _ ports.DenialHandler = (*NopDenialHandler)(nil)

// StderrDenialHandler logs denials to stderr.
type StderrDenialHandler struct{}

func (h *StderrDenialHandler) OnDenial(componentID, capability, resource, reason string) {
	fmt.Fprintf(os.Stderr, "Permission Denied [%s/%s]: %s (Reason: %s)\n", componentID, capability, resource, reason)
}

// NopDenialHandler does nothing.
type NopDenialHandler struct{}

func (h *NopDenialHandler) OnDenial(componentID, capability, resource, reason string) {}
