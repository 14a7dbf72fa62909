// Package hostfuncs provides the host function surface exposed to
// sandboxed components. Every gated operation consults the component's
// enforcement binding before touching the outside world, and failures are
// returned to the guest as structured JSON rather than traps.
package hostfuncs
