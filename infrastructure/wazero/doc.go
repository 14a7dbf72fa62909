// Package wazero runs components on the wazero runtime. Each instance gets
// its own runtime configured from the component's enforcement binding:
// memory limit, filesystem mounts, effective environment, and the gated
// host function module.
package wazero
