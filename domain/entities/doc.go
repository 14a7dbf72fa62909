// Package entities contains the core domain types of the component host:
// the policy document model and the value types exchanged with the
// lifecycle manager.
package entities
