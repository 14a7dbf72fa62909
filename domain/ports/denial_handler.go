package ports

// DenialHandler is invoked whenever an enforcement surface rejects an
// operation, before the error is returned to the caller.
type DenialHandler interface {
	OnDenial(componentID, capability, resource, reason string)
}
