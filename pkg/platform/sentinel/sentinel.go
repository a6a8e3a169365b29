package sentinel

import "errors"

// Sentinel errors for infrastructure facts. The durable mirror and other
// infrastructure adapters return these (optionally wrapped) so services can
// branch with errors.Is instead of matching driver-specific errors.
//
// - ErrNotFound: key or field does not exist in the store
// - ErrUnavailable: store temporarily unreachable or circuit open
var (
	ErrNotFound    = errors.New("not found")
	ErrUnavailable = errors.New("unavailable")
)
