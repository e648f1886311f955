package call

import "errors"

// Common errors for call and packet operations. Store backends translate
// their native failures into these so the engine never matches on
// backend-specific error types.
var (
	// ErrCallNotFound is returned when a call_id has no row.
	ErrCallNotFound = errors.New("call not found")

	// ErrDuplicatePacket is returned when a packet insert would violate the
	// (call_id, sequence) uniqueness invariant. It is a signal, not a
	// failure: the boundary reports it as duplicate=true with 202.
	ErrDuplicatePacket = errors.New("packet already exists")

	// ErrInvalidTransition is returned when a lifecycle transition is not an
	// edge of the state graph.
	ErrInvalidTransition = errors.New("invalid state transition")
)
