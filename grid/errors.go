package grid

import "errors"

var (
	// ErrInvalidSearch marks a search configuration that cannot produce a
	// sample grid (fewer than two samples per axis, or a bad bound).
	ErrInvalidSearch = errors.New("invalid search configuration")

	// ErrShortPayload is returned when a sensor payload is truncated or
	// declares a negative wall count.
	ErrShortPayload = errors.New("short sensor payload")

	ErrInvalidConfig = errors.New("invalid configuration")
)

var (
	ErrNotConnected = errors.New("mqtt client not connected")
	ErrNoWallsTopic = errors.New("mqtt.wallsTopic is required when a broker is configured")
)
