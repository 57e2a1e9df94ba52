package ghcnd

import "errors"

var (
	// ErrStationNotFound means the provider has no station for the
	// configured id. Fatal at session construction.
	ErrStationNotFound = errors.New("station not found")

	// ErrProviderUnavailable means a single request exhausted its retry
	// budget. The in-progress update fails but persisted state and the
	// checkpoint are left intact for a later retry.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrMalformedResponse means a response parsed but was missing
	// expected fields. Retryable until the attempt budget runs out.
	ErrMalformedResponse = errors.New("malformed provider response")
)
