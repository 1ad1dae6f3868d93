package models

import "errors"

// -----------------------------------------------------------------------------
// Error Taxonomy
// -----------------------------------------------------------------------------

var (
	// ErrValidation marks malformed requests rejected before any page or
	// session state is created.
	ErrValidation = errors.New("validation error")

	// ErrUpstreamFetch marks a failed exchange or archive fetch.
	ErrUpstreamFetch = errors.New("upstream fetch error")

	// ErrStorage marks a failed local storage operation.
	ErrStorage = errors.New("storage error")

	// ErrFetchAbandoned marks a streaming read stopped by CancelCurrentFetch
	// rather than finishing its range. Callers must not treat the read as
	// complete.
	ErrFetchAbandoned = errors.New("fetch abandoned")

	// ErrProtocol marks a malformed inbound wire message. The connection
	// stays open; only the offending message is answered with an error.
	ErrProtocol = errors.New("protocol error")
)
