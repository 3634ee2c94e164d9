package presence

import "errors"

var (
	// ErrNotRegistered is returned when an operation references a connection
	// that has no session.
	ErrNotRegistered = errors.New("connection not registered")
	// ErrNotFound is returned by lookups for an unknown connection.
	ErrNotFound = errors.New("session not found")
	// ErrMalformedRequest marks an inbound event that was recognised and
	// intentionally dropped because a required field was missing or invalid.
	ErrMalformedRequest = errors.New("malformed request")
	// ErrUnknownEvent is returned for envelopes naming an event nobody handles.
	ErrUnknownEvent = errors.New("unknown event")
	// ErrDeliveryFailed is returned by a Deliverer that could not queue a frame.
	ErrDeliveryFailed = errors.New("delivery failed")
)
