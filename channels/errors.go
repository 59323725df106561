package channels

import (
	"errors"
	"fmt"
)

// Sentinel errors for the channel subsystem. Callers classify with
// errors.Is; wrapping keeps the upstream detail attached.
var (
	// ErrUnsupportedChannelType is returned by the registry for channel
	// types no implementation was registered for.
	ErrUnsupportedChannelType = errors.New("unsupported channel type")

	// ErrMissingRequiredData marks a structurally invalid webhook payload.
	// It is rejected at the boundary and never retried.
	ErrMissingRequiredData = errors.New("missing required data")

	// ErrConnectionStalled is reported when the connect flow's circuit
	// breaker stayed open for a full cycle. The instance is left in error.
	ErrConnectionStalled = errors.New("connection stalled")

	// ErrConflictActiveConversations blocks instance deletion while
	// conversations still see activity.
	ErrConflictActiveConversations = errors.New("instance has active conversations")

	// ErrTransient classifies provider failures (network, timeout, 5xx)
	// that the connect flow retries through the circuit breaker.
	ErrTransient = errors.New("transient provider error")
)

// WrapTransient annotates err so the connect flow counts it against the
// circuit breaker.
func WrapTransient(err error) error {
	if err == nil {
		return ErrTransient
	}
	return fmt.Errorf("%w: %v", ErrTransient, err)
}

// WrapMissingData annotates a payload validation failure with the missing
// field name.
func WrapMissingData(field string) error {
	return fmt.Errorf("%w: %s", ErrMissingRequiredData, field)
}
