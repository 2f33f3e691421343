package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// InvalidInputError means an adapter handed the engine bad data: missing
// mandatory fields, out-of-range coordinates, a malformed url map.
// Adapters log it and move on to their next station.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string { return e.Reason }

// Invalidf builds an InvalidInputError.
func Invalidf(format string, args ...interface{}) error {
	return &InvalidInputError{Reason: fmt.Sprintf(format, args...)}
}

// UsageLimitError means an external API reported quota exhaustion. The
// engine caches it with a short TTL so the same coordinate fails fast
// until the back-off expires.
type UsageLimitError struct {
	Msg string
}

func (e *UsageLimitError) Error() string { return e.Msg }

// ProviderError is any other upstream failure: bad responses, zero
// results, unresolvable stations. Cached with a long TTL so a broken
// endpoint is not hammered every cadence.
type ProviderError struct {
	Msg string
}

func (e *ProviderError) Error() string { return e.Msg }

// Providerf builds a ProviderError.
func Providerf(format string, args ...interface{}) error {
	return &ProviderError{Msg: fmt.Sprintf(format, args...)}
}

// IsTimeout reports whether err is a network or context deadline. Timeouts
// propagate to the scheduler and are never cached.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
