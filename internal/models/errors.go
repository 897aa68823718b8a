// -----------------------------------------------------------------------
// Error taxonomy - classification drives the dispatcher retry decision
// -----------------------------------------------------------------------

package models

import (
	"errors"
)

var (
	// ErrInvalidInput signals a validation failure at the facade (HTTP 400)
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound signals a missing referenced entity (HTTP 404)
	ErrNotFound = errors.New("not found")

	// ErrIllegalTransition signals a state machine violation (HTTP 400)
	ErrIllegalTransition = errors.New("illegal state transition")

	// ErrRateLimited signals an exhausted rate bucket; the job waits, it
	// does not fail
	ErrRateLimited = errors.New("rate limited")

	// ErrUpstreamFailure signals a marketplace error; retryable when the
	// status is transient
	ErrUpstreamFailure = errors.New("upstream failure")

	// ErrChannelSaturated signals a full plugin-bridge queue; the task
	// fails and the job retries per backoff
	ErrChannelSaturated = errors.New("plugin channel saturated")

	// ErrSessionLost signals a missing bridged-marketplace session;
	// terminal for the job, never retried
	ErrSessionLost = errors.New("session lost")

	// ErrTimeout signals a task that exceeded its deadline; retryable
	ErrTimeout = errors.New("timeout")

	// ErrCancelled signals explicit user cancellation; terminal
	ErrCancelled = errors.New("cancelled")

	// ErrInvariantViolation signals a tenant-isolation breach or
	// comparable contract break; the process aborts after logging
	ErrInvariantViolation = errors.New("invariant violation")
)

// Retryable reports whether a job failing with err is eligible for
// retry-with-backoff. SessionLost and Cancelled are always terminal.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, ErrSessionLost),
		errors.Is(err, ErrCancelled),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrIllegalTransition),
		errors.Is(err, ErrInvariantViolation):
		return false
	}
	return true
}

// IsTimeout reports whether err is a deadline classification, used to
// pick the dedicated timeout task status
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// Terminal reports whether err must immediately finalize the job even
// when retries remain.
func Terminal(err error) bool {
	return errors.Is(err, ErrSessionLost) || errors.Is(err, ErrCancelled)
}
