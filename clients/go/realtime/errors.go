package realtime

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by operations that need a live connection
	// when the transport has none. The caller decides whether to retry.
	ErrNotConnected = errors.New("not connected")

	// ErrAuthExpired marks a 401 that was not (or could no longer be)
	// recovered by the single-retry refresh protocol.
	ErrAuthExpired = errors.New("authentication expired")

	// ErrAccountBlocked marks a 403 for a blocked account. The session has
	// already been cleared when this is returned.
	ErrAccountBlocked = errors.New("account blocked")

	// ErrForbidden marks a plain 403; not retried, session untouched.
	ErrForbidden = errors.New("forbidden")

	// ErrRefreshFailed marks a failed credential refresh. Terminal for the
	// triggering request and every coalesced waiter; the session is cleared.
	ErrRefreshFailed = errors.New("token refresh failed")
)

// StatusError carries any other HTTP failure through to the caller
// unmodified.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Body)
}
