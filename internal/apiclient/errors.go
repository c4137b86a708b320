package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrSessionExpired marks fatal authentication failures. The session has
	// been torn down and the user must log in again.
	ErrSessionExpired = errors.New("session expired")

	// ErrNoRefreshToken is returned (wrapped in ErrSessionExpired) when a
	// request needs a refresh but no refresh token is held.
	ErrNoRefreshToken = errors.New("no refresh token available")

	// ErrNoRefresher is returned when a refresh is needed before a
	// Refresher has been configured.
	ErrNoRefresher = errors.New("no refresher configured")

	// ErrSessionEnded is returned (wrapped in ErrSessionExpired) when the
	// session was logged out or torn down while its refresh was in flight.
	ErrSessionEnded = errors.New("session ended during refresh")
)

// StatusError is a non-2xx response from the ERP API.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	// Code and Message come from the API's error envelope when present.
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// IsUnauthorized reports whether err is (or wraps) a 401 StatusError.
func IsUnauthorized(err error) bool {
	return HasStatus(err, http.StatusUnauthorized)
}

// HasStatus reports whether err is (or wraps) a StatusError with the given code.
func HasStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// sessionExpired wraps the causing error as a fatal authentication failure.
func sessionExpired(cause error) error {
	return fmt.Errorf("%w: %w", ErrSessionExpired, cause)
}
