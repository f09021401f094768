package httperror

import (
	"fmt"
	"net/http"
)

// APIError is what the client returns for a response that isn't one
// of the daemon's own JSON errors: something in between (an ingress,
// say) answered, or the route doesn't exist. Retrieve it with
// errors.Cause(err).
type APIError struct {
	StatusCode int
	Status     string
	Body       string
}

func (err *APIError) Error() string {
	if err.Body == "" {
		return err.Status
	}
	return fmt.Sprintf("%s (%s)", err.Status, err.Body)
}

// IsUnavailable means the daemon (or whatever is in front of it) is
// not answering right now.
func (err *APIError) IsUnavailable() bool {
	switch err.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// IsMissing usually means the client and daemon versions don't match.
func (err *APIError) IsMissing() bool {
	return err.StatusCode == http.StatusNotFound
}

// IsRateLimited means webhook requests are arriving faster than the
// daemon is configured to accept them.
func (err *APIError) IsRateLimited() bool {
	return err.StatusCode == http.StatusTooManyRequests
}
