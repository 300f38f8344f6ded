package registry

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError is returned for any non-200 registry response.
type HTTPError struct {
	StatusCode int
	URL        string
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for URL %s: %s", e.StatusCode, e.URL, e.Message)
}

// retryable reports whether a failed request may succeed if repeated:
// transport failures, rate limiting and server errors.
func retryable(err error) bool {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		return true
	}
	return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500
}
