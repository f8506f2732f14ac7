package internal

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is returned for every non-2xx response from a remote API. It keeps
// the request method, URL, status and response body so a failed test can be
// diagnosed from the error message alone, without re-running with verbose
// logging.
type APIError struct {
	Op         string `json:"op"`
	Method     string `json:"method"`
	URL        string `json:"url"`
	StatusCode int    `json:"status_code"`
	Status     string `json:"status"`
	Body       string `json:"body,omitempty"`
}

func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s: %s %s returned %s: %s", e.Op, e.Method, e.URL, e.Status, e.Body)
	}
	return fmt.Sprintf("%s: %s %s returned %s", e.Op, e.Method, e.URL, e.Status)
}

func NewAPIError(op, method, url string, statusCode int, body string) *APIError {
	return &APIError{
		Op:         op,
		Method:     method,
		URL:        url,
		StatusCode: statusCode,
		Status:     fmt.Sprintf("%d %s", statusCode, http.StatusText(statusCode)),
		Body:       body,
	}
}

// AsAPIError unwraps err looking for an APIError.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, statusCode int) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.StatusCode == statusCode
}

func IsNotFound(err error) bool {
	return IsStatus(err, http.StatusNotFound)
}

func IsUnauthorized(err error) bool {
	return IsStatus(err, http.StatusUnauthorized)
}

// IsServerError reports whether err is an APIError with a 5xx status. Signup
// treats these as transient backend overload and retries them.
func IsServerError(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.StatusCode >= http.StatusInternalServerError
}
