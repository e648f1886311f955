package apiclient

import (
	"fmt"
	"net/http"
)

// APIError represents an RFC 7807 problem document returned by the API.
type APIError struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Title, e.Detail)
	}
	return e.Title
}

// IsNotFound returns true if the server reported 404.
func (e *APIError) IsNotFound() bool {
	return e.Status == http.StatusNotFound
}

// IsValidationError returns true if the server rejected the request body (422).
func (e *APIError) IsValidationError() bool {
	return e.Status == http.StatusUnprocessableEntity
}

// IsUnavailable returns true if the server is shutting down or not ready (503).
func (e *APIError) IsUnavailable() bool {
	return e.Status == http.StatusServiceUnavailable
}
