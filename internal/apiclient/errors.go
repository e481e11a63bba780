// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error variables for common API failures.
var (
	// ErrUnauthorized matches any *APIError with HTTP 401.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound matches any *APIError with HTTP 404.
	ErrNotFound = errors.New("not found")

	// ErrResponseTooLarge indicates the body exceeded MaxResponseSize.
	ErrResponseTooLarge = errors.New("response too large")
)

// APIError is a non-2xx response from the API.
type APIError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error (HTTP %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api error (HTTP %d)", e.Status)
}

// Is lets errors.Is match status-class sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	}
	return false
}

// NetworkError is a transport-level failure: offline, DNS, timeout, cancellation.
type NetworkError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying transport error.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// errorBody covers the error shapes the API is known to return.
type errorBody struct {
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
}

// newAPIError builds an APIError, extracting a message from the body when present.
func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		switch {
		case eb.Message != "":
			apiErr.Message = eb.Message
		case len(eb.Error) > 0:
			var s string
			if json.Unmarshal(eb.Error, &s) == nil {
				apiErr.Message = s
			} else {
				var nested struct {
					Message string `json:"message"`
				}
				if json.Unmarshal(eb.Error, &nested) == nil {
					apiErr.Message = nested.Message
				}
			}
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(http.StatusText(status))
	}
	return apiErr
}
