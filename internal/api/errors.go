package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

// Error codes with special meaning for reconnection.
const (
	CodeNormalClosure      = 1000 // WebSocket normal closure
	CodeTokenExpired       = 40
	CodeTokenNotValid      = 41
	CodeTokenDateIncorrect = 42
)

var tokenInvalidCodes = []int{CodeTokenExpired, CodeTokenNotValid, CodeTokenDateIncorrect}

// APIError is the error envelope returned by the feeds backend, both in HTTP
// error bodies and inside connection.error socket frames.
type APIError struct {
	Code            int               `json:"code"`
	Duration        string            `json:"duration"`
	Message         string            `json:"message"`
	MoreInfo        string            `json:"more_info"`
	StatusCode      int               `json:"StatusCode"`
	Details         []int             `json:"details"`
	Unrecoverable   *bool             `json:"unrecoverable,omitempty"`
	ExceptionFields map[string]string `json:"exception_fields,omitempty"`
}

func (e *APIError) Error() string {
	if e.MoreInfo != "" {
		return fmt.Sprintf("feeds api error %d (status %d): %s (%s)", e.Code, e.StatusCode, e.Message, e.MoreInfo)
	}
	return fmt.Sprintf("feeds api error %d (status %d): %s", e.Code, e.StatusCode, e.Message)
}

// IsTokenInvalid returns true if the error reports an expired or invalid token.
func (e *APIError) IsTokenInvalid() bool {
	return slices.Contains(tokenInvalidCodes, e.Code)
}

// IsClientError returns true for HTTP 4xx-equivalent statuses.
func (e *APIError) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode <= 499
}

// IsNormalClosure returns true if the error represents a normal socket close.
func (e *APIError) IsNormalClosure() bool {
	return e.Code == CodeNormalClosure
}

// IsRetryable returns true if the request should be retried.
func (e *APIError) IsRetryable() bool {
	if e.Unrecoverable != nil && *e.Unrecoverable {
		return false
	}
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// ErrNotAPIError is returned when a payload does not contain an APIError.
var ErrNotAPIError = errors.New("payload is not an api error")

// DecodeError parses an APIError from either a flat envelope or one wrapped
// as {"error": {...}}. A payload without a message or code is rejected.
func DecodeError(data []byte) (*APIError, error) {
	var wrapped struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("decode api error: %w", err)
	}
	if wrapped.Error != nil && wrapped.Error.valid() {
		return wrapped.Error, nil
	}

	var flat APIError
	if err := json.Unmarshal(data, &flat); err != nil {
		return nil, fmt.Errorf("decode api error: %w", err)
	}
	if !flat.valid() {
		return nil, ErrNotAPIError
	}
	return &flat, nil
}

func (e *APIError) valid() bool {
	return e.Code != 0 || e.Message != "" || e.StatusCode != 0
}
