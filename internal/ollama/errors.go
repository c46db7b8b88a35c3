// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/jeranaias/rigrun-agent/internal/metrics"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the Ollama client.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// Is matches any ClientError of the same Type, so a detailed error returned by
// the client satisfies errors.Is against the corresponding sentinel.
func (e *ClientError) Is(target error) bool {
	t, ok := target.(*ClientError)
	return ok && t.Type == e.Type
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeConnection
	ErrTypeTimeout
	ErrTypeModelNotFound
	ErrTypeContextExceeded
	ErrTypeValidation
	ErrTypeInvalidResponse
)

// String returns the lowercase name of the error type.
func (t ErrorType) String() string {
	switch t {
	case ErrTypeConnection:
		return "connection"
	case ErrTypeTimeout:
		return "timeout"
	case ErrTypeModelNotFound:
		return "model_not_found"
	case ErrTypeContextExceeded:
		return "context_exceeded"
	case ErrTypeValidation:
		return "validation"
	case ErrTypeInvalidResponse:
		return "invalid_response"
	default:
		return "unknown"
	}
}

// Sentinel errors for easy checking.
var (
	ErrConnection      = &ClientError{Type: ErrTypeConnection, Message: "cannot reach Ollama"}
	ErrTimeout         = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
	ErrModelNotFound   = &ClientError{Type: ErrTypeModelNotFound, Message: "model not found"}
	ErrContextExceeded = &ClientError{Type: ErrTypeContextExceeded, Message: "context window exceeded"}
	ErrValidation      = &ClientError{Type: ErrTypeValidation, Message: "invalid request"}
	ErrInvalidResponse = &ClientError{Type: ErrTypeInvalidResponse, Message: "invalid response from Ollama"}
)

// NewValidationError returns a validation error describing the bad input.
func NewValidationError(message string) error {
	return &ClientError{Type: ErrTypeValidation, Message: message}
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

// classifyTransportError maps an http.Client.Do failure to a ClientError.
// Caller cancellation is returned unchanged so it is never retried.
func classifyTransportError(err error, baseURL string) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ClientError{Type: ErrTypeTimeout, Message: "no response from " + baseURL + " before deadline", Cause: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &ClientError{Type: ErrTypeTimeout, Message: "no response from " + baseURL + " before deadline", Cause: err}
	}
	return &ClientError{Type: ErrTypeConnection, Message: "cannot reach Ollama at " + baseURL, Cause: err}
}

// classifyDecodeError maps a failure while reading a 200 response body.
// A client timeout that fires mid-body is a timeout, not a malformed reply.
func classifyDecodeError(err error, baseURL string) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &ClientError{Type: ErrTypeTimeout, Message: "response from " + baseURL + " stalled before completion", Cause: err}
	}
	return &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: err}
}

// classifyStatus maps a non-200 response and its decoded error text to a
// ClientError.
func classifyStatus(status int, statusText, apiMessage, model string) error {
	lower := strings.ToLower(apiMessage)

	switch {
	case status == http.StatusNotFound,
		strings.Contains(lower, "not found") && strings.Contains(lower, "model"):
		msg := "model " + model + " not found"
		if apiMessage != "" {
			msg = apiMessage
		}
		return &ClientError{Type: ErrTypeModelNotFound, Message: msg}
	case isContextOverflow(lower):
		return &ClientError{Type: ErrTypeContextExceeded, Message: apiMessage}
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return &ClientError{Type: ErrTypeTimeout, Message: "Ollama timed out: " + statusText}
	case status == http.StatusBadGateway, status == http.StatusServiceUnavailable:
		return &ClientError{Type: ErrTypeConnection, Message: "Ollama unavailable: " + statusText}
	}

	if apiMessage != "" {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: apiMessage}
	}
	return &ClientError{Type: ErrTypeInvalidResponse, Message: "chat request failed: " + statusText}
}

func isContextOverflow(lowerMsg string) bool {
	return strings.Contains(lowerMsg, "context length") ||
		strings.Contains(lowerMsg, "context window") ||
		strings.Contains(lowerMsg, "exceeds maximum context") ||
		strings.Contains(lowerMsg, "too many tokens")
}

// isRetryable reports whether err is a transient transport failure.
func isRetryable(err error) bool {
	return errors.Is(err, ErrConnection) || errors.Is(err, ErrTimeout)
}

// Outcome returns the metrics outcome label for err.
func Outcome(err error) string {
	if err == nil {
		return metrics.OutcomeOK
	}
	var clientErr *ClientError
	if !errors.As(err, &clientErr) {
		return metrics.OutcomeError
	}
	switch clientErr.Type {
	case ErrTypeConnection:
		return metrics.OutcomeConnection
	case ErrTypeTimeout:
		return metrics.OutcomeTimeout
	case ErrTypeModelNotFound:
		return metrics.OutcomeModelNotFound
	case ErrTypeContextExceeded:
		return metrics.OutcomeContextExceeded
	case ErrTypeValidation:
		return metrics.OutcomeValidation
	default:
		return metrics.OutcomeError
	}
}

// IsModelNotFound checks if an error is a model not found error.
func IsModelNotFound(err error) bool {
	return errors.Is(err, ErrModelNotFound)
}

// IsConnection checks if an error indicates Ollama is unreachable.
func IsConnection(err error) bool {
	return errors.Is(err, ErrConnection)
}

// IsTimeout checks if an error is a timeout error.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsContextExceeded checks if the backend rejected the request for size.
func IsContextExceeded(err error) bool {
	return errors.Is(err, ErrContextExceeded)
}

// IsValidation checks if an error is an input validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
