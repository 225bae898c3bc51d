package client

import (
	"errors"
	"fmt"
	"net/http"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrNotFound signals a requested entity does not exist upstream.
	// Callers treat it as "no such entity", not as a failure.
	ErrNotFound = errors.New("not found")
)

// ErrorClass represents a classification of upstream errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 rate limit errors.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// APIError represents a CRM API error with additional context.
type APIError struct {
	StatusCode int
	ErrorClass ErrorClass
	Endpoint   string
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("CRM %s error (status %d) on %s: %s: %v",
			e.ErrorClass, e.StatusCode, e.Endpoint, e.Message, e.Err)
	}
	return fmt.Sprintf("CRM %s error (status %d) on %s: %s",
		e.ErrorClass, e.StatusCode, e.Endpoint, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a not-found class error, either the
// ErrNotFound sentinel or an APIError carrying a 404 status.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// classifyStatus categorizes an HTTP status code.
func classifyStatus(statusCode int) ErrorClass {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case statusCode >= 400 && statusCode < 500:
		return ErrorClassClient
	case statusCode >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// shouldRetry determines if an error should be retried based on its class.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassClient:
		// 4xx errors are not transient
		return false
	case ErrorClassServer:
		return true
	case ErrorClassRateLimit:
		return true
	case ErrorClassNetwork:
		return true
	default:
		return false
	}
}
