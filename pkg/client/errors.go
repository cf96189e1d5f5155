package client

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrRateLimited is returned when the shared rate limit budget blocks a request.
	ErrRateLimited = errors.New("request blocked: upstream rate limit critical")

	// ErrCartNotFound is returned when the upstream has no cart for the given id.
	ErrCartNotFound = errors.New("cart not found")

	// ErrNotFound is returned when a catalog entity does not exist in the channel.
	ErrNotFound = errors.New("catalog entity not found")
)

// ErrorClass represents a classification of upstream failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassGraphQL represents a 200 response carrying a GraphQL errors array.
	ErrorClassGraphQL ErrorClass = "graphql"
)

// classifyStatus maps an HTTP status to an error class. Returns "" for success codes.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == 429:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// UpstreamError represents a failed commerce API call with additional context.
type UpstreamError struct {
	Operation  string
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream %s error in %s (status %d): %s: %v",
			e.ErrorClass, e.Operation, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("upstream %s error in %s (status %d): %s",
		e.ErrorClass, e.Operation, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// graphQLError is one entry of a GraphQL errors array.
type graphQLError struct {
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}

func joinGraphQLErrors(errs []graphQLError) string {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Message)
	}
	return strings.Join(msgs, "; ")
}

// classOf extracts the error class of err. Unclassified errors count as network failures.
func classOf(err error) ErrorClass {
	var upstreamErr *UpstreamError
	if errors.As(err, &upstreamErr) {
		return upstreamErr.ErrorClass
	}
	return ErrorClassNetwork
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassClient, ErrorClassGraphQL:
		// Deterministic failures, retrying only burns rate limit budget
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
