package httptp

import "errors"

var (
	// ErrNoEndpoints indicates the provider returned no endpoints.
	ErrNoEndpoints = errors.New("httptp: no endpoints available")
	// ErrClosed indicates the transport was closed.
	ErrClosed = errors.New("httptp: closed")
	// ErrUnexpectedStatus indicates a non-2xx response that carried no
	// GraphQL result.
	ErrUnexpectedStatus = errors.New("httptp: unexpected status")
	// ErrMalformedResponse indicates a body that is not a GraphQL response.
	ErrMalformedResponse = errors.New("httptp: malformed response")
)
