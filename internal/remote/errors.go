package remote

import (
	"errors"
	"fmt"

	graphql "github.com/hanpama/gqlcoalesce/internal/graphql"
	language "github.com/hanpama/gqlcoalesce/internal/language"
)

var (
	// ErrInvalidRequest indicates a request without a document or without a
	// selectable operation.
	ErrInvalidRequest = errors.New("remote: invalid request")
	// ErrUnsupportedOperationKind indicates an operation that cannot be
	// coalesced, such as a subscription.
	ErrUnsupportedOperationKind = errors.New("remote: only queries and mutations can be coalesced")
	// ErrUnsupportedResultKind indicates a downstream response other than a
	// single result.
	ErrUnsupportedResultKind = errors.New("remote: only single results are supported when coalescing")
	// ErrExecutorDisposed indicates the coalescer was closed before the
	// request was sent downstream.
	ErrExecutorDisposed = errors.New("remote: executor disposed")
)

// DownstreamError carries a downstream failure to every member of the group
// that was sent in the failed call.
type DownstreamError struct {
	Operation language.Operation
	Members   int
	Err       error
}

func (e *DownstreamError) Error() string {
	return fmt.Sprintf("remote: downstream %s for %d request(s): %v", e.Operation, e.Members, e.Err)
}

func (e *DownstreamError) Unwrap() error { return e.Err }

func unsupportedResult(resp graphql.Response) error {
	if resp == nil {
		return fmt.Errorf("%w: got no response", ErrUnsupportedResultKind)
	}
	return fmt.Errorf("%w: got %s", ErrUnsupportedResultKind, resp.Kind())
}
