package remote

import (
	"context"

	graphql "github.com/hanpama/gqlcoalesce/internal/graphql"
)

// Downstream executes one request, plain or composite, against the remote
// schema.
//
// Implementations must be safe for concurrent use: the groups of one flush,
// and flushes of different windows, call Execute in parallel. ctx belongs to
// the coalescer, not to any caller; it is cancelled only by the flush timeout.
// A returned error fails every request merged into the call.
type Downstream interface {
	Execute(ctx context.Context, req *graphql.Request) (graphql.Response, error)
}

// DownstreamFunc adapts a function to Downstream.
type DownstreamFunc func(ctx context.Context, req *graphql.Request) (graphql.Response, error)

func (f DownstreamFunc) Execute(ctx context.Context, req *graphql.Request) (graphql.Response, error) {
	return f(ctx, req)
}
