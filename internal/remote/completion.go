package remote

import (
	"context"
	"sync"

	graphql "github.com/hanpama/gqlcoalesce/internal/graphql"
)

// Completion is the single-assignment outcome of one submitted request.
type Completion struct {
	once   sync.Once
	done   chan struct{}
	result *graphql.Result
	err    error
}

func newCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

func (c *Completion) complete(res *graphql.Result, err error) bool {
	assigned := false
	c.once.Do(func() {
		c.result, c.err = res, err
		close(c.done)
		assigned = true
	})
	return assigned
}

func (c *Completion) resolve(res *graphql.Result) bool { return c.complete(res, nil) }

func (c *Completion) fail(err error) bool { return c.complete(nil, err) }

// Done is closed once the outcome is assigned.
func (c *Completion) Done() <-chan struct{} { return c.done }

// Wait blocks until the outcome is assigned or ctx is done. Giving up on ctx
// only affects this caller; the request itself keeps going.
func (c *Completion) Wait(ctx context.Context) (*graphql.Result, error) {
	select {
	case <-c.done:
		return c.result, c.err
	default:
	}
	select {
	case <-c.done:
		return c.result, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Poll returns the outcome without blocking. ok is false while pending.
func (c *Completion) Poll() (res *graphql.Result, ok bool, err error) {
	select {
	case <-c.done:
		return c.result, true, c.err
	default:
		return nil, false, nil
	}
}
