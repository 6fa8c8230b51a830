package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	eventbus "github.com/hanpama/gqlcoalesce/internal/eventbus"
	events "github.com/hanpama/gqlcoalesce/internal/events"
	graphql "github.com/hanpama/gqlcoalesce/internal/graphql"
	language "github.com/hanpama/gqlcoalesce/internal/language"
	merge "github.com/hanpama/gqlcoalesce/internal/merge"
	reqid "github.com/hanpama/gqlcoalesce/internal/reqid"
)

var errUnresolved = errors.New("remote: request was not completed by its flush")

// bufferedRequest pairs a submitted request with its completion. It is never
// modified after Submit.
type bufferedRequest struct {
	ctx        context.Context
	request    *graphql.Request
	operation  language.Operation
	completion *Completion
}

// Coalescer batches requests submitted within one window and sends them to
// the downstream as one composite request per operation kind.
type Coalescer struct {
	scheduler  Scheduler
	downstream Downstream
	opts       *Options
	logger     zerolog.Logger

	mu         sync.Mutex
	window     []*bufferedRequest
	registered bool
	generation uint64
	closed     bool

	inflight sync.WaitGroup
	flushSeq atomic.Uint64
}

// New returns a Coalescer flushing through scheduler into downstream.
func New(scheduler Scheduler, downstream Downstream, opts ...Option) (*Coalescer, error) {
	if scheduler == nil {
		return nil, fmt.Errorf("%w: nil scheduler", ErrInvalidRequest)
	}
	if downstream == nil {
		return nil, fmt.Errorf("%w: nil downstream", ErrInvalidRequest)
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.BaseContext == nil {
		o.BaseContext = context.Background()
	}
	return &Coalescer{
		scheduler:  scheduler,
		downstream: downstream,
		opts:       o,
		logger:     o.Logger.With().Str("component", "coalescer").Logger(),
	}, nil
}

// Submit adds req to the current window and returns its completion without
// waiting for the flush. Requests that can never be coalesced are rejected
// with an error and are not buffered.
//
// ctx is checked once more when the window is drained: a request whose ctx
// is done by then is failed with ctx.Err() and left out of the batch.
func (c *Coalescer) Submit(ctx context.Context, req *graphql.Request) (*Completion, error) {
	if req == nil || req.Document == nil {
		return nil, fmt.Errorf("%w: missing document", ErrInvalidRequest)
	}
	op := req.Operation()
	if op == nil {
		return nil, fmt.Errorf("%w: operation %q not found", ErrInvalidRequest, req.OperationName)
	}
	if op.Operation != language.Query && op.Operation != language.Mutation {
		return nil, fmt.Errorf("%w: got %s", ErrUnsupportedOperationKind, op.Operation)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	b := &bufferedRequest{ctx: ctx, request: req, operation: op.Operation, completion: newCompletion()}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrExecutorDisposed
	}
	c.window = append(c.window, b)
	var full []*bufferedRequest
	register := false
	gen := c.generation
	if c.opts.MaxBatchSize > 0 && len(c.window) >= c.opts.MaxBatchSize {
		full = c.drainLocked()
	} else if !c.registered {
		c.registered = true
		register = true
	}
	c.mu.Unlock()

	if register {
		c.scheduler.Schedule(func() { c.flush(gen) })
	}
	if full != nil {
		go c.execute(full)
	}
	return b.completion, nil
}

// Execute submits req and waits for its result. Cancelling ctx abandons the
// wait and, if the window has not been drained yet, the request.
func (c *Coalescer) Execute(ctx context.Context, req *graphql.Request) (*graphql.Result, error) {
	completion, err := c.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	return completion.Wait(ctx)
}

// Close fails every buffered request with ErrExecutorDisposed. Flushes that
// already drained their window finish normally. Closing twice is a no-op.
func (c *Coalescer) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	pending := c.window
	c.window = nil
	c.registered = false
	c.generation++
	c.mu.Unlock()

	for _, b := range pending {
		b.completion.fail(ErrExecutorDisposed)
	}
	if len(pending) > 0 {
		c.logger.Debug().Int("members", len(pending)).Msg("disposed buffered requests")
	}

	if !c.opts.OwnsDownstream {
		return nil
	}
	c.inflight.Wait()
	if cl, ok := c.downstream.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}

// flush is the scheduler callback for window gen. A callback whose window
// was already drained, by the batch size limit or Close, does nothing.
func (c *Coalescer) flush(gen uint64) {
	c.mu.Lock()
	if gen != c.generation || len(c.window) == 0 {
		c.mu.Unlock()
		return
	}
	batch := c.drainLocked()
	c.mu.Unlock()
	c.execute(batch)
}

func (c *Coalescer) drainLocked() []*bufferedRequest {
	batch := c.window
	c.window = nil
	c.registered = false
	c.generation++
	c.inflight.Add(1)
	return batch
}

func (c *Coalescer) execute(batch []*bufferedRequest) {
	defer c.inflight.Done()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Interface("panic", r).Msg("flush panicked")
			failAll(batch, fmt.Errorf("remote: flush panicked: %v", r))
		}
		failAll(batch, errUnresolved)
	}()

	id := c.flushSeq.Add(1)
	ctx, _ := reqid.WithID(c.opts.BaseContext, "flush-"+strconv.FormatUint(id, 10))
	start := time.Now()
	eventbus.Publish(ctx, events.WindowFlushStart{FlushID: id, Members: len(batch)})

	live := make([]*bufferedRequest, 0, len(batch))
	for _, b := range batch {
		if err := b.ctx.Err(); err != nil {
			b.completion.fail(err)
			continue
		}
		live = append(live, b)
	}

	groups := 0
	switch len(live) {
	case 0:
	case 1:
		groups = 1
		c.executeSingle(ctx, id, live[0])
	default:
		groups = c.executeMerged(ctx, id, live)
	}

	took := time.Since(start)
	c.logger.Debug().
		Uint64("flush", id).
		Int("members", len(batch)).
		Int("pruned", len(batch)-len(live)).
		Int("groups", groups).
		Dur("took", took).
		Msg("window flushed")
	eventbus.Publish(ctx, events.WindowFlushFinish{
		FlushID:  id,
		Members:  len(batch),
		Groups:   groups,
		Pruned:   len(batch) - len(live),
		Duration: took,
	})
}

func (c *Coalescer) executeMerged(ctx context.Context, id uint64, batch []*bufferedRequest) int {
	reqs := make([]*graphql.Request, len(batch))
	for i, b := range batch {
		reqs[i] = b.request
	}
	groups := merge.GroupByOperation(reqs)
	if len(groups) == 1 {
		c.executeGroup(ctx, id, groups[0].Operation, batch)
		return 1
	}

	var wg sync.WaitGroup
	for _, g := range groups {
		members := make([]*bufferedRequest, len(g.Members))
		for j, idx := range g.Members {
			members[j] = batch[idx]
		}
		wg.Add(1)
		go func(op language.Operation, members []*bufferedRequest) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error().Interface("panic", r).Str("operation", string(op)).Msg("group panicked")
					failAll(members, fmt.Errorf("remote: %s group panicked: %v", op, r))
				}
			}()
			c.executeGroup(ctx, id, op, members)
		}(g.Operation, members)
	}
	wg.Wait()
	return len(groups)
}

func (c *Coalescer) executeSingle(ctx context.Context, id uint64, b *bufferedRequest) {
	resp, err := c.call(ctx, id, b.operation, 1, b.request)
	if err != nil {
		b.completion.fail(err)
		return
	}
	res, ok := resp.(*graphql.Result)
	if !ok || res == nil {
		b.completion.fail(unsupportedResult(resp))
		return
	}
	b.completion.resolve(res)
}

func (c *Coalescer) executeGroup(ctx context.Context, id uint64, op language.Operation, members []*bufferedRequest) {
	if len(members) == 1 {
		c.executeSingle(ctx, id, members[0])
		return
	}
	reqs := make([]*graphql.Request, len(members))
	for i, m := range members {
		reqs[i] = m.request
	}
	composite, err := merge.Merge(reqs)
	if err != nil {
		c.logger.Warn().Err(err).Str("operation", string(op)).Int("members", len(members)).Msg("merge failed")
		failAll(members, err)
		return
	}
	resp, err := c.call(ctx, id, op, len(members), composite.Request)
	if err != nil {
		failAll(members, err)
		return
	}
	res, ok := resp.(*graphql.Result)
	if !ok || res == nil {
		failAll(members, unsupportedResult(resp))
		return
	}
	for i, r := range merge.Dispatch(res, composite.Remap, composite.Size) {
		members[i].completion.resolve(r)
	}
}

// call runs one downstream request. Errors and panics come back as
// *DownstreamError.
func (c *Coalescer) call(ctx context.Context, id uint64, op language.Operation, members int, req *graphql.Request) (resp graphql.Response, err error) {
	if c.opts.FlushTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.FlushTimeout)
		defer cancel()
	}
	ctx, _ = reqid.WithID(ctx, fmt.Sprintf("flush-%d-%s", id, op))
	start := time.Now()
	eventbus.Publish(ctx, events.DownstreamStart{FlushID: id, Operation: string(op), Members: members})
	defer func() {
		if r := recover(); r != nil {
			resp, err = nil, fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			err = &DownstreamError{Operation: op, Members: members, Err: err}
			c.logger.Warn().Err(err).Uint64("flush", id).Msg("downstream call failed")
		}
		eventbus.Publish(ctx, events.DownstreamFinish{
			FlushID:   id,
			Operation: string(op),
			Members:   members,
			Err:       err,
			Duration:  time.Since(start),
		})
	}()
	return c.downstream.Execute(ctx, req)
}

func failAll(members []*bufferedRequest, err error) {
	for _, m := range members {
		m.completion.fail(err)
	}
}
