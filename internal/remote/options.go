package remote

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Options configures a Coalescer. The zero value is usable.
type Options struct {
	Logger zerolog.Logger

	// BaseContext is the parent of every downstream call. Defaults to
	// context.Background().
	BaseContext context.Context

	// FlushTimeout bounds each downstream call. 0 means no bound.
	FlushTimeout time.Duration

	// MaxBatchSize flushes a window as soon as it holds this many requests
	// instead of waiting for the scheduler. 0 means unbounded.
	MaxBatchSize int

	// OwnsDownstream makes Close also close the downstream when it
	// implements io.Closer.
	OwnsDownstream bool
}

type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		Logger:      zerolog.Nop(),
		BaseContext: context.Background(),
	}
}

// WithLogger sets the logger used for flush and downstream diagnostics.
func WithLogger(l zerolog.Logger) Option { return func(o *Options) { o.Logger = l } }

// WithBaseContext sets the context downstream calls run on. Callers'
// contexts never reach the downstream.
func WithBaseContext(ctx context.Context) Option { return func(o *Options) { o.BaseContext = ctx } }

// WithFlushTimeout bounds every downstream call of a flush.
func WithFlushTimeout(d time.Duration) Option { return func(o *Options) { o.FlushTimeout = d } }

// WithMaxBatchSize flushes a window as soon as it holds n requests.
func WithMaxBatchSize(n int) Option { return func(o *Options) { o.MaxBatchSize = n } }

// WithOwnedDownstream makes Close close the downstream, if it is an
// io.Closer, once in-flight flushes end.
func WithOwnedDownstream() Option { return func(o *Options) { o.OwnsDownstream = true } }
