package httptp

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Options configures the HTTP transport.
//
// Defaults:
// - RequestTimeout: 10s (used only if the context has no deadline)
// - Headers:        none besides Content-Type and Accept
//
// Provider must be set; Execute fails otherwise.
type Options struct {
	Provider EndpointProvider

	RequestTimeout time.Duration
	Headers        map[string]string

	// HTTPClient replaces the underlying client, e.g. to share a pool.
	HTTPClient *http.Client

	Logger zerolog.Logger
}

type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		RequestTimeout: 10 * time.Second,
		Logger:         zerolog.Nop(),
	}
}

// WithProvider sets where endpoints are looked up on each request.
func WithProvider(p EndpointProvider) Option { return func(o *Options) { o.Provider = p } }

// WithEndpoint is shorthand for WithProvider(NewStaticEndpoints(urls...)).
func WithEndpoint(urls ...string) Option {
	return func(o *Options) { o.Provider = NewStaticEndpoints(urls...) }
}

// WithRequestTimeout bounds one POST when ctx carries no deadline.
func WithRequestTimeout(d time.Duration) Option { return func(o *Options) { o.RequestTimeout = d } }

// WithHeaders adds static headers to every request.
func WithHeaders(h map[string]string) Option {
	return func(o *Options) {
		if o.Headers == nil {
			o.Headers = make(map[string]string, len(h))
		}
		for k, v := range h {
			o.Headers[k] = v
		}
	}
}

// WithHTTPClient sets the underlying http.Client.
func WithHTTPClient(c *http.Client) Option { return func(o *Options) { o.HTTPClient = c } }

// WithLogger sets the logger for request failures.
func WithLogger(l zerolog.Logger) Option { return func(o *Options) { o.Logger = l } }
