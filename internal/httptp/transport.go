package httptp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"mime"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	eventbus "github.com/hanpama/gqlcoalesce/internal/eventbus"
	events "github.com/hanpama/gqlcoalesce/internal/events"
	graphql "github.com/hanpama/gqlcoalesce/internal/graphql"
	remote "github.com/hanpama/gqlcoalesce/internal/remote"
)

const acceptHeader = "application/graphql-response+json, application/json;q=0.9, multipart/mixed;q=0.5, text/event-stream;q=0.5"

// Transport sends GraphQL requests to a remote endpoint over HTTP POST.
type Transport struct {
	opts   *Options
	client *resty.Client
	logger zerolog.Logger
	closed atomic.Bool
}

// New returns a Transport configured by opts. Without a provider every
// Execute fails with ErrNoEndpoints.
func New(opts ...Option) *Transport {
	o := defaultOptions()
	for _, f := range opts {
		f(o)
	}
	var client *resty.Client
	if o.HTTPClient != nil {
		client = resty.NewWithClient(o.HTTPClient)
	} else {
		client = resty.New()
	}
	client.
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", acceptHeader).
		SetHeaders(o.Headers)
	return &Transport{
		opts:   o,
		client: client,
		logger: o.Logger.With().Str("component", "httptp").Logger(),
	}
}

var _ remote.Downstream = (*Transport)(nil)

type wireRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	Extensions    map[string]any `json:"extensions,omitempty"`
}

// Execute posts req and decodes the response. Incremental responses come back
// as *graphql.Stream, JSON arrays as graphql.Batch.
func (t *Transport) Execute(ctx context.Context, req *graphql.Request) (resp graphql.Response, err error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}
	if t.opts.Provider == nil {
		return nil, fmt.Errorf("httptp: provider not configured")
	}
	if _, ok := ctx.Deadline(); !ok && t.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.opts.RequestTimeout)
		defer cancel()
	}

	endpoints, err := t.opts.Provider.Endpoints(ctx)
	if err != nil {
		return nil, err
	}
	if len(endpoints) == 0 {
		return nil, ErrNoEndpoints
	}
	endpoint := endpoints[rand.Intn(len(endpoints))]

	start := time.Now()
	status := 0
	eventbus.Publish(ctx, events.RemoteRequestStart{Endpoint: endpoint})
	defer func() {
		eventbus.Publish(ctx, events.RemoteRequestFinish{
			Endpoint: endpoint,
			Status:   status,
			Err:      err,
			Duration: time.Since(start),
		})
	}()

	r, err := t.client.R().
		SetContext(ctx).
		SetBody(wireRequest{
			Query:         req.Source(),
			OperationName: req.OperationName,
			Variables:     req.Variables,
			Extensions:    req.Extensions,
		}).
		Post(endpoint)
	if err != nil {
		return nil, fmt.Errorf("httptp: post %s: %w", endpoint, err)
	}
	status = r.StatusCode()
	t.logger.Debug().
		Str("endpoint", endpoint).
		Int("status", status).
		Dur("took", r.Time()).
		Msg("remote responded")

	return decodeResponse(r.Header().Get("Content-Type"), status, r.Body())
}

func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.client.GetClient().CloseIdleConnections()
	return nil
}

func decodeResponse(contentType string, status int, body []byte) (graphql.Response, error) {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch mediaType {
	case "multipart/mixed", "text/event-stream":
		if status < 200 || status > 299 {
			return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, status)
		}
		return &graphql.Stream{ContentType: contentType, Payload: body}, nil
	}

	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var batch graphql.Batch
		if err := decodeJSON(trimmed, &batch); err != nil {
			return nil, statusOr(status, err)
		}
		return batch, nil
	}

	var res graphql.Result
	var probe struct {
		Data   json.RawMessage `json:"data"`
		Errors json.RawMessage `json:"errors"`
	}
	if err := decodeJSON(trimmed, &probe); err != nil {
		return nil, statusOr(status, err)
	}
	if probe.Data == nil && probe.Errors == nil {
		return nil, statusOr(status, fmt.Errorf("%w: neither data nor errors present", ErrMalformedResponse))
	}
	if err := decodeJSON(trimmed, &res); err != nil {
		return nil, statusOr(status, err)
	}
	return &res, nil
}

func decodeJSON(body []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

func statusOr(status int, err error) error {
	if status < 200 || status > 299 {
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, status)
	}
	return err
}
