package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	doccache "github.com/hanpama/gqlcoalesce/internal/doccache"
	eventbus "github.com/hanpama/gqlcoalesce/internal/eventbus"
	events "github.com/hanpama/gqlcoalesce/internal/events"
	graphql "github.com/hanpama/gqlcoalesce/internal/graphql"
	language "github.com/hanpama/gqlcoalesce/internal/language"
	remote "github.com/hanpama/gqlcoalesce/internal/remote"
	reqid "github.com/hanpama/gqlcoalesce/internal/reqid"
)

// Submitter accepts requests for coalesced execution. *remote.Coalescer
// implements it.
type Submitter interface {
	Submit(ctx context.Context, req *graphql.Request) (*remote.Completion, error)
}

// Handler is an http.Handler that serves a GraphQL endpoint.
// It parses requests, submits them to the coalescer and formats the results.
type Handler struct {
	exec   Submitter
	docs   *doccache.Cache
	opt    Options
	logger zerolog.Logger
}

type Options struct {
	// Timeout sets a default timeout if the incoming request context has none.
	// 0 means no default timeout.
	Timeout time.Duration

	// Pretty enables indented JSON responses (useful for dev).
	Pretty bool

	// MaxBodyBytes limits the size of the request body. 0 means unlimited.
	MaxBodyBytes int64

	// MaxBatch limits the entries of a JSON array request. 0 rejects arrays.
	MaxBatch int

	// CORS configuration. If AllowedOrigins is empty, CORS is disabled.
	CORS CORSOptions

	// Documents parses and optionally validates queries. A cache of 256
	// unvalidated documents is used when nil.
	Documents *doccache.Cache

	Logger zerolog.Logger
}

type Option func(*Options)

func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                 { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option    { return func(o *Options) { o.MaxBodyBytes = n } }
func WithMaxBatch(n int) Option          { return func(o *Options) { o.MaxBatch = n } }
func WithCORS(origins ...string) Option {
	return func(o *Options) { o.CORS.AllowedOrigins = origins }
}
func WithDocuments(c *doccache.Cache) Option { return func(o *Options) { o.Documents = c } }
func WithLogger(l zerolog.Logger) Option     { return func(o *Options) { o.Logger = l } }

// CORSOptions holds simple CORS settings.
type CORSOptions struct {
	AllowedOrigins []string
}

// New creates a new GraphQL HTTP handler submitting into exec.
func New(exec Submitter, opts ...Option) (*Handler, error) {
	if exec == nil {
		return nil, errors.New("server: nil submitter")
	}
	op := Options{Timeout: 10 * time.Second, MaxBatch: 32, Logger: zerolog.Nop()}
	for _, f := range opts {
		f(&op)
	}
	docs := op.Documents
	if docs == nil {
		var err error
		if docs, err = doccache.New(256, nil); err != nil {
			return nil, err
		}
	}
	return &Handler{
		exec:   exec,
		docs:   docs,
		opt:    op,
		logger: op.Logger.With().Str("component", "server").Logger(),
	}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}

	ctx, rid := reqid.WithID(ctx, r.Header.Get(reqid.Header))
	w.Header().Set(reqid.Header, rid)
	status := http.StatusOK
	start := time.Now()
	eventbus.Publish(ctx, events.HTTPStart{Request: r})
	defer func() {
		eventbus.Publish(ctx, events.HTTPFinish{Request: r, Status: status, Duration: time.Since(start)})
	}()

	if r.Method == http.MethodOptions {
		if len(h.opt.CORS.AllowedOrigins) > 0 {
			setCORSHeaders(w, r, h.opt.CORS)
		}
		status = http.StatusNoContent
		w.WriteHeader(status)
		return
	}

	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		status = http.StatusMethodNotAllowed
		writeJSON(w, status, errorResponse("method not allowed"), h.opt.Pretty)
		return
	}

	req, batch, berr := parseRequest(r, h.opt.MaxBodyBytes)
	if berr != nil {
		status = http.StatusBadRequest
		if berr.Message == errBodyTooLargeMessage {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, &graphql.Result{Errors: language.ErrorList{berr}}, h.opt.Pretty)
		return
	}

	if len(h.opt.CORS.AllowedOrigins) > 0 {
		setCORSHeaders(w, r, h.opt.CORS)
	}

	if batch != nil {
		if len(batch) > h.opt.MaxBatch {
			status = http.StatusBadRequest
			writeJSON(w, status, errorResponse("too many operations in batch"), h.opt.Pretty)
			return
		}
		// submit every entry before waiting so they share a window
		pending := make([]pendingResult, len(batch))
		for i := range batch {
			pending[i] = h.submit(ctx, r.Method, batch[i])
		}
		out := make([]*graphql.Result, len(batch))
		for i := range pending {
			out[i], _ = pending[i].wait(ctx)
		}
		writeJSON(w, status, out, h.opt.Pretty)
		return
	}

	res, code := h.submit(ctx, r.Method, req).wait(ctx)
	status = code
	writeJSON(w, status, res, h.opt.Pretty)
}

// pendingResult is a submitted request, or the immediate answer for one that
// never reached the coalescer.
type pendingResult struct {
	completion *remote.Completion
	res        *graphql.Result
	status     int
	onFinish   func(*graphql.Result)
}

func (p pendingResult) wait(ctx context.Context) (*graphql.Result, int) {
	res, status := p.res, p.status
	if p.completion != nil {
		var err error
		res, err = p.completion.Wait(ctx)
		switch {
		case err == nil:
		case errors.Is(err, context.DeadlineExceeded):
			res, status = errorResponse("request timed out"), http.StatusGatewayTimeout
		case errors.Is(err, context.Canceled):
			res, status = errorResponse("request cancelled"), http.StatusGatewayTimeout
		case errors.Is(err, remote.ErrExecutorDisposed):
			res, status = errorResponse(err.Error()), http.StatusServiceUnavailable
		default:
			res, status = graphql.ErrorResult(err), http.StatusBadGateway
		}
	}
	if p.onFinish != nil {
		p.onFinish(res)
	}
	return res, status
}

func (h *Handler) submit(ctx context.Context, method string, req GraphQLRequest) pendingResult {
	doc, errs := h.docs.Load(req.Query)
	if len(errs) > 0 {
		return pendingResult{res: &graphql.Result{Errors: errs}, status: http.StatusBadRequest}
	}
	opDef := language.GetOperation(doc, req.OperationName)
	if opDef == nil {
		return pendingResult{res: errorResponse("operation not found"), status: http.StatusBadRequest}
	}
	if method == http.MethodGet && opDef.Operation != language.Query {
		return pendingResult{res: errorResponse("only queries can be sent with GET"), status: http.StatusMethodNotAllowed}
	}

	opType := string(opDef.Operation)
	start := time.Now()
	eventbus.Publish(ctx, events.GraphQLStart{Query: req.Query, OperationName: req.OperationName, OperationType: opType})
	p := pendingResult{status: http.StatusOK}
	p.onFinish = func(res *graphql.Result) {
		errs := make([]error, len(res.Errors))
		for i := range res.Errors {
			errs[i] = res.Errors[i]
		}
		eventbus.Publish(ctx, events.GraphQLFinish{
			Query:         req.Query,
			OperationName: req.OperationName,
			OperationType: opType,
			Errors:        errs,
			Duration:      time.Since(start),
		})
	}

	completion, err := h.exec.Submit(ctx, &graphql.Request{
		Query:         req.Query,
		Document:      doc,
		OperationName: req.OperationName,
		Variables:     req.Variables,
		Extensions:    req.Extensions,
	})
	if err != nil {
		h.logger.Debug().Err(err).Str("operation", opType).Msg("submit rejected")
		p.res, p.status = errorResponse(err.Error()), http.StatusBadRequest
		if errors.Is(err, remote.ErrExecutorDisposed) {
			p.status = http.StatusServiceUnavailable
		}
		return p
	}
	p.completion = completion
	return p
}

// ------------------ Request parsing ------------------

type GraphQLRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	Extensions    map[string]any `json:"extensions,omitempty"`
}

func parseRequest(r *http.Request, maxBody int64) (GraphQLRequest, []GraphQLRequest, *language.Error) {
	if r.Method == http.MethodGet {
		q := r.URL.Query().Get("query")
		if q == "" {
			return GraphQLRequest{}, nil, &language.Error{Message: "missing 'query'"}
		}
		var vars map[string]any
		if v := r.URL.Query().Get("variables"); v != "" {
			if err := decodeJSON([]byte(v), &vars); err != nil {
				return GraphQLRequest{}, nil, &language.Error{Message: "invalid 'variables' JSON"}
			}
		}
		op := r.URL.Query().Get("operationName")
		return GraphQLRequest{Query: q, Variables: vars, OperationName: op}, nil, nil
	}

	// POST
	ct := r.Header.Get("Content-Type")
	if ct == "" || ct == "application/json" || strings.HasPrefix(ct, "application/json;") {
		reader := io.Reader(r.Body)
		if maxBody > 0 {
			reader = io.LimitReader(r.Body, maxBody+1)
		}
		body, err := io.ReadAll(reader)
		if err != nil {
			return GraphQLRequest{}, nil, &language.Error{Message: "failed to read body"}
		}
		defer r.Body.Close()
		if maxBody > 0 && int64(len(body)) > maxBody {
			return GraphQLRequest{}, nil, &language.Error{Message: errBodyTooLargeMessage}
		}
		body = bytes.TrimLeft(body, " \t\r\n")

		// Try array (batch)
		if len(body) > 0 && body[0] == '[' {
			var arr []GraphQLRequest
			if err := decodeJSON(body, &arr); err != nil {
				return GraphQLRequest{}, nil, &language.Error{Message: "invalid JSON"}
			}
			if len(arr) == 0 {
				return GraphQLRequest{}, nil, &language.Error{Message: "empty batch"}
			}
			return GraphQLRequest{}, arr, nil
		}
		// Single
		var req GraphQLRequest
		if err := decodeJSON(body, &req); err != nil {
			return GraphQLRequest{}, nil, &language.Error{Message: "invalid JSON"}
		}
		if req.Query == "" {
			return GraphQLRequest{}, nil, &language.Error{Message: "missing 'query'"}
		}
		return req, nil, nil
	}

	return GraphQLRequest{}, nil, &language.Error{Message: "unsupported Content-Type"}
}

// decodeJSON keeps numbers as json.Number so large integers survive the
// round trip to the remote.
func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// ------------------ Response formatting ------------------

func errorResponse(msg string) *graphql.Result {
	return &graphql.Result{Errors: language.ErrorList{{Message: msg}}}
}

func writeJSON(w http.ResponseWriter, status int, v any, pretty bool) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(v)
}

const errBodyTooLargeMessage = "body too large"

func setCORSHeaders(w http.ResponseWriter, r *http.Request, opts CORSOptions) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	allowed := false
	for _, o := range opts.AllowedOrigins {
		if o == "*" || o == origin {
			allowed = true
			break
		}
	}
	if !allowed {
		return
	}
	if contains(opts.AllowedOrigins, "*") {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	} else {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}
	if r.Method == http.MethodOptions {
		if hdr := r.Header.Get("Access-Control-Request-Headers"); hdr != "" {
			w.Header().Set("Access-Control-Allow-Headers", hdr)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
