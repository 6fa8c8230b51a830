package otel

import (
	"context"
	"strconv"
	"sync"

	eventbus "github.com/hanpama/gqlcoalesce/internal/eventbus"
	events "github.com/hanpama/gqlcoalesce/internal/events"
	reqid "github.com/hanpama/gqlcoalesce/internal/reqid"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Setup configures OpenTelemetry and attaches eventbus subscribers.
// If endpoint is empty, no telemetry is configured.
func Setup(endpoint, service string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
		)),
	)
	otel.SetTracerProvider(tp)

	sub := newSubscriber(otel.Tracer("gqlcoalesce"))
	unsubscribe := sub.register()

	return func(ctx context.Context) error {
		unsubscribe()
		return tp.Shutdown(ctx)
	}, nil
}

// subscriber turns start/finish event pairs into spans. Spans are keyed by
// request ID: HTTP requests carry their own, flushes and their downstream
// calls get "flush-<n>" and "flush-<n>-<operation>".
type subscriber struct {
	tracer     trace.Tracer
	httpSpans  sync.Map // rid -> trace.Span
	gqlSpans   sync.Map // rid -> trace.Span
	flushSpans sync.Map // flush id -> trace.Span
	callSpans  sync.Map // rid -> trace.Span
	httpcSpans sync.Map // rid -> trace.Span
}

func newSubscriber(tracer trace.Tracer) *subscriber {
	return &subscriber{tracer: tracer}
}

func (s *subscriber) start(ctx context.Context, parents *sync.Map, parentKey any, name string) trace.Span {
	parent := ctx
	if parents != nil {
		if v, ok := parents.Load(parentKey); ok {
			parent = trace.ContextWithSpan(ctx, v.(trace.Span))
		}
	}
	_, span := s.tracer.Start(parent, name)
	return span
}

func end(spans *sync.Map, key any, fn func(trace.Span)) {
	v, ok := spans.LoadAndDelete(key)
	if !ok {
		return
	}
	span := v.(trace.Span)
	if fn != nil {
		fn(span)
	}
	span.End()
}

func recordErr(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

func (s *subscriber) register() (unsubscribe func()) {
	var subs []func()
	subs = append(subs, eventbus.Subscribe(func(ctx context.Context, e events.HTTPStart) {
		rid, _ := reqid.FromContext(ctx)
		span := s.start(ctx, nil, nil, "http.request")
		span.SetAttributes(
			semconv.HTTPMethodKey.String(e.Request.Method),
			attribute.String("http.target", e.Request.URL.Path),
		)
		s.httpSpans.Store(rid, span)
	}))

	subs = append(subs, eventbus.Subscribe(func(ctx context.Context, e events.HTTPFinish) {
		rid, _ := reqid.FromContext(ctx)
		end(&s.httpSpans, rid, func(span trace.Span) {
			span.SetAttributes(semconv.HTTPStatusCodeKey.Int(e.Status))
		})
	}))

	subs = append(subs, eventbus.Subscribe(func(ctx context.Context, e events.GraphQLStart) {
		rid, _ := reqid.FromContext(ctx)
		span := s.start(ctx, &s.httpSpans, rid, "graphql.operation")
		span.SetAttributes(
			attribute.String("graphql.operation.name", e.OperationName),
			attribute.String("graphql.operation.type", e.OperationType),
		)
		s.gqlSpans.Store(rid, span)
	}))

	subs = append(subs, eventbus.Subscribe(func(ctx context.Context, e events.GraphQLFinish) {
		rid, _ := reqid.FromContext(ctx)
		end(&s.gqlSpans, rid, func(span trace.Span) {
			span.SetAttributes(attribute.Int("graphql.error_count", len(e.Errors)))
		})
	}))

	subs = append(subs, eventbus.Subscribe(func(ctx context.Context, e events.WindowFlushStart) {
		span := s.start(ctx, nil, nil, "coalesce.flush")
		span.SetAttributes(
			attribute.Int64("coalesce.flush_id", int64(e.FlushID)),
			attribute.Int("coalesce.members", e.Members),
		)
		s.flushSpans.Store(e.FlushID, span)
	}))

	subs = append(subs, eventbus.Subscribe(func(ctx context.Context, e events.WindowFlushFinish) {
		end(&s.flushSpans, e.FlushID, func(span trace.Span) {
			span.SetAttributes(
				attribute.Int("coalesce.groups", e.Groups),
				attribute.Int("coalesce.pruned", e.Pruned),
			)
		})
	}))

	subs = append(subs, eventbus.Subscribe(func(ctx context.Context, e events.DownstreamStart) {
		rid, _ := reqid.FromContext(ctx)
		span := s.start(ctx, &s.flushSpans, e.FlushID, "coalesce.downstream")
		span.SetAttributes(
			attribute.String("graphql.operation.type", e.Operation),
			attribute.Int("coalesce.members", e.Members),
		)
		s.callSpans.Store(rid, span)
	}))

	subs = append(subs, eventbus.Subscribe(func(ctx context.Context, e events.DownstreamFinish) {
		rid, _ := reqid.FromContext(ctx)
		end(&s.callSpans, rid, func(span trace.Span) { recordErr(span, e.Err) })
	}))

	subs = append(subs, eventbus.Subscribe(func(ctx context.Context, e events.RemoteRequestStart) {
		rid, _ := reqid.FromContext(ctx)
		span := s.start(ctx, &s.callSpans, rid, "http.client")
		span.SetAttributes(attribute.String("http.url", e.Endpoint))
		s.httpcSpans.Store(rid, span)
	}))

	subs = append(subs, eventbus.Subscribe(func(ctx context.Context, e events.RemoteRequestFinish) {
		rid, _ := reqid.FromContext(ctx)
		end(&s.httpcSpans, rid, func(span trace.Span) {
			span.SetAttributes(attribute.String("http.status_code", strconv.Itoa(e.Status)))
			recordErr(span, e.Err)
		})
	}))

	return func() {
		for _, u := range subs {
			u()
		}
	}
}
