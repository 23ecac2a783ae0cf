// Package otel turns event bus events into OpenTelemetry spans. Spans are
// matched by the operation ID reqid carries in the event context; the parent
// operation's span, when there is one, becomes the parent span.
package otel

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/unboundedsystems/adapt/internal/eventbus"
	"github.com/unboundedsystems/adapt/internal/events"
	"github.com/unboundedsystems/adapt/internal/reqid"
)

const tracerName = "github.com/unboundedsystems/adapt"

// Setup exports spans for events on bus to an OTLP gRPC endpoint. If endpoint
// is empty, no telemetry is configured. The returned function unsubscribes
// and flushes.
func Setup(bus *eventbus.Bus, endpoint, service string) (func(context.Context) error, error) {
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

	unsubscribe := Register(bus, tp.Tracer(tracerName))
	return func(ctx context.Context) error {
		unsubscribe()
		return tp.Shutdown(ctx)
	}, nil
}

type observeKey struct {
	id       ulid.ULID
	observer string
}

type subscriber struct {
	tracer       trace.Tracer
	spans        sync.Map // ulid.ULID -> trace.Span
	observeSpans sync.Map // observeKey -> trace.Span
}

// Register subscribes span producers to bus and returns a function removing
// them.
func Register(bus *eventbus.Bus, tracer trace.Tracer) func() {
	s := &subscriber{tracer: tracer}
	unsubscribers := []func(){
		eventbus.Subscribe(bus, func(ctx context.Context, e events.RequestStart) {
			span := s.start(ctx, "http.request")
			span.SetAttributes(
				semconv.HTTPMethodKey.String(e.Method),
				attribute.String("http.target", e.Target),
				attribute.String("adapt.observer", e.Observer),
			)
		}),
		eventbus.Subscribe(bus, func(ctx context.Context, e events.RequestFinish) {
			if span := s.finish(ctx); span != nil {
				span.SetAttributes(
					semconv.HTTPStatusCodeKey.Int(e.Status),
					attribute.Bool("adapt.needs_data", e.NeedsData),
				)
				span.End()
			}
		}),
		eventbus.Subscribe(bus, func(ctx context.Context, e events.PassStart) {
			span := s.start(ctx, "adapt.pass")
			span.SetAttributes(attribute.Int("adapt.pass", e.Pass))
		}),
		eventbus.Subscribe(bus, func(ctx context.Context, e events.PassFinish) {
			if span := s.finish(ctx); span != nil {
				span.SetAttributes(attribute.StringSlice("adapt.needs_data", e.NeedsData))
				endWithError(span, e.Err)
			}
		}),
		eventbus.Subscribe(bus, func(ctx context.Context, e events.QueryStart) {
			span := s.start(ctx, "adapt.observer.query")
			span.SetAttributes(
				attribute.String("adapt.observer", e.Observer),
				attribute.String("graphql.document", e.Query),
			)
		}),
		eventbus.Subscribe(bus, func(ctx context.Context, e events.QueryFinish) {
			if span := s.finish(ctx); span != nil {
				span.SetAttributes(
					attribute.Bool("adapt.needs_data", e.NeedsData),
					attribute.Int("graphql.error_count", len(e.Errors)),
				)
				span.End()
			}
		}),
		eventbus.Subscribe(bus, func(ctx context.Context, e events.ObserveStart) {
			rid, _ := reqid.FromContext(ctx)
			parent := ctx
			if v, ok := s.spans.Load(rid); ok {
				parent = trace.ContextWithSpan(ctx, v.(trace.Span))
			}
			_, span := s.tracer.Start(parent, "adapt.observer.observe")
			span.SetAttributes(
				attribute.String("adapt.observer", e.Observer),
				attribute.Int("adapt.queries", e.Queries),
				attribute.Int("adapt.attempt", e.Attempt),
			)
			s.observeSpans.Store(observeKey{rid, e.Observer}, span)
		}),
		eventbus.Subscribe(bus, func(ctx context.Context, e events.ObserveFinish) {
			rid, _ := reqid.FromContext(ctx)
			v, ok := s.observeSpans.LoadAndDelete(observeKey{rid, e.Observer})
			if !ok {
				return
			}
			endWithError(v.(trace.Span), e.Err)
		}),
	}
	return func() {
		for _, u := range unsubscribers {
			u()
		}
	}
}

// start begins a span for the operation in ctx, under the span of its parent
// operation if that is still open.
func (s *subscriber) start(ctx context.Context, name string) trace.Span {
	rid, _ := reqid.FromContext(ctx)
	parent := ctx
	if pid, ok := reqid.ParentFromContext(ctx); ok {
		if v, ok := s.spans.Load(pid); ok {
			parent = trace.ContextWithSpan(ctx, v.(trace.Span))
		}
	}
	_, span := s.tracer.Start(parent, name)
	s.spans.Store(rid, span)
	return span
}

func (s *subscriber) finish(ctx context.Context) trace.Span {
	rid, _ := reqid.FromContext(ctx)
	v, ok := s.spans.LoadAndDelete(rid)
	if !ok {
		return nil
	}
	return v.(trace.Span)
}

func endWithError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
