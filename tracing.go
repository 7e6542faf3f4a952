package apiclient

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

const tracerName = "github.com/osuuj/nokia-city-data-analysis-sub002"

func defaultTracer() trace.Tracer {
	return nooptrace.NewTracerProvider().Tracer(tracerName)
}

func (c *Client) startSpan(ctx context.Context, d Descriptor) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, "apiclient."+d.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", d.Method),
			attribute.String("url.full", d.URL),
			attribute.String("apiclient.priority", string(d.Priority)),
		),
	)
}

func endSpan(span trace.Span, id string, env *Envelope, err *Error, retries int) {
	span.SetAttributes(
		attribute.String("apiclient.request_id", id),
		attribute.Int("apiclient.retry_count", retries),
	)
	if env != nil {
		span.SetAttributes(
			attribute.Int("http.response.status_code", env.Status),
			attribute.Bool("apiclient.cached", env.Cached),
		)
	}
	if err != nil {
		span.SetAttributes(attribute.String("apiclient.error.kind", string(err.Kind)))
		if err.Status > 0 {
			span.SetAttributes(attribute.Int("http.response.status_code", err.Status))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Message)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// injectTraceContext writes W3C traceparent headers for the active span.
func (c *Client) injectTraceContext(ctx context.Context, req *http.Request) {
	c.propagator.Inject(ctx, propagation.HeaderCarrier(req.Header))
}
