// Package telemetry records tool invocations and chat requests with
// OpenTelemetry.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Instrumentation scope used for meters and tracers.
const Scope = "github.com/dotcommander/toolchat"

// Invocation describes one completed tool call.
type Invocation struct {
	Tool      string
	Provider  string
	Transport string
	StartedAt time.Time
	Duration  time.Duration
	// ErrorKind is empty on success.
	ErrorKind string
}

// ToolObserver records tool invocations as metrics and spans.
type ToolObserver struct {
	tracer trace.Tracer

	invocations metric.Int64Counter
	latency     metric.Float64Histogram
}

// NewToolObserver creates an observer bound to meter and tracer. A nil tracer
// disables spans.
func NewToolObserver(meter metric.Meter, tracer trace.Tracer) (*ToolObserver, error) {
	invocations, err := meter.Int64Counter(
		"toolchat.tool.invocations",
		metric.WithDescription("Number of tool invocations"),
	)
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram(
		"toolchat.tool.latency",
		metric.WithDescription("Tool latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	return &ToolObserver{
		tracer:      tracer,
		invocations: invocations,
		latency:     latency,
	}, nil
}

// ObserveInvoke records one invocation. The span is parented on ctx.
func (o *ToolObserver) ObserveInvoke(ctx context.Context, inv Invocation) {
	if o == nil {
		return
	}

	success := inv.ErrorKind == ""
	attrs := []attribute.KeyValue{
		attribute.String("tool_name", inv.Tool),
		attribute.String("provider", inv.Provider),
		attribute.String("transport", inv.Transport),
		attribute.Bool("success", success),
	}
	if !success {
		attrs = append(attrs, attribute.String("error_kind", inv.ErrorKind))
	}

	options := metric.WithAttributes(attrs...)
	o.invocations.Add(ctx, 1, options)
	o.latency.Record(ctx, inv.Duration.Seconds(), options)

	if o.tracer == nil {
		return
	}
	start := inv.StartedAt
	if start.IsZero() {
		start = time.Now().Add(-inv.Duration)
	}
	_, span := o.tracer.Start(ctx, "tool.invoke",
		trace.WithAttributes(attrs...),
		trace.WithTimestamp(start),
	)
	if success {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetStatus(codes.Error, inv.ErrorKind)
	}
	span.End(trace.WithTimestamp(start.Add(inv.Duration)))
}
