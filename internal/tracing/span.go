// Package tracing propagates opentelemetry span contexts between puma
// clients and relay servers.
package tracing

import (
	"context"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"github.com/luno/jettison/log"
	"go.opentelemetry.io/otel/trace"

	"github.com/luno/puma/pumapb"
)

// FromContext returns the span context of ctx and whether it can be
// propagated.
func FromContext(ctx context.Context) (trace.SpanContext, bool) {
	sc := trace.SpanContextFromContext(ctx)
	return sc, sc.HasTraceID() && sc.HasSpanID()
}

// Encode returns the wire form of sc.
func Encode(sc trace.SpanContext) ([]byte, error) {
	tr := pumapb.Trace{
		TraceId: sc.TraceID().String(),
		SpanId:  sc.SpanID().String(),
		Sampled: sc.IsSampled(),
	}
	return tr.Marshal()
}

// Decode returns the remote span context encoded in data.
func Decode(data []byte) (trace.SpanContext, error) {
	var tr pumapb.Trace
	if err := tr.Unmarshal(data); err != nil {
		return trace.SpanContext{}, err
	}

	traceID, err := trace.TraceIDFromHex(tr.TraceId)
	if err != nil {
		return trace.SpanContext{}, errors.Wrap(err, "trace id", j.KS("trace_id", tr.TraceId))
	}
	spanID, err := trace.SpanIDFromHex(tr.SpanId)
	if err != nil {
		return trace.SpanContext{}, errors.Wrap(err, "span id", j.KS("span_id", tr.SpanId))
	}

	var flags trace.TraceFlags
	if tr.Sampled {
		flags = trace.FlagsSampled
	}

	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: flags,
		Remote:     true,
	}), nil
}

// WithRemote returns ctx with the span context encoded in data as its
// remote parent. Invalid data leaves ctx unchanged.
func WithRemote(ctx context.Context, data []byte) context.Context {
	if len(data) == 0 {
		return ctx
	}

	sc, err := Decode(data)
	if err != nil {
		return ctx
	}

	ctx = trace.ContextWithRemoteSpanContext(ctx, sc)
	return log.ContextWith(ctx, j.KS("trace_id", sc.TraceID().String()))
}
