// Package tracing correlates log lines across one request. Each HTTP request
// gets a trace id (propagated via the X-Trace-ID header when the caller sends
// one) and each completed span is logged with its duration.
package tracing

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tabvault/tabvault/internal/shared/id"
)

// TraceID identifies one logical request across components.
type TraceID string

// Span is one timed operation within a trace.
type Span struct {
	TraceID    TraceID
	Name       string
	StartTime  time.Time
	Duration   time.Duration
	StatusCode int
	Error      error
}

// Tracer logs completed spans.
type Tracer struct {
	service string
	logger  *zap.Logger
}

func New(service string, logger *zap.Logger) *Tracer {
	return &Tracer{service: service, logger: logger}
}

// StartSpan opens a span, minting a trace id when the context has none.
func (t *Tracer) StartSpan(ctx context.Context, name string) (*Span, context.Context) {
	traceID, _ := ctx.Value(traceIDKey).(TraceID)
	if traceID == "" {
		traceID = TraceID(id.NewRequestID())
		ctx = context.WithValue(ctx, traceIDKey, traceID)
	}
	return &Span{TraceID: traceID, Name: name, StartTime: time.Now()}, ctx
}

// Finish closes the span and logs it.
func (t *Tracer) Finish(span *Span) {
	span.Duration = time.Since(span.StartTime)

	fields := []zap.Field{
		zap.String("trace_id", string(span.TraceID)),
		zap.String("operation", span.Name),
		zap.Duration("duration", span.Duration),
		zap.String("service", t.service),
	}
	if span.StatusCode != 0 {
		fields = append(fields, zap.Int("status", span.StatusCode))
	}
	if span.Error != nil {
		t.logger.Error("span completed with error", append(fields, zap.Error(span.Error))...)
		return
	}
	t.logger.Debug("span completed", fields...)
}

type contextKey string

const traceIDKey contextKey = "trace_id"

// GetTraceID retrieves the trace id from a context, empty when untraced.
func GetTraceID(ctx context.Context) TraceID {
	traceID, _ := ctx.Value(traceIDKey).(TraceID)
	return traceID
}

// WithTraceID stores an externally supplied trace id on the context.
func WithTraceID(ctx context.Context, traceID TraceID) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}
