package tracing

import (
	"github.com/gin-gonic/gin"
)

// HTTPMiddleware traces every request and echoes the trace id back to the
// caller.
func HTTPMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if incoming := c.GetHeader("X-Trace-ID"); incoming != "" {
			ctx = WithTraceID(ctx, TraceID(incoming))
		}

		span, ctx := tracer.StartSpan(ctx, c.FullPath())
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Trace-ID", string(span.TraceID))

		c.Next()

		span.StatusCode = c.Writer.Status()
		if len(c.Errors) > 0 {
			span.Error = c.Errors.Last()
		}
		tracer.Finish(span)
	}
}
