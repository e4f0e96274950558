package instrument

import (
	"math/rand"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"erpnext-bridge/internal/config"
)

// TraceHeader carries the trace ID in and out of the adapter.
const TraceHeader = "X-Trace-ID"

// SpanLocal is the fiber.Ctx local holding the request's root span.
const SpanLocal = "span"

// Middleware returns a Fiber middleware that sets up tracing for each request.
// It generates (or propagates) a trace ID, creates a root HTTP span, and injects
// the instrumenter into the request context so backend calls become child spans.
func Middleware(cfg config.InstrumentationConfig, buffer *EventBuffer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !cfg.Enabled || buffer == nil {
			return c.Next()
		}

		// Sampling: skip tracing for a proportion of requests
		if cfg.SamplingRate < 1.0 && rand.Float64() > cfg.SamplingRate {
			return c.Next()
		}

		// Values read from c alias pooled buffers; spans outlive the request.
		traceID := utils.CopyString(c.Get(TraceHeader))
		if traceID == "" {
			traceID = newUUID()
		}

		ctx := c.UserContext()
		instrumenter := NewInstrumenter(buffer)
		ctx = WithTraceID(ctx, traceID)
		ctx = WithInstrumenter(ctx, instrumenter)

		ctx, span := instrumenter.StartSpan(ctx, "http", "handler", "request")
		span.SetMetadata("method", utils.CopyString(c.Method()))
		span.SetMetadata("path", utils.CopyString(c.Path()))
		c.SetUserContext(ctx)
		c.Locals(SpanLocal, span)

		c.Set(TraceHeader, traceID)

		err := c.Next()

		statusCode := c.Response().StatusCode()
		span.SetMetadata("status_code", statusCode)
		if err != nil || statusCode >= 400 {
			span.SetStatus("error")
		} else {
			span.SetStatus("ok")
		}
		span.End()

		return err
	}
}
