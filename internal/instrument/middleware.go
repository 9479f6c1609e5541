package instrument

import (
	"fmt"
	"math/rand"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"coach-backend/internal/config"
)

// TraceHeader carries the trace id in and out of the API and on to the
// remote collaborator.
const TraceHeader = "X-Trace-ID"

// Middleware opens an http.request span per sampled request. The inbound
// trace header is honoured, and the tracer rides along in the user context
// so entity spans nest under the request.
func Middleware(cfg config.InstrumentationConfig, sink Sink) fiber.Handler {
	if !cfg.Enabled || sink == nil {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	tracer := NewTracer(sink)
	return func(c *fiber.Ctx) error {
		if cfg.SamplingRate < 1.0 && rand.Float64() > cfg.SamplingRate {
			return c.Next()
		}

		traceID := c.Get(TraceHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}
		ctx := WithTracer(WithTraceID(c.UserContext(), traceID), tracer)
		ctx, span := tracer.Start(ctx, "http.request")
		span.Set("method", c.Method())
		span.Set("path", c.Path())
		if entity := c.Params("entity"); entity != "" {
			span.Entity(entity, c.Params("id"))
		}
		c.SetUserContext(ctx)
		c.Set(TraceHeader, traceID)

		err := c.Next()

		status := c.Response().StatusCode()
		span.Set("status_code", status)
		switch {
		case err != nil:
			span.Fail(err)
		case status >= 400:
			span.Fail(fmt.Errorf("HTTP %d", status))
		}
		span.End()
		return err
	}
}
