// Package instrument traces requests through the entity layer. Spans and
// cache change records are handed to a Sink; the EventBuffer sink batches
// them into the _events table.
package instrument

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event kinds.
const (
	KindSpan   = "span"
	KindChange = "change"
)

// Event is one row of _events. Empty strings are stored as NULL.
type Event struct {
	TraceID  string         `json:"trace_id"`
	SpanID   string         `json:"span_id"`
	ParentID string         `json:"parent_id,omitempty"`
	Kind     string         `json:"kind"`
	Op       string         `json:"op"`
	Entity   string         `json:"entity,omitempty"`
	RecordID string         `json:"record_id,omitempty"`
	Duration time.Duration  `json:"duration"`
	Status   string         `json:"status,omitempty"`
	Attrs    map[string]any `json:"attrs,omitempty"`
	At       time.Time      `json:"at"`
}

// Sink receives finished events.
type Sink interface {
	Enqueue(Event)
}

// Tracer opens spans that report to one sink.
type Tracer struct {
	sink Sink
}

func NewTracer(sink Sink) *Tracer {
	return &Tracer{sink: sink}
}

type ctxKey int

const (
	positionKey ctxKey = iota
	tracerKey
)

// position is where in a trace a context sits.
type position struct {
	traceID string
	spanID  string
}

func positionOf(ctx context.Context) position {
	p, _ := ctx.Value(positionKey).(position)
	return p
}

// WithTraceID starts ctx on the given trace, dropping any parent span.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, positionKey, position{traceID: traceID})
}

// TraceID returns the trace ctx belongs to, or "".
func TraceID(ctx context.Context) string {
	return positionOf(ctx).traceID
}

// WithTracer makes t the tracer for Start and Record under ctx.
func WithTracer(ctx context.Context, t *Tracer) context.Context {
	return context.WithValue(ctx, tracerKey, t)
}

func tracerFrom(ctx context.Context) *Tracer {
	t, _ := ctx.Value(tracerKey).(*Tracer)
	return t
}

// Start opens a span named op under the tracer in ctx. Without a tracer the
// returned span is nil, and every Span method accepts a nil receiver.
func Start(ctx context.Context, op string) (context.Context, *Span) {
	t := tracerFrom(ctx)
	if t == nil || t.sink == nil {
		return ctx, nil
	}
	return t.Start(ctx, op)
}

// Start opens a span named op. Work that arrives without a trace gets one.
func (t *Tracer) Start(ctx context.Context, op string) (context.Context, *Span) {
	pos := positionOf(ctx)
	if pos.traceID == "" {
		pos.traceID = uuid.NewString()
	}
	s := &Span{
		sink:     t.sink,
		traceID:  pos.traceID,
		id:       uuid.NewString(),
		parentID: pos.spanID,
		op:       op,
		start:    time.Now(),
		attrs:    make(map[string]any),
	}
	return context.WithValue(ctx, positionKey, position{traceID: s.traceID, spanID: s.id}), s
}

// Record emits a change event for entity under the tracer in ctx. It is a
// no-op without one.
func Record(ctx context.Context, action, entity, recordID string, attrs map[string]any) {
	t := tracerFrom(ctx)
	if t == nil || t.sink == nil {
		return
	}
	pos := positionOf(ctx)
	t.sink.Enqueue(Event{
		TraceID:  pos.traceID,
		SpanID:   uuid.NewString(),
		ParentID: pos.spanID,
		Kind:     KindChange,
		Op:       action,
		Entity:   entity,
		RecordID: recordID,
		Attrs:    attrs,
		At:       time.Now().UTC(),
	})
}

// Span is one timed operation. The zero status is "ok"; Fail marks it
// "error".
type Span struct {
	sink     Sink
	traceID  string
	id       string
	parentID string
	op       string
	start    time.Time

	mu       sync.Mutex
	entity   string
	recordID string
	failed   bool
	attrs    map[string]any
	ended    bool
}

func (s *Span) TraceID() string {
	if s == nil {
		return ""
	}
	return s.traceID
}

func (s *Span) ID() string {
	if s == nil {
		return ""
	}
	return s.id
}

// Entity tags the span with the entity and, when known, the record.
func (s *Span) Entity(name, recordID string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entity, s.recordID = name, recordID
}

// Set attaches an attribute.
func (s *Span) Set(key string, value any) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attrs[key] = value
}

// Fail marks the span failed and keeps the error text.
func (s *Span) Fail(err error) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = true
	if err != nil {
		s.attrs["error"] = err.Error()
	}
}

// End hands the span to the sink. Only the first call counts.
func (s *Span) End() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true

	status := "ok"
	if s.failed {
		status = "error"
	}
	s.sink.Enqueue(Event{
		TraceID:  s.traceID,
		SpanID:   s.id,
		ParentID: s.parentID,
		Kind:     KindSpan,
		Op:       s.op,
		Entity:   s.entity,
		RecordID: s.recordID,
		Duration: time.Since(s.start),
		Status:   status,
		Attrs:    s.attrs,
		At:       time.Now().UTC(),
	})
}
