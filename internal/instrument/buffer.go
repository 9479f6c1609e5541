package instrument

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"

	"coach-backend/internal/store"
)

const (
	defaultBufferSize    = 500
	defaultFlushInterval = 100 * time.Millisecond
)

// EventBuffer is the Sink that persists events. One goroutine writes them
// to _events in batches, on a timer or as soon as the buffer fills.
type EventBuffer struct {
	db      *sql.DB
	dialect store.Dialect
	limit   int
	every   time.Duration

	mu      sync.Mutex
	pending []Event

	full     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	wg       conc.WaitGroup
}

// NewEventBuffer starts the writer. Non-positive sizes fall back to the
// defaults.
func NewEventBuffer(db *sql.DB, dialect store.Dialect, maxSize int, flushIntervalMs int) *EventBuffer {
	b := &EventBuffer{
		db:      db,
		dialect: dialect,
		limit:   maxSize,
		every:   time.Duration(flushIntervalMs) * time.Millisecond,
		full:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
	if b.limit <= 0 {
		b.limit = defaultBufferSize
	}
	if b.every <= 0 {
		b.every = defaultFlushInterval
	}
	b.wg.Go(b.loop)
	return b
}

func (b *EventBuffer) loop() {
	ticker := time.NewTicker(b.every)
	defer ticker.Stop()
	for {
		select {
		case <-b.stop:
			b.Flush()
			return
		case <-ticker.C:
		case <-b.full:
		}
		b.Flush()
	}
}

// Enqueue buffers e and wakes the writer once the buffer is full.
func (b *EventBuffer) Enqueue(e Event) {
	b.mu.Lock()
	b.pending = append(b.pending, e)
	full := len(b.pending) >= b.limit
	b.mu.Unlock()
	if full {
		select {
		case b.full <- struct{}{}:
		default:
		}
	}
}

// Pending returns the number of buffered events.
func (b *EventBuffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Flush writes everything buffered so far as one insert. A failed batch is
// logged and dropped.
func (b *EventBuffer) Flush() {
	b.mu.Lock()
	batch := b.pending
	b.pending = nil
	b.mu.Unlock()
	if len(batch) == 0 {
		return
	}
	if err := b.write(context.Background(), batch); err != nil {
		log.Printf("ERROR: event buffer: dropped %d events: %v", len(batch), err)
	}
}

// Stop flushes what is left and ends the writer. It is safe to call twice.
func (b *EventBuffer) Stop() {
	b.stopOnce.Do(func() { close(b.stop) })
	b.wg.Wait()
}

var eventColumns = []string{
	"id", "trace_id", "span_id", "parent_id", "kind", "op",
	"entity", "record_id", "duration_ms", "status", "attrs", "recorded_at",
}

func (b *EventBuffer) write(ctx context.Context, batch []Event) error {
	pb := b.dialect.NewParamBuilder()
	rows := make([]string, len(batch))
	for i, e := range batch {
		values := row(e)
		ph := make([]string, len(values))
		for j, v := range values {
			ph[j] = pb.Add(v)
		}
		rows[i] = "(" + strings.Join(ph, ", ") + ")"
	}
	stmt := fmt.Sprintf("INSERT INTO _events (%s) VALUES %s",
		strings.Join(eventColumns, ", "), strings.Join(rows, ", "))

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck
	if relax := b.dialect.SyncCommitOff(); relax != "" {
		if _, err := tx.ExecContext(ctx, relax); err != nil {
			return fmt.Errorf("relax commit: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, stmt, pb.Params()...); err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	return tx.Commit()
}

// row lays e out in eventColumns order.
func row(e Event) []any {
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	var duration, attrs any
	if e.Kind == KindSpan {
		duration = float64(e.Duration.Microseconds()) / 1000
	}
	if len(e.Attrs) > 0 {
		if b, err := json.Marshal(e.Attrs); err == nil {
			attrs = string(b)
		}
	}
	return []any{
		uuid.NewString(), e.TraceID, e.SpanID, null(e.ParentID), e.Kind, e.Op,
		null(e.Entity), null(e.RecordID), duration, null(e.Status), attrs,
		at.UTC().Format(time.RFC3339Nano),
	}
}

func null(s string) any {
	if s == "" {
		return nil
	}
	return s
}
