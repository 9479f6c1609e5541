package instrument

import (
	"context"
	"database/sql"
	"log"
	"strconv"
	"time"

	"coach-backend/internal/store"
)

// CleanupOldEvents deletes events recorded more than retentionDays ago and
// returns how many went.
func CleanupOldEvents(ctx context.Context, db *sql.DB, dialect store.Dialect, retentionDays int) (int64, error) {
	pb := dialect.NewParamBuilder()
	cutoff := dialect.IntervalDeleteExpr("recorded_at", pb, strconv.Itoa(retentionDays))
	return store.Exec(ctx, db, "DELETE FROM _events WHERE "+cutoff, pb.Params()...)
}

// StartCleanup prunes _events now and then daily until ctx ends. A
// non-positive retention keeps everything.
func StartCleanup(ctx context.Context, db *sql.DB, dialect store.Dialect, retentionDays int) {
	if retentionDays <= 0 {
		return
	}
	go func() {
		for {
			switch n, err := CleanupOldEvents(ctx, db, dialect, retentionDays); {
			case err != nil:
				log.Printf("ERROR: event cleanup: %v", err)
			case n > 0:
				log.Printf("Event cleanup removed %d events older than %d days", n, retentionDays)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(24 * time.Hour):
			}
		}
	}()
}
