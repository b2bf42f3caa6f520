// Package ledger persists scan records and deduplicates repeat scans.
package ledger

import (
	"context"
	"time"

	"github.com/sells-group/nx-scanner/internal/model"
)

// Store is the persistence interface for the scan ledger. Both drivers
// implement the same upsert-with-increment contract: RecordScan is a
// single atomic statement, so concurrent scans of one key can never
// race into duplicate rows or lost counts.
type Store interface {
	// Migrate creates the schema if it does not exist.
	Migrate(ctx context.Context) error

	// RecordScan upserts the record for key. On first sight it inserts a
	// fresh row with count 1; on conflict it bumps count, refreshes text,
	// parsed, last_seen and expires_at, and appends the use timestamp.
	// The returned record reflects the post-upsert state.
	RecordScan(ctx context.Context, key, text string, parsed map[string]any, at time.Time) (*model.ScanRecord, error)

	// ListToday returns records created during the current local calendar
	// day, most recently seen first, capped at limit.
	ListToday(ctx context.Context, limit int) ([]*model.ScanRecord, error)

	// ClearAll removes every record and reports how many were deleted.
	ClearAll(ctx context.Context) (int64, error)

	// DeleteExpired removes records whose expires_at has passed.
	DeleteExpired(ctx context.Context) (int64, error)

	Close() error
}

// endOfDay returns the last representable instant of t's local calendar
// day. Records expire at this boundary so a ticket scanned today can
// never collide with tomorrow's scans.
func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 999_000_000, t.Location())
}

// dayBounds returns the half-open [start, end) interval of t's local
// calendar day.
func dayBounds(t time.Time) (time.Time, time.Time) {
	y, m, d := t.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1)
}
