package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

var scanColumns = []string{"id", "key", "text", "parsed", "count", "first_seen", "last_seen", "uses", "created_at", "expires_at"}

func TestPostgresStore_RecordScan_FirstSight(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	at := time.Date(2025, time.March, 15, 10, 30, 0, 0, time.Local)
	mock.ExpectQuery(`INSERT INTO scans .* ON CONFLICT \(key\) DO UPDATE`).
		WithArgs(pgxmock.AnyArg(), "a1b2c3d4e5f6a7b8", "QIT:raw", []byte(`{"flight":"FL123"}`), at, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(scanColumns).AddRow(
			"rec-1", "a1b2c3d4e5f6a7b8", "QIT:raw",
			[]byte(`{"flight":"FL123"}`), 1, at, at,
			[]byte(`[{"at":"2025-03-15T10:30:00Z"}]`), at, endOfDay(at),
		))

	rec, err := s.RecordScan(context.Background(), "a1b2c3d4e5f6a7b8", "QIT:raw",
		map[string]any{"flight": "FL123"}, at)
	require.NoError(t, err)

	assert.Equal(t, "a1b2c3d4e5f6a7b8", rec.Key)
	assert.Equal(t, 1, rec.Count)
	assert.False(t, rec.WasDuplicate())
	assert.Equal(t, "FL123", rec.Parsed["flight"])
	require.Len(t, rec.Uses, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordScan_Duplicate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	at := time.Now()
	mock.ExpectQuery(`ON CONFLICT \(key\) DO UPDATE`).
		WithArgs(pgxmock.AnyArg(), "key-1", "text", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(scanColumns).AddRow(
			"rec-1", "key-1", "text", nil, 3, at.Add(-time.Hour), at,
			[]byte(`[{"at":"2025-03-15T09:00:00Z"},{"at":"2025-03-15T09:30:00Z"},{"at":"2025-03-15T10:00:00Z"}]`),
			at.Add(-time.Hour), endOfDay(at),
		))

	rec, err := s.RecordScan(context.Background(), "key-1", "text", nil, at)
	require.NoError(t, err)

	assert.Equal(t, 3, rec.Count)
	assert.True(t, rec.WasDuplicate())
	assert.Nil(t, rec.Parsed)
	assert.Len(t, rec.Uses, 3)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordScan_QueryError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`INSERT INTO scans`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(assert.AnError)

	_, err := s.RecordScan(context.Background(), "key-1", "text", nil, time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record scan")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListToday(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now()
	mock.ExpectQuery(`SELECT .* FROM scans WHERE created_at >= \$1 AND created_at < \$2 ORDER BY last_seen DESC`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), 1000).
		WillReturnRows(pgxmock.NewRows(scanColumns).
			AddRow("rec-2", "key-2", "t2", nil, 2, now, now, []byte(`[]`), now, endOfDay(now)).
			AddRow("rec-1", "key-1", "t1", nil, 1, now, now.Add(-time.Minute), []byte(`[]`), now, endOfDay(now)))

	records, err := s.ListToday(context.Background(), 1000)
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, "key-2", records[0].Key)
	assert.Equal(t, "key-1", records[1].Key)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ClearAll(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM scans`).
		WillReturnResult(pgxmock.NewResult("DELETE", 7))

	n, err := s.ClearAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteExpired(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM scans WHERE expires_at <= now\(\)`).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	n, err := s.DeleteExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
