package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/nx-scanner/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	// SQLite allows one writer at a time; a single connection serializes
	// upserts instead of burning the busy timeout under contention.
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS scans (
	id         TEXT PRIMARY KEY,
	key        TEXT NOT NULL UNIQUE,
	text       TEXT NOT NULL,
	parsed     TEXT,
	count      INTEGER NOT NULL DEFAULT 1,
	first_seen DATETIME NOT NULL,
	last_seen  DATETIME NOT NULL,
	uses       TEXT NOT NULL DEFAULT '[]',
	created_at DATETIME NOT NULL,
	expires_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scans_expires_at ON scans(expires_at);
CREATE INDEX IF NOT EXISTS idx_scans_created_at ON scans(created_at);
CREATE INDEX IF NOT EXISTS idx_scans_last_seen ON scans(last_seen);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteUpsertScan = `
INSERT INTO scans (id, key, text, parsed, count, first_seen, last_seen, uses, created_at, expires_at)
VALUES (?, ?, ?, ?, 1, ?, ?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
	text       = excluded.text,
	parsed     = excluded.parsed,
	count      = scans.count + 1,
	last_seen  = excluded.last_seen,
	expires_at = excluded.expires_at,
	uses       = json_insert(scans.uses, '$[#]', json_extract(excluded.uses, '$[0]'))
RETURNING id, key, text, parsed, count, first_seen, last_seen, uses, created_at, expires_at`

func (s *SQLiteStore) RecordScan(ctx context.Context, key, text string, parsed map[string]any, at time.Time) (*model.ScanRecord, error) {
	var parsedJSON any
	if parsed != nil {
		b, err := json.Marshal(parsed)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: marshal parsed")
		}
		parsedJSON = string(b)
	}
	useJSON, err := json.Marshal([]model.ScanUse{{At: at}})
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal use")
	}

	row := s.db.QueryRowContext(ctx, sqliteUpsertScan,
		uuid.New().String(), key, text, parsedJSON, at, at, string(useJSON), at, endOfDay(at),
	)
	rec, err := scanSQLiteRecord(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: record scan %s", key)
	}
	return rec, nil
}

const sqliteListToday = `
SELECT id, key, text, parsed, count, first_seen, last_seen, uses, created_at, expires_at
FROM scans
WHERE created_at >= ? AND created_at < ?
ORDER BY last_seen DESC
LIMIT ?`

func (s *SQLiteStore) ListToday(ctx context.Context, limit int) ([]*model.ScanRecord, error) {
	start, end := dayBounds(time.Now())
	rows, err := s.db.QueryContext(ctx, sqliteListToday, start, end, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list today")
	}
	defer rows.Close()

	var records []*model.ScanRecord
	for rows.Next() {
		rec, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan row")
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate rows")
	}
	return records, nil
}

func (s *SQLiteStore) ClearAll(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scans`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: clear all")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return n, nil
}

func (s *SQLiteStore) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scans WHERE expires_at <= ?`, time.Now())
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return n, nil
}

func scanSQLiteRecord(row rowScanner) (*model.ScanRecord, error) {
	var (
		rec        model.ScanRecord
		parsedJSON sql.NullString
		usesJSON   string
	)
	err := row.Scan(&rec.ID, &rec.Key, &rec.Text, &parsedJSON, &rec.Count,
		&rec.FirstSeen, &rec.LastSeen, &usesJSON, &rec.CreatedAt, &rec.ExpiresAt)
	if err != nil {
		return nil, err
	}
	if parsedJSON.Valid && parsedJSON.String != "" {
		if err := json.Unmarshal([]byte(parsedJSON.String), &rec.Parsed); err != nil {
			return nil, eris.Wrap(err, "unmarshal parsed")
		}
	}
	if usesJSON != "" {
		if err := json.Unmarshal([]byte(usesJSON), &rec.Uses); err != nil {
			return nil, eris.Wrap(err, "unmarshal uses")
		}
	}
	return &rec, nil
}
