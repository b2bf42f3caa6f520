package ledger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/nx-scanner/internal/db"
	"github.com/sells-group/nx-scanner/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS scans (
	id         TEXT PRIMARY KEY,
	key        TEXT NOT NULL UNIQUE,
	text       TEXT NOT NULL,
	parsed     JSONB,
	count      INTEGER NOT NULL DEFAULT 1,
	first_seen TIMESTAMPTZ NOT NULL,
	last_seen  TIMESTAMPTZ NOT NULL,
	uses       JSONB NOT NULL DEFAULT '[]',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scans_expires_at ON scans(expires_at);
CREATE INDEX IF NOT EXISTS idx_scans_created_at ON scans(created_at);
CREATE INDEX IF NOT EXISTS idx_scans_last_seen ON scans(last_seen);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

const postgresUpsertScan = `
INSERT INTO scans (id, key, text, parsed, count, first_seen, last_seen, uses, created_at, expires_at)
VALUES ($1, $2, $3, $4, 1, $5, $5, $6, $5, $7)
ON CONFLICT (key) DO UPDATE SET
	text       = EXCLUDED.text,
	parsed     = EXCLUDED.parsed,
	count      = scans.count + 1,
	last_seen  = EXCLUDED.last_seen,
	expires_at = EXCLUDED.expires_at,
	uses       = scans.uses || EXCLUDED.uses
RETURNING id, key, text, parsed, count, first_seen, last_seen, uses, created_at, expires_at`

func (s *PostgresStore) RecordScan(ctx context.Context, key, text string, parsed map[string]any, at time.Time) (*model.ScanRecord, error) {
	parsedJSON, err := marshalParsed(parsed)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal parsed")
	}
	useJSON, err := json.Marshal([]model.ScanUse{{At: at}})
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal use")
	}

	row := s.pool.QueryRow(ctx, postgresUpsertScan,
		uuid.New().String(), key, text, parsedJSON, at, useJSON, endOfDay(at),
	)
	rec, err := scanRecordRow(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: record scan %s", key)
	}
	return rec, nil
}

const postgresListToday = `
SELECT id, key, text, parsed, count, first_seen, last_seen, uses, created_at, expires_at
FROM scans
WHERE created_at >= $1 AND created_at < $2
ORDER BY last_seen DESC
LIMIT $3`

func (s *PostgresStore) ListToday(ctx context.Context, limit int) ([]*model.ScanRecord, error) {
	start, end := dayBounds(time.Now())
	rows, err := s.pool.Query(ctx, postgresListToday, start, end, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list today")
	}
	defer rows.Close()

	var records []*model.ScanRecord
	for rows.Next() {
		rec, err := scanRecordRow(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan row")
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate rows")
	}
	return records, nil
}

func (s *PostgresStore) ClearAll(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM scans`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: clear all")
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM scans WHERE expires_at <= now()`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired")
	}
	return tag.RowsAffected(), nil
}

// rowScanner covers both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecordRow(row rowScanner) (*model.ScanRecord, error) {
	var (
		rec        model.ScanRecord
		parsedJSON []byte
		usesJSON   []byte
	)
	err := row.Scan(&rec.ID, &rec.Key, &rec.Text, &parsedJSON, &rec.Count,
		&rec.FirstSeen, &rec.LastSeen, &usesJSON, &rec.CreatedAt, &rec.ExpiresAt)
	if err != nil {
		return nil, err
	}
	if len(parsedJSON) > 0 {
		if err := json.Unmarshal(parsedJSON, &rec.Parsed); err != nil {
			return nil, eris.Wrap(err, "unmarshal parsed")
		}
	}
	if len(usesJSON) > 0 {
		if err := json.Unmarshal(usesJSON, &rec.Uses); err != nil {
			return nil, eris.Wrap(err, "unmarshal uses")
		}
	}
	return &rec, nil
}

func marshalParsed(parsed map[string]any) ([]byte, error) {
	if parsed == nil {
		return nil, nil
	}
	return json.Marshal(parsed)
}
