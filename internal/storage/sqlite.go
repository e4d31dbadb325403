package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	created_at   INTEGER NOT NULL,
	sample_count INTEGER NOT NULL,
	num_segments INTEGER NOT NULL,
	payload      BLOB NOT NULL,
	labels       BLOB
);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs (created_at DESC);
`

// SQLiteStore persists runs in a single SQLite file
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewSQLiteStore opens (creating if needed) the database at path. Use
// ":memory:" for a throwaway database.
func NewSQLiteStore(path string, logger *zap.SugaredLogger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, multierr.Append(fmt.Errorf("failed to ping SQLite database: %w", err), db.Close())
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, multierr.Append(fmt.Errorf("failed to create schema: %w", err), db.Close())
	}

	if logger != nil {
		logger.Infof("opened SQLite run store at %s", path)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run *Run) error {
	if err := prepare(run); err != nil {
		return err
	}
	labels, err := encodeLabels(run.Labels)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, name, created_at, sample_count, num_segments, payload, labels)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			sample_count = excluded.sample_count,
			num_segments = excluded.num_segments,
			payload = excluded.payload,
			labels = excluded.labels`,
		run.ID.String(), run.Name, run.CreatedAt.UnixNano(), run.SampleCount, run.NumSegments,
		run.Payload, labels)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, created_at, sample_count, num_segments, payload, labels
		FROM runs WHERE id = ?`, id.String())

	run, err := scanRun(row.Scan, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", id, err)
	}
	return run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_at, sample_count, num_segments, labels
		FROM runs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows.Scan, false)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) UpdateLabels(ctx context.Context, id uuid.UUID, labels []int) error {
	data, err := encodeLabels(labels)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE runs SET labels = ? WHERE id = ?`, data, id.String())
	if err != nil {
		return fmt.Errorf("failed to update labels of run %s: %w", id, err)
	}
	return expectOneRow(res)
}

func (s *SQLiteStore) DeleteRun(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete run %s: %w", id, err)
	}
	return expectOneRow(res)
}

func (s *SQLiteStore) CountRuns(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count runs: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanRun(scan func(dest ...interface{}) error, withPayload bool) (*Run, error) {
	var (
		id        string
		createdAt int64
		payload   []byte
		labels    []byte
		run       Run
	)

	dest := []interface{}{&id, &run.Name, &createdAt, &run.SampleCount, &run.NumSegments}
	if withPayload {
		dest = append(dest, &payload)
	}
	dest = append(dest, &labels)

	if err := scan(dest...); err != nil {
		return nil, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", id, err)
	}
	run.ID = parsed
	run.CreatedAt = time.Unix(0, createdAt).UTC()
	run.Payload = payload
	if run.Labels, err = decodeLabels(labels); err != nil {
		return nil, err
	}
	return &run, nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRunNotFound
	}
	return nil
}
