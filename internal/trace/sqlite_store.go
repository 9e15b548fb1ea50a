package trace

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/SanchayPahalwani/lux/pkg/beam"
)

// SQLiteStore is a Store backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing the
// driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore initializes the required schema in the given database
// and returns a new SQLiteStore.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			beam_id TEXT NOT NULL,
			status TEXT NOT NULL,
			started_by TEXT NOT NULL,
			started_at TEXT NOT NULL,
			completed_at TEXT NOT NULL,
			input BLOB,
			output BLOB,
			entries BLOB,
			error TEXT,
			seq INTEGER
		);
		CREATE INDEX IF NOT EXISTS runs_beam_status ON runs (beam_id, status);`,
	)
	return err
}

func (s *SQLiteStore) SaveRun(ctx context.Context, log *beam.ExecutionLog) error {
	input, err := encodeValue(log.Input)
	if err != nil {
		return err
	}
	output, err := encodeValue(log.Output)
	if err != nil {
		return err
	}
	entries, err := encodeEntries(log.Entries)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, beam_id, status, started_by, started_at, completed_at, input, output, entries, error, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM runs))`,
		log.RunID,
		log.BeamID,
		string(log.Status),
		log.StartedBy,
		log.StartedAt.Format(time.RFC3339Nano),
		log.CompletedAt.Format(time.RFC3339Nano),
		input,
		output,
		entries,
		log.Error,
	)
	return err
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*beam.ExecutionLog, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, beam_id, status, started_by, started_at, completed_at, input, output, entries, error
		FROM runs
		WHERE run_id = ?`,
		runID,
	)
	log, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	return log, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]*beam.ExecutionLog, error) {
	query := `
		SELECT run_id, beam_id, status, started_by, started_at, completed_at, input, output, entries, error
		FROM runs`
	var args []any
	var clauses []string

	if filter.BeamID != "" {
		clauses = append(clauses, "beam_id = ?")
		args = append(args, filter.BeamID)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}
	if len(clauses) > 0 {
		query = query + " WHERE " + strings.Join(clauses, " AND ")
	}
	query = query + " ORDER BY seq"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*beam.ExecutionLog
	for rows.Next() {
		log, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*beam.ExecutionLog, error) {
	var log beam.ExecutionLog
	var statusStr, startedAt, completedAt string
	var input, output, entries []byte
	var errStr sql.NullString

	if err := row.Scan(&log.RunID, &log.BeamID, &statusStr, &log.StartedBy,
		&startedAt, &completedAt, &input, &output, &entries, &errStr); err != nil {
		return nil, err
	}

	log.Status = beam.Status(statusStr)
	if errStr.Valid {
		log.Error = errStr.String
	}

	var err error
	if log.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return nil, err
	}
	if log.CompletedAt, err = time.Parse(time.RFC3339Nano, completedAt); err != nil {
		return nil, err
	}
	if log.Input, err = decodeValue(input); err != nil {
		return nil, err
	}
	if log.Output, err = decodeValue(output); err != nil {
		return nil, err
	}
	if log.Entries, err = decodeEntries(entries); err != nil {
		return nil, err
	}
	return &log, nil
}
