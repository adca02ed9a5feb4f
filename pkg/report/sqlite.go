package report

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/devicelab-dev/replay-runner/pkg/core"
)

// SQLiteSink keeps the history of every run across sessions.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens (or creates) the history database at dsn.
func NewSQLiteSink(dsn string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &SQLiteSink{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// migrate runs database migrations.
func (s *SQLiteSink) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			package TEXT NOT NULL,
			segment TEXT NOT NULL,
			version TEXT,
			loop INTEGER NOT NULL DEFAULT 0,
			verdict TEXT NOT NULL,
			attempted INTEGER NOT NULL DEFAULT 0,
			matched INTEGER NOT NULL DEFAULT 0,
			message TEXT,
			started_at DATETIME NOT NULL,
			duration_ms INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_session ON runs(session_id, started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_package ON runs(package, started_at)`,
		`CREATE TABLE IF NOT EXISTS checkpoints (
			run_id TEXT NOT NULL,
			idx INTEGER NOT NULL,
			offset_s REAL NOT NULL,
			passed INTEGER NOT NULL,
			PRIMARY KEY (run_id, idx),
			FOREIGN KEY (run_id) REFERENCES runs(run_id)
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Write stores res and its checkpoints in one transaction. A run without an
// ID gets a new one.
func (s *SQLiteSink) Write(res *core.RunResult) error {
	return s.WriteContext(context.Background(), res)
}

// WriteContext is Write with a context.
func (s *SQLiteSink) WriteContext(ctx context.Context, res *core.RunResult) error {
	if res.RunID == "" {
		res.RunID = uuid.New().String()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, session_id, package, segment, version, loop, verdict, attempted, matched, message, started_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.RunID, res.SessionID, res.Package, res.Segment, res.Version, res.Loop,
		res.Verdict.String(), res.Attempted, res.Matched, res.Message,
		res.StartTime.UTC(), res.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, cp := range res.Checkpoints {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO checkpoints (run_id, idx, offset_s, passed) VALUES (?, ?, ?, ?)`,
			res.RunID, cp.Index, cp.Offset, cp.Passed); err != nil {
			return fmt.Errorf("insert checkpoint: %w", err)
		}
	}
	return tx.Commit()
}

// History returns the most recent runs of a package, newest first.
func (s *SQLiteSink) History(ctx context.Context, pkg string, limit int) ([]core.RunResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, session_id, package, segment, version, loop, verdict, attempted, matched, message, started_at, duration_ms
		 FROM runs WHERE package = ? ORDER BY started_at DESC, rowid DESC LIMIT ?`, pkg, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.RunResult
	for rows.Next() {
		var r core.RunResult
		var version, message sql.NullString
		var verdict string
		var durationMs int64
		if err := rows.Scan(&r.RunID, &r.SessionID, &r.Package, &r.Segment, &version, &r.Loop,
			&verdict, &r.Attempted, &r.Matched, &message, &r.StartTime, &durationMs); err != nil {
			return nil, err
		}
		r.Version = version.String
		r.Message = message.String
		r.Verdict = core.ParseVerdict(verdict)
		r.Duration = time.Duration(durationMs) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
