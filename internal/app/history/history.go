// Package history keeps a SQLite log of finished runs. It records outcomes
// only; a crawl cannot be resumed from it.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"crawlurl/internal/usecase"
)

const dbName = "history.db"

// Run is one recorded crawl or sitemap run.
type Run struct {
	ID        string
	StartURL  string
	Mode      string
	Success   bool
	Count     int
	Warnings  int
	Message   string
	Output    string
	StartedAt time.Time
	Duration  time.Duration
}

// NewRun summarizes res for storage.
func NewRun(startURL, mode string, res usecase.CrawlResult, output string, startedAt time.Time, duration time.Duration) Run {
	return Run{
		StartURL:  startURL,
		Mode:      mode,
		Success:   res.Success,
		Count:     res.Count,
		Warnings:  len(res.Errors),
		Message:   res.Message,
		Output:    output,
		StartedAt: startedAt,
		Duration:  duration,
	}
}

type Store struct {
	db   *sql.DB
	path string
}

// DefaultDir is the XDG data directory for crawl-url.
func DefaultDir() string {
	return filepath.Join(xdg.DataHome, "crawl-url")
}

// Open opens or creates the history database inside dir.
func Open(dir string) (*Store, error) {
	if dir == "" {
		dir = DefaultDir()
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	path := filepath.Join(dir, dbName)

	db, err := sql.Open("sqlite", path+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, path: path}
	if err := s.createTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		start_url TEXT NOT NULL,
		mode TEXT NOT NULL,
		success INTEGER NOT NULL,
		url_count INTEGER NOT NULL,
		warnings INTEGER NOT NULL,
		message TEXT,
		output TEXT,
		started_at INTEGER NOT NULL, -- unix nanoseconds
		duration_ms INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Record stores run and returns its id. A missing id is generated.
func (s *Store) Record(ctx context.Context, run Run) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	query := `
	INSERT INTO runs (id, start_url, mode, success, url_count, warnings, message, output, started_at, duration_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		run.ID, run.StartURL, run.Mode, run.Success, run.Count, run.Warnings,
		run.Message, run.Output, run.StartedAt.UnixNano(), run.Duration.Milliseconds())
	if err != nil {
		return "", fmt.Errorf("failed to record run: %w", err)
	}
	return run.ID, nil
}

// List returns up to limit runs, newest first. A non-positive limit lists all.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, start_url, mode, success, url_count, warnings, message, output, started_at, duration_ms
	FROM runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r          Run
			message    sql.NullString
			output     sql.NullString
			startedAt  int64
			durationMS int64
		)
		if err := rows.Scan(&r.ID, &r.StartURL, &r.Mode, &r.Success, &r.Count, &r.Warnings,
			&message, &output, &startedAt, &durationMS); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.Message = message.String
		r.Output = output.String
		r.StartedAt = time.Unix(0, startedAt).UTC()
		r.Duration = time.Duration(durationMS) * time.Millisecond
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
