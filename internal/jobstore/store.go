// Package jobstore records narration jobs and their progress in SQLite.
package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/loqalabs/narrator/internal/config"
	_ "modernc.org/sqlite"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusError      Status = "error"
)

var ErrNotFound = errors.New("job not found")

// Job is one document synthesis tracked for callers.
type Job struct {
	ID               string
	SourceID         string
	Status           Status
	Provider         string
	ManifestLocation string
	Error            string
	Retryable        bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Event is a progress entry of a job.
type Event struct {
	ID        int64
	JobID     string
	Kind      string
	Detail    string
	CreatedAt time.Time
}

// Store wraps the SQLite database. A disabled store accepts writes and
// forgets them.
type Store struct {
	db    *sql.DB
	cfg   config.JobsConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the job store according to config.
func Open(ctx context.Context, cfg config.JobsConfig, log *slog.Logger) (*Store, error) {
	if !cfg.Enabled {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.Prune(ctx); err != nil {
		log.Warn("job store prune on start failed", slog.String("error", err.Error()))
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS jobs (
    job_id TEXT PRIMARY KEY,
    source_id TEXT NOT NULL,
    status TEXT NOT NULL,
    provider TEXT,
    manifest_location TEXT,
    error TEXT,
    retryable INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS job_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    job_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    detail TEXT,
    created_at INTEGER NOT NULL,
    FOREIGN KEY(job_id) REFERENCES jobs(job_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_job_events_job_created ON job_events(job_id, created_at);
CREATE INDEX IF NOT EXISTS idx_jobs_source ON jobs(source_id, created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) Enabled() bool { return s.db != nil }

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) now() int64 { return s.clock().UTC().UnixMilli() }

// Create inserts a job in the queued state unless job.Status says otherwise.
func (s *Store) Create(ctx context.Context, job Job) error {
	if s.db == nil {
		return nil
	}
	if job.Status == "" {
		job.Status = StatusQueued
	}
	now := s.now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs(job_id, source_id, status, provider, created_at, updated_at)
		 VALUES(?, ?, ?, ?, ?, ?)`,
		job.ID, job.SourceID, string(job.Status), job.Provider, now, now)
	return err
}

// SetStatus moves a job to status.
func (s *Store) SetStatus(ctx context.Context, id string, status Status) error {
	return s.update(ctx, id,
		`UPDATE jobs SET status = ?, updated_at = ? WHERE job_id = ?`,
		string(status), s.now(), id)
}

// Complete marks a job ready with the location of its manifest.
func (s *Store) Complete(ctx context.Context, id, provider, manifestLocation string) error {
	return s.update(ctx, id,
		`UPDATE jobs SET status = ?, provider = ?, manifest_location = ?, error = NULL, retryable = 0, updated_at = ?
		 WHERE job_id = ?`,
		string(StatusReady), provider, manifestLocation, s.now(), id)
}

// Fail marks a job errored. retryable tells a scheduler whether running it
// again may succeed.
func (s *Store) Fail(ctx context.Context, id, message string, retryable bool) error {
	return s.update(ctx, id,
		`UPDATE jobs SET status = ?, error = ?, retryable = ?, updated_at = ? WHERE job_id = ?`,
		string(StatusError), message, retryable, s.now(), id)
}

func (s *Store) update(ctx context.Context, id, query string, args ...any) error {
	if s.db == nil {
		return nil
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Get loads one job.
func (s *Store) Get(ctx context.Context, id string) (Job, error) {
	if s.db == nil {
		return Job{}, ErrNotFound
	}
	var (
		job                     Job
		status                  string
		provider, manifest, msg sql.NullString
		created, updated        int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT job_id, source_id, status, provider, manifest_location, error, retryable, created_at, updated_at
		 FROM jobs WHERE job_id = ?`, id).
		Scan(&job.ID, &job.SourceID, &status, &provider, &manifest, &msg, &job.Retryable, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, err
	}
	job.Status = Status(status)
	job.Provider = provider.String
	job.ManifestLocation = manifest.String
	job.Error = msg.String
	job.CreatedAt = time.UnixMilli(created).UTC()
	job.UpdatedAt = time.UnixMilli(updated).UTC()
	return job, nil
}

// AppendEvent writes a progress entry.
func (s *Store) AppendEvent(ctx context.Context, evt Event) error {
	if s.db == nil {
		return nil
	}
	created := s.now()
	if !evt.CreatedAt.IsZero() {
		created = evt.CreatedAt.UTC().UnixMilli()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO job_events(job_id, kind, detail, created_at) VALUES(?, ?, ?, ?)`,
		evt.JobID, evt.Kind, evt.Detail, created)
	return err
}

// ListEvents retrieves up to limit events of a job in insertion order.
func (s *Store) ListEvents(ctx context.Context, jobID string, limit int) ([]Event, error) {
	if s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job_id, kind, detail, created_at
		 FROM job_events WHERE job_id = ? ORDER BY id ASC LIMIT ?`, jobID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e       Event
			detail  sql.NullString
			created int64
		)
		if err := rows.Scan(&e.ID, &e.JobID, &e.Kind, &detail, &created); err != nil {
			return nil, err
		}
		e.Detail = detail.String
		e.CreatedAt = time.UnixMilli(created).UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}

// Prune drops jobs older than the retention window along with their events.
func (s *Store) Prune(ctx context.Context) (err error) {
	if s.db == nil || s.cfg.RetentionDays <= 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour).UTC().UnixMilli()
	if _, err = tx.ExecContext(ctx, `DELETE FROM job_events WHERE job_id IN (SELECT job_id FROM jobs WHERE updated_at < ?)`, cutoff); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM jobs WHERE updated_at < ?`, cutoff); err != nil {
		return err
	}
	return tx.Commit()
}
