// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package history persists submission outcomes in SQLite.
package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"

	"github.com/pdiddy/promptdesk/pkg/types"
)

//go:embed migrations/*.sql
var migrations embed.FS

const defaultListLimit = 100

// ErrNotFound is returned by Get when no outcome has the given ID.
var ErrNotFound = errors.New("outcome not found")

// Store manages the history SQLite database.
type Store struct {
	db *sql.DB
}

// Filter narrows List results. Zero values match everything; Limit defaults
// to 100.
type Filter struct {
	Status types.Status
	Since  time.Time
	Limit  int
}

// Open opens or creates the database at cfg.Path and applies pending
// migrations.
func Open(cfg types.HistoryConfig) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("history path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return &Store{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}
	defer src.Close()

	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("creating migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	// m.Close would close db as well, so only the source is released.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts o. An empty o.ID is replaced with a new ULID.
func (s *Store) Record(ctx context.Context, o types.Outcome) error {
	_, err := s.insert(ctx, o)
	return err
}

func (s *Store) insert(ctx context.Context, o types.Outcome) (string, error) {
	if o.ID == "" {
		o.ID = ulid.Make().String()
	}
	if !o.Status.Recorded() {
		return "", fmt.Errorf("invalid status %q", o.Status)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outcomes
			(id, submission_id, token, prompt, status, result, error, model, issued_at, completed_at, duration_ns)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.SubmissionID, int64(o.Token), o.Prompt, string(o.Status),
		o.Result, o.Error, o.Model,
		o.IssuedAt.UnixNano(), o.CompletedAt.UnixNano(), int64(o.Duration),
	)
	if err != nil {
		return "", fmt.Errorf("inserting outcome %s: %w", o.ID, err)
	}
	return o.ID, nil
}

const selectColumns = `SELECT id, submission_id, token, prompt, status, result, error, model,
	issued_at, completed_at, duration_ns FROM outcomes`

// List returns matching outcomes, most recent first.
func (s *Store) List(ctx context.Context, f Filter) ([]types.Outcome, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if !f.Since.IsZero() {
		where = append(where, "completed_at >= ?")
		args = append(args, f.Since.UnixNano())
	}

	query := selectColumns
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying outcomes: %w", err)
	}
	defer rows.Close()

	var out []types.Outcome
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Get returns the outcome with the given ID.
func (s *Store) Get(ctx context.Context, id string) (types.Outcome, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id)
	o, err := scanOutcome(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Outcome{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return o, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOutcome(sc scanner) (types.Outcome, error) {
	var (
		o                     types.Outcome
		status                string
		token                 int64
		issued, completed, ns int64
	)
	if err := sc.Scan(&o.ID, &o.SubmissionID, &token, &o.Prompt, &status,
		&o.Result, &o.Error, &o.Model, &issued, &completed, &ns); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return o, err
		}
		return o, fmt.Errorf("scanning outcome: %w", err)
	}
	o.Token = uint64(token)
	o.Status = types.Status(status)
	o.IssuedAt = time.Unix(0, issued).UTC()
	o.CompletedAt = time.Unix(0, completed).UTC()
	o.Duration = time.Duration(ns)
	return o, nil
}

// SafeRecorder adapts a Store for the coordinator. Store failures are
// logged and never reach the caller.
type SafeRecorder struct {
	Store  *Store
	Logger *slog.Logger
}

// Record implements coordinator.Recorder.
func (r SafeRecorder) Record(ctx context.Context, o types.Outcome) error {
	id, err := r.Store.insert(ctx, o)
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if err != nil {
		logger.Warn("history record failed", "submission_id", o.SubmissionID, "error", err)
		return nil
	}
	logger.Debug("history recorded", "id", id, "status", o.Status)
	return nil
}
