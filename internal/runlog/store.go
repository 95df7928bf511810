package runlog

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes incompatibly.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database was created by a different schema version.
var ErrSchemaMismatch = errors.New("run history schema version mismatch")

// ErrNotFound indicates no run matched the given id.
var ErrNotFound = errors.New("run not found")

// Outcome classifies how a launch ended.
type Outcome string

const (
	OutcomeRunning Outcome = "running"
	OutcomeOK      Outcome = "ok"
	// OutcomeAppExit means the app ran and exited non-zero or by signal.
	OutcomeAppExit Outcome = "app_exit"
	// OutcomeAborted means the app was never started (fail-fast, lock, launch error).
	OutcomeAborted Outcome = "aborted"
)

// timeLayout is fixed-width so started_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Run is one ledger row.
type Run struct {
	ID               string
	StartedAt        time.Time
	FinishedAt       time.Time
	ProjectDir       string
	Policy           string
	Preprocessed     bool
	PreprocessStatus string
	AppStatus        string
	ExitCode         *int
	Outcome          Outcome
	Error            string
}

// Duration returns the elapsed launch time, or zero while running.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Completion carries the fields recorded when a launch ends.
type Completion struct {
	FinishedAt       time.Time
	Preprocessed     bool
	PreprocessStatus string
	AppStatus        string
	ExitCode         *int
	Outcome          Outcome
	Err              error
}

// Store manages the run ledger backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open initializes or connects to the ledger database at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("run history path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create run history directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path, now: time.Now}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to reset history)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}

// Begin records a new running launch and returns it with its generated id.
func (s *Store) Begin(ctx context.Context, projectDir, policy string) (Run, error) {
	run := Run{
		ID:         uuid.NewString(),
		StartedAt:  s.now().UTC(),
		ProjectDir: projectDir,
		Policy:     policy,
		Outcome:    OutcomeRunning,
	}
	err := s.execWithRetry(ctx,
		`INSERT INTO runs (id, started_at, project_dir, policy, outcome) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.Format(timeLayout), run.ProjectDir, run.Policy, string(run.Outcome),
	)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// Finish completes the run identified by id.
func (s *Store) Finish(ctx context.Context, id string, c Completion) error {
	finished := c.FinishedAt
	if finished.IsZero() {
		finished = s.now()
	}
	var errText sql.NullString
	if c.Err != nil {
		errText = sql.NullString{String: c.Err.Error(), Valid: true}
	}
	var exitCode sql.NullInt64
	if c.ExitCode != nil {
		exitCode = sql.NullInt64{Int64: int64(*c.ExitCode), Valid: true}
	}
	outcome := c.Outcome
	if outcome == "" {
		outcome = OutcomeOK
	}

	var affected int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE runs SET finished_at = ?, preprocessed = ?, preprocess_status = ?, app_status = ?,
			 exit_code = ?, outcome = ?, error = ? WHERE id = ?`,
			finished.UTC().Format(timeLayout), boolToInt(c.Preprocessed), nullString(c.PreprocessStatus),
			nullString(c.AppStatus), exitCode, string(outcome), errText, id,
		)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("update run %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, project_dir, policy, preprocessed, preprocess_status,
		        app_status, exit_code, outcome, error
		 FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Prune deletes all but the newest keep runs. keep <= 0 disables pruning.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	var removed int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM runs WHERE id NOT IN (
			   SELECT id FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?
			 )`, keep)
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return removed, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run              Run
		started          string
		finished         sql.NullString
		preprocessed     int
		preprocessStatus sql.NullString
		appStatus        sql.NullString
		exitCode         sql.NullInt64
		outcome          string
		errText          sql.NullString
	)
	if err := row.Scan(&run.ID, &started, &finished, &run.ProjectDir, &run.Policy, &preprocessed,
		&preprocessStatus, &appStatus, &exitCode, &outcome, &errText); err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	var err error
	if run.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return Run{}, fmt.Errorf("parse started_at for %s: %w", run.ID, err)
	}
	if finished.Valid {
		if run.FinishedAt, err = time.Parse(timeLayout, finished.String); err != nil {
			return Run{}, fmt.Errorf("parse finished_at for %s: %w", run.ID, err)
		}
	}
	run.Preprocessed = preprocessed != 0
	run.PreprocessStatus = preprocessStatus.String
	run.AppStatus = appStatus.String
	if exitCode.Valid {
		code := int(exitCode.Int64)
		run.ExitCode = &code
	}
	run.Outcome = Outcome(outcome)
	run.Error = errText.String
	return run, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func nullString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}
