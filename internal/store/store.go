// Package store persists detection job records in SQLite.
//
// The schema is managed by golang-migrate from migrations embedded in the
// binary and applied when the store is opened. The detection core never
// writes here; the job runner records each run's lifecycle and result.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrNotFound is returned when no record has the requested id.
var ErrNotFound = errors.New("detection record not found")

// Status is the lifecycle state of a detection job.
type Status string

// Job states.
const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Record is one persisted detection job.
type Record struct {
	ID         string `json:"id"`
	AOIID      string `json:"aoi_id,omitempty"`
	BeforePath string `json:"before_path"`
	AfterPath  string `json:"after_path"`

	// Mode is the analysis mode once completed: full or reduced.
	Mode   string `json:"mode,omitempty"`
	Status Status `json:"status"`

	// Stage is the last pipeline stage reported while running.
	Stage string `json:"stage,omitempty"`

	// ChangePercentage is set once completed.
	ChangePercentage *float64 `json:"change_percentage,omitempty"`

	// Result is the JSON payload of a completed run.
	Result []byte `json:"-"`

	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Store is a SQLite-backed record store. It is safe for concurrent use.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open opens (creating if needed) the database at path and applies pending
// migrations. Use ":memory:" for a private in-memory database.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps ":memory:"
	// databases from splitting across connections.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: logger, now: time.Now}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	logger.Debug("result store opened", "path", path)
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrateUp() error {
	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{logger: s.logger}
	// m is not closed: that would close the shared database handle.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// migrateLogger implements migrate.Logger on slog.
type migrateLogger struct {
	logger *slog.Logger
}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf("[migrate] "+format, v...))
}

func (l *migrateLogger) Verbose() bool {
	return false
}

// Create inserts rec as a queued job. ID, BeforePath and AfterPath are
// required.
func (s *Store) Create(ctx context.Context, rec Record) error {
	if rec.ID == "" || rec.BeforePath == "" || rec.AfterPath == "" {
		return fmt.Errorf("record needs id, before_path and after_path")
	}
	now := s.now().UnixMilli()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO detections (id, aoi_id, before_path, after_path, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.AOIID, rec.BeforePath, rec.AfterPath, StatusQueued, now, now)
	if err != nil {
		return fmt.Errorf("failed to insert record %s: %w", rec.ID, err)
	}
	return nil
}

// MarkRunning sets a job running at the given pipeline stage.
func (s *Store) MarkRunning(ctx context.Context, id, stage string) error {
	return s.update(ctx, id, `
		UPDATE detections SET status = ?, stage = ?, updated_at = ? WHERE id = ?`,
		StatusRunning, stage, s.now().UnixMilli(), id)
}

// Complete stores the result of a finished job.
func (s *Store) Complete(ctx context.Context, id, mode string, changePercentage float64, result []byte) error {
	now := s.now().UnixMilli()
	return s.update(ctx, id, `
		UPDATE detections
		SET status = ?, stage = 'done', mode = ?, change_percentage = ?, result = ?, error = '',
		    updated_at = ?, completed_at = ?
		WHERE id = ?`,
		StatusCompleted, mode, changePercentage, string(result), now, now, id)
}

// Fail records the error that ended a job.
func (s *Store) Fail(ctx context.Context, id, errText string) error {
	now := s.now().UnixMilli()
	return s.update(ctx, id, `
		UPDATE detections SET status = ?, error = ?, updated_at = ?, completed_at = ? WHERE id = ?`,
		StatusFailed, errText, now, now, id)
}

func (s *Store) update(ctx context.Context, id, query string, args ...interface{}) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update record %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update record %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

const selectColumns = `
	SELECT id, aoi_id, before_path, after_path, mode, status, stage, change_percentage,
	       result, error, created_at, updated_at, completed_at
	FROM detections`

// Get returns the record with the given id.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record %s: %w", id, err)
	}
	return rec, nil
}

// ListByAOI returns the most recent records for an AOI, newest first. A
// limit <= 0 returns all of them.
func (s *Store) ListByAOI(ctx context.Context, aoiID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		selectColumns+` WHERE aoi_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`, aoiID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to read record: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(sc scanner) (*Record, error) {
	var (
		rec              Record
		status           string
		pct              sql.NullFloat64
		result           sql.NullString
		created, updated int64
		completed        sql.NullInt64
	)
	err := sc.Scan(&rec.ID, &rec.AOIID, &rec.BeforePath, &rec.AfterPath, &rec.Mode, &status, &rec.Stage,
		&pct, &result, &rec.Error, &created, &updated, &completed)
	if err != nil {
		return nil, err
	}
	rec.Status = Status(status)
	if pct.Valid {
		v := pct.Float64
		rec.ChangePercentage = &v
	}
	if result.Valid {
		rec.Result = []byte(result.String)
	}
	rec.CreatedAt = time.UnixMilli(created).UTC()
	rec.UpdatedAt = time.UnixMilli(updated).UTC()
	if completed.Valid {
		t := time.UnixMilli(completed.Int64).UTC()
		rec.CompletedAt = &t
	}
	return &rec, nil
}
