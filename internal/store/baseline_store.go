// Package store persists generated-file baselines and the resolution log in
// SQLite.
//
// A baseline is the hash (and, when retained, the content) of a file as it
// was last generated or last accepted by the user. The conflict engine
// compares the workspace against these baselines.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"driftwatch/internal/conflict"
	"driftwatch/internal/logging"

	_ "modernc.org/sqlite"
)

// ErrNotTracked is returned for paths without a baseline.
var ErrNotTracked = errors.New("path is not tracked")

// BaselineStore is the SQLite-backed record of generated files.
type BaselineStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// NewBaselineStore opens (creating if needed) the database at path.
// ":memory:" gives a private in-memory store.
func NewBaselineStore(path string) (*BaselineStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewBaselineStore")
	defer timer.Stop()

	logging.Store("Opening baseline store at %s", path)

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			logging.Get(logging.CategoryStore).Error("Failed to create directory %s: %v", dir, err)
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to open database at %s: %v", path, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}

	s := &BaselineStore{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to initialize schema: %v", err)
		db.Close()
		return nil, err
	}
	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	logging.Store("Baseline store ready (schema v%d)", GetSchemaVersion(db))
	return s, nil
}

func (s *BaselineStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS generated_files (
		project_id TEXT NOT NULL,
		path TEXT NOT NULL,
		original_hash TEXT NOT NULL,
		original_content TEXT,
		generated_at TEXT NOT NULL,
		feature_id TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (project_id, path)
	);

	CREATE TABLE IF NOT EXISTS resolutions (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		path TEXT NOT NULL,
		strategy TEXT NOT NULL,
		success INTEGER NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		resolved_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_resolutions_project ON resolutions(project_id, resolved_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *BaselineStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// DB exposes the handle for maintenance tooling and tests.
func (s *BaselineStore) DB() *sql.DB {
	return s.db
}

// TrackGenerated records f as freshly generated, replacing any existing
// baseline for the path.
func (s *BaselineStore) TrackGenerated(ctx context.Context, projectID string, f conflict.TrackedFile) error {
	if f.Path == "" || f.OriginalHash == "" {
		return fmt.Errorf("track %q: path and hash are required", f.Path)
	}
	generatedAt := f.GeneratedAt
	if generatedAt.IsZero() {
		generatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO generated_files (project_id, path, original_hash, original_content, generated_at, feature_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, path) DO UPDATE SET
			original_hash = excluded.original_hash,
			original_content = excluded.original_content,
			generated_at = excluded.generated_at,
			feature_id = excluded.feature_id,
			accepted_at = NULL`,
		projectID, f.Path, f.OriginalHash, nullString(f.OriginalContent), formatTime(generatedAt), f.FeatureID)
	if err != nil {
		return fmt.Errorf("track %s: %w", f.Path, err)
	}
	logging.StoreDebug("Tracked %s/%s (%s)", projectID, f.Path, f.OriginalHash)
	return nil
}

// ListTracked returns every baseline of the project ordered by path.
func (s *BaselineStore) ListTracked(ctx context.Context, projectID string) ([]conflict.TrackedFile, error) {
	timer := logging.StartTimer(logging.CategoryStore, "ListTracked")
	defer timer.Stop()

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT path, original_hash, original_content, generated_at, feature_id
		FROM generated_files WHERE project_id = ? ORDER BY path`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list tracked files: %w", err)
	}
	defer rows.Close()

	var files []conflict.TrackedFile
	for rows.Next() {
		f, err := scanTracked(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tracked files: %w", err)
	}
	return files, nil
}

// Baseline returns the baseline of one path, or ErrNotTracked.
func (s *BaselineStore) Baseline(ctx context.Context, projectID, path string) (conflict.TrackedFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT path, original_hash, original_content, generated_at, feature_id
		FROM generated_files WHERE project_id = ? AND path = ?`, projectID, path)
	f, err := scanTracked(row)
	if errors.Is(err, sql.ErrNoRows) {
		return conflict.TrackedFile{}, fmt.Errorf("%s: %w", path, ErrNotTracked)
	}
	return f, err
}

// UpdateBaseline replaces the baseline hash and content of a tracked path
// with the user's accepted version. Generation metadata is kept.
func (s *BaselineStore) UpdateBaseline(ctx context.Context, projectID, path, hash string, content *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE generated_files SET original_hash = ?, original_content = ?, accepted_at = ?
		WHERE project_id = ? AND path = ?`,
		hash, nullString(content), formatTime(time.Now()), projectID, path)
	if err != nil {
		return fmt.Errorf("update baseline of %s: %w", path, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update baseline of %s: %w", path, ErrNotTracked)
	}
	logging.StoreDebug("Baseline of %s/%s is now %s", projectID, path, hash)
	return nil
}

// DropBaseline stops tracking path. Dropping an untracked path is a no-op.
func (s *BaselineStore) DropBaseline(ctx context.Context, projectID, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM generated_files WHERE project_id = ? AND path = ?`, projectID, path); err != nil {
		return fmt.Errorf("drop baseline of %s: %w", path, err)
	}
	logging.StoreDebug("Dropped baseline of %s/%s", projectID, path)
	return nil
}

// GetStats returns row counts per table.
func (s *BaselineStore) GetStats(ctx context.Context) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]int64)
	for _, table := range []string{"generated_files", "resolutions"} {
		var n int64
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		stats[table] = n
	}
	return stats, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTracked(sc scanner) (conflict.TrackedFile, error) {
	var f conflict.TrackedFile
	var content sql.NullString
	var generatedAt string
	if err := sc.Scan(&f.Path, &f.OriginalHash, &content, &generatedAt, &f.FeatureID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return f, err
		}
		return f, fmt.Errorf("scan tracked file: %w", err)
	}
	if content.Valid {
		c := content.String
		f.OriginalContent = &c
	}
	f.GeneratedAt = parseTime(generatedAt)
	return f, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		logging.StoreDebug("Unparseable timestamp %q: %v", s, err)
		return time.Time{}
	}
	return t
}
