package store

import (
	"context"
	"fmt"
	"time"

	"driftwatch/internal/conflict"
	"driftwatch/internal/logging"

	"github.com/google/uuid"
)

// ResolutionRecord is one logged resolution attempt.
type ResolutionRecord struct {
	ID         string
	ProjectID  string
	Path       string
	Strategy   string
	Success    bool
	Error      string
	Discarded  bool
	ResolvedAt time.Time
}

// RecordResolution appends a resolution outcome to the log. It satisfies
// conflict.ResolutionRecorder.
func (s *BaselineStore) RecordResolution(ctx context.Context, projectID string, r conflict.Result) error {
	strategy := ""
	if r.Strategy != nil {
		strategy = r.Strategy.String()
	}
	id := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO resolutions (id, project_id, path, strategy, success, error, discarded, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, projectID, r.Path, strategy, boolInt(r.Success), r.Error, boolInt(r.Discarded), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("record resolution of %s: %w", r.Path, err)
	}
	logging.StoreDebug("Recorded resolution %s: %s %s success=%v", id, r.Path, strategy, r.Success)
	return nil
}

// Resolutions returns the project's resolution log, newest first. limit <= 0
// returns everything.
func (s *BaselineStore) Resolutions(ctx context.Context, projectID string, limit int) ([]ResolutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, project_id, path, strategy, success, error, discarded, resolved_at
		FROM resolutions WHERE project_id = ? ORDER BY rowid DESC`
	args := []any{projectID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query resolutions: %w", err)
	}
	defer rows.Close()

	var out []ResolutionRecord
	for rows.Next() {
		var r ResolutionRecord
		var success, discarded int
		var resolvedAt string
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.Path, &r.Strategy, &success, &r.Error, &discarded, &resolvedAt); err != nil {
			return nil, fmt.Errorf("scan resolution: %w", err)
		}
		r.Success = success != 0
		r.Discarded = discarded != 0
		r.ResolvedAt = parseTime(resolvedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
