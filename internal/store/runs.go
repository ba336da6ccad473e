package store

import (
	"context"
	"fmt"
	"time"
)

// ExportRun records one scheduled export attempt.
type ExportRun struct {
	ID         int64
	JobName    string
	FormID     string
	Day        string // MM/DD/YYYY of the exported day
	LeadCount  int
	Path       string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// RecordExportRun appends a run to the log and returns its ID.
func (s *Store) RecordExportRun(ctx context.Context, r ExportRun) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO export_runs (job_name, form_id, day, lead_count, path, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.JobName, r.FormID, r.Day, r.LeadCount, r.Path, r.Error,
		r.StartedAt.UTC().Format(time.RFC3339), r.FinishedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("record export run: %w", err)
	}
	return res.LastInsertId()
}

// RecentExportRuns returns up to limit runs of a job, newest first. An
// empty job name returns runs of every job.
func (s *Store) RecentExportRuns(ctx context.Context, job string, limit int) ([]ExportRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_name, form_id, day, lead_count, path, error, started_at, finished_at
		FROM export_runs
		WHERE ? = '' OR job_name = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?`, job, job, limit)
	if err != nil {
		return nil, fmt.Errorf("list export runs: %w", err)
	}
	defer rows.Close()

	var out []ExportRun
	for rows.Next() {
		var r ExportRun
		var started, finished string
		if err := rows.Scan(&r.ID, &r.JobName, &r.FormID, &r.Day, &r.LeadCount, &r.Path, &r.Error, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan export run: %w", err)
		}
		r.StartedAt = parseTimestamp(started)
		r.FinishedAt = parseTimestamp(finished)
		out = append(out, r)
	}
	return out, rows.Err()
}
