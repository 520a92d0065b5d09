package store

import (
	"context"
	"encoding/json"
	"time"
)

// Run is one persisted run report.
type Run struct {
	ID         string          `json:"id"`
	Project    string          `json:"project"`
	Mode       string          `json:"mode"`
	Status     string          `json:"status"`
	StartedAt  time.Time       `json:"started_at"`
	DurationMS int64           `json:"duration_ms"`
	Report     json.RawMessage `json:"report,omitempty"`
}

// SaveRun inserts or replaces a run record.
func (s *Store) SaveRun(ctx context.Context, r *Run) error {
	report := string(r.Report)
	if report == "" {
		report = "{}"
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO runs (id, project, mode, status, started_at, duration_ms, report)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status=excluded.status, duration_ms=excluded.duration_ms, report=excluded.report`,
		r.ID, r.Project, r.Mode, r.Status, r.StartedAt.UTC().Format(time.RFC3339Nano), r.DurationMS, report)
	return wrapErr("save run", err)
}

// ListRuns returns a project's most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, project string, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, project, mode, status, started_at, duration_ms, report
		FROM runs WHERE project=? ORDER BY started_at DESC LIMIT ?`, project, limit)
	if err != nil {
		return nil, wrapErr("list runs", err)
	}
	defer rows.Close()
	var result []*Run
	for rows.Next() {
		var r Run
		var started, report string
		if err := rows.Scan(&r.ID, &r.Project, &r.Mode, &r.Status, &started, &r.DurationMS, &report); err != nil {
			return nil, err
		}
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		r.Report = json.RawMessage(report)
		result = append(result, &r)
	}
	return result, rows.Err()
}

// Runs is the run history of one project.
type Runs struct {
	s       *Store
	project string
}

// Runs returns the run history of a project.
func (s *Store) Runs(project string) *Runs {
	return &Runs{s: s, project: project}
}

// Record persists a run report under its id.
func (r *Runs) Record(ctx context.Context, id, mode, status string, started time.Time, took time.Duration, report any) error {
	b, err := json.Marshal(report)
	if err != nil {
		return err
	}
	return r.s.SaveRun(ctx, &Run{
		ID: id, Project: r.project, Mode: mode, Status: status,
		StartedAt: started, DurationMS: took.Milliseconds(), Report: b,
	})
}
