package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/minuteswatch/internal/minutes"
)

const runColumns = `id::text, status, trigger, submitted_at, started_at, finished_at, error_text,
	documents_seen, documents_processed, documents_skipped, documents_failed, mentions_found`

const terminalStatuses = `('succeeded', 'failed', 'canceled')`

// CreateRun inserts a queued run.
func (s *Store) CreateRun(ctx context.Context, run minutes.Run) error {
	status := run.Status
	if status == "" {
		status = minutes.RunStatusQueued
	}
	_, err := s.db.Exec(ctx, `
INSERT INTO scrape_runs (id, status, trigger, submitted_at)
VALUES ($1, $2, $3, $4)`, run.ID, string(status), string(run.Trigger), run.Submitted)
	if err != nil {
		return mapErr("create run", err)
	}
	return nil
}

// UpdateRun records a status transition and the latest counters. The first
// transition to running stamps started_at; terminal statuses stamp finished_at.
func (s *Store) UpdateRun(
	ctx context.Context,
	id string,
	status minutes.RunStatus,
	errText string,
	c minutes.RunCounters,
) error {
	tag, err := s.db.Exec(ctx, `
UPDATE scrape_runs SET
	status = $2,
	error_text = $3,
	documents_seen = $4,
	documents_processed = $5,
	documents_skipped = $6,
	documents_failed = $7,
	mentions_found = $8,
	started_at = CASE WHEN $2 = 'running' AND started_at IS NULL THEN now() ELSE started_at END,
	finished_at = CASE WHEN $2 IN `+terminalStatuses+` THEN now() ELSE finished_at END
WHERE id = $1`,
		id, string(status), errText,
		c.DocumentsSeen, c.DocumentsProcessed, c.DocumentsSkipped, c.DocumentsFailed, c.MentionsFound,
	)
	if err != nil {
		return mapErr("update run", err)
	}
	return expectOne("update run", tag)
}

// GetRun loads one run.
func (s *Store) GetRun(ctx context.Context, id string) (minutes.Run, error) {
	run, err := scanRun(s.db.QueryRow(ctx, `SELECT `+runColumns+` FROM scrape_runs WHERE id = $1`, id))
	if err != nil {
		return minutes.Run{}, mapErr("get run", err)
	}
	return run, nil
}

// LatestRun returns the most recently submitted run.
func (s *Store) LatestRun(ctx context.Context) (minutes.Run, error) {
	run, err := scanRun(s.db.QueryRow(ctx, `SELECT `+runColumns+` FROM scrape_runs ORDER BY submitted_at DESC LIMIT 1`))
	if err != nil {
		return minutes.Run{}, mapErr("latest run", err)
	}
	return run, nil
}

// CountRunsBefore counts finished runs submitted before the cutoff.
func (s *Store) CountRunsBefore(ctx context.Context, before time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx,
		`SELECT count(*) FROM scrape_runs WHERE submitted_at < $1 AND status IN `+terminalStatuses, before,
	).Scan(&n)
	if err != nil {
		return 0, mapErr("count old runs", err)
	}
	return n, nil
}

// DeleteRunsBefore deletes finished runs submitted before the cutoff.
func (s *Store) DeleteRunsBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM scrape_runs WHERE submitted_at < $1 AND status IN `+terminalStatuses, before)
	if err != nil {
		return 0, mapErr("delete old runs", err)
	}
	return tag.RowsAffected(), nil
}

func scanRun(row pgx.Row) (minutes.Run, error) {
	var (
		run             minutes.Run
		status, trigger string
	)
	err := row.Scan(
		&run.ID, &status, &trigger, &run.Submitted, &run.Started, &run.Finished, &run.ErrorText,
		&run.Counters.DocumentsSeen, &run.Counters.DocumentsProcessed, &run.Counters.DocumentsSkipped,
		&run.Counters.DocumentsFailed, &run.Counters.MentionsFound,
	)
	if err != nil {
		return minutes.Run{}, err
	}
	run.Status = minutes.RunStatus(status)
	run.Trigger = minutes.RunTrigger(trigger)
	return run, nil
}
