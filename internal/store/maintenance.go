package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// RecoverInterrupted fails jobs left running by a previous process and
// returns their identifiers so callers can clean up work directories.
func (s *Store) RecoverInterrupted(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM jobs WHERE status = ?`, JobRunning)
	if err != nil {
		return nil, fmt.Errorf("list running jobs: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan running job: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	args := make([]any, 0, len(ids)+6)
	timestamp := now()
	args = append(args, JobFailed, "internal", DaemonStopReason, DaemonStopReason, timestamp, timestamp)
	args = append(args, stringArgs(ids)...)
	args = append(args, JobRunning)
	if _, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET status = ?, error_kind = ?, error_message = ?, message = ?, finished_at = ?, updated_at = ?
         WHERE id IN (`+makePlaceholders(len(ids))+`) AND status = ?`,
		args...,
	); err != nil {
		return nil, fmt.Errorf("recover interrupted jobs: %w", err)
	}
	return ids, nil
}

// Stats returns record counts grouped by status.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{
		Images: make(map[ImageStatus]int),
		Jobs:   make(map[JobStatus]int),
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM projects`).Scan(&stats.Projects); err != nil {
		return stats, fmt.Errorf("count projects: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM tracks`).Scan(&stats.Tracks); err != nil {
		return stats, fmt.Errorf("count tracks: %w", err)
	}

	imageRows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM images GROUP BY status`)
	if err != nil {
		return stats, fmt.Errorf("image stats: %w", err)
	}
	for imageRows.Next() {
		var status ImageStatus
		var count int
		if err := imageRows.Scan(&status, &count); err != nil {
			imageRows.Close()
			return stats, err
		}
		stats.Images[status] = count
	}
	imageRows.Close()

	jobRows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return stats, fmt.Errorf("job stats: %w", err)
	}
	defer jobRows.Close()
	for jobRows.Next() {
		var status JobStatus
		var count int
		if err := jobRows.Scan(&status, &count); err != nil {
			return stats, err
		}
		stats.Jobs[status] = count
	}
	return stats, jobRows.Err()
}

// DatabaseHealth captures diagnostic information about the database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	IntegrityCheck   bool
	Error            string
}

// CheckHealth returns diagnostic information about the database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}
	if s.path == "" {
		return health, errors.New("database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return health, nil
		}
		return health, fmt.Errorf("stat database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping database: %w", err)
	}
	health.DatabaseReadable = true

	if err := s.db.QueryRowContext(connCtx, "PRAGMA user_version").Scan(&health.SchemaVersion); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("read schema version: %w", err)
	}

	var integrityResult string
	if err := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&integrityResult); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrityResult, "ok")
	return health, nil
}
