package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"montage/internal/services"
)

// ErrProjectExists is returned when a project id is already taken.
var ErrProjectExists = fmt.Errorf("%w: project already exists", services.ErrConflict)

const projectColumns = "id, name, status, created_at, updated_at"

func scanProject(scanner interface{ Scan(dest ...any) error }) (*Project, error) {
	var (
		project    Project
		statusStr  string
		createdRaw sql.NullString
		updatedRaw sql.NullString
	)
	if err := scanner.Scan(&project.ID, &project.Name, &statusStr, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	project.Status = ProjectStatus(statusStr)
	if created, err := parseTimeString(createdRaw.String); err == nil {
		project.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		project.UpdatedAt = updated
	}
	return &project, nil
}

// InsertProject persists a new project, assigning an ID when absent and
// defaulting the status to draft.
func (s *Store) InsertProject(ctx context.Context, project *Project) error {
	if project == nil {
		return errors.New("project is nil")
	}
	if strings.TrimSpace(project.Name) == "" {
		return errors.New("project name is required")
	}
	if project.ID == "" {
		project.ID = newID()
	}
	if project.Status == "" {
		project.Status = ProjectDraft
	}
	created := time.Now().UTC()
	project.CreatedAt = created
	project.UpdatedAt = created
	if _, err := s.execWithRetry(
		ctx,
		`INSERT INTO projects (id, name, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		project.ID,
		project.Name,
		project.Status,
		formatTime(created),
		formatTime(created),
	); err != nil {
		if isUniqueViolation(err) {
			return ErrProjectExists
		}
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

// GetProject fetches a project by identifier. Missing projects return (nil, nil).
func (s *Store) GetProject(ctx context.Context, id string) (*Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	project, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return project, nil
}

// ListProjects returns every project, oldest first.
func (s *Store) ListProjects(ctx context.Context) ([]*Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()
	var projects []*Project
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, project)
	}
	return projects, rows.Err()
}

// UpdateProject changes a project's name and status. Empty values keep the
// current ones. A missing project returns (nil, nil).
func (s *Store) UpdateProject(ctx context.Context, id, name string, status ProjectStatus) (*Project, error) {
	if _, err := s.execWithRetry(
		ctx,
		`UPDATE projects SET name = COALESCE(?, name), status = COALESCE(?, status), updated_at = ? WHERE id = ?`,
		nullableString(strings.TrimSpace(name)),
		nullableString(string(status)),
		now(),
		id,
	); err != nil {
		return nil, fmt.Errorf("update project: %w", err)
	}
	return s.GetProject(ctx, id)
}

// DeleteProject removes a project together with its tracks, images and jobs
// in one transaction and returns the asset keys those records referenced.
// It returns ErrActiveJobExists while the project has a queued or running
// job, and found=false when the project does not exist.
func (s *Store) DeleteProject(ctx context.Context, id string) (refs []string, found bool, err error) {
	ctx = ensureContext(ctx)
	err = retryOnBusy(ctx, func() error {
		refs, found = nil, false
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM projects WHERE id = ?`, id).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return nil
		}
		found = true

		var active int
		if err := tx.QueryRowContext(
			ctx,
			`SELECT COUNT(1) FROM jobs WHERE project_id = ? AND status IN (?, ?)`,
			id,
			JobQueued,
			JobRunning,
		).Scan(&active); err != nil {
			return err
		}
		if active > 0 {
			return ErrActiveJobExists
		}

		rows, err := tx.QueryContext(
			ctx,
			`SELECT file_ref FROM tracks WHERE project_id = ?
             UNION ALL SELECT file_ref FROM images WHERE project_id = ? AND file_ref IS NOT NULL AND file_ref != ''
             UNION ALL SELECT result_ref FROM jobs WHERE project_id = ? AND result_ref IS NOT NULL AND result_ref != ''`,
			id,
			id,
			id,
		)
		if err != nil {
			return err
		}
		for rows.Next() {
			var ref string
			if err := rows.Scan(&ref); err != nil {
				rows.Close()
				return err
			}
			refs = append(refs, ref)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, table := range []string{"tracks", "images", "jobs"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE project_id = ?`, id); err != nil {
				return fmt.Errorf("delete %s: %w", table, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		if errors.Is(err, ErrActiveJobExists) {
			return nil, true, err
		}
		return nil, false, fmt.Errorf("delete project: %w", err)
	}
	return refs, found, nil
}
