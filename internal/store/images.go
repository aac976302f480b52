package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const imageColumns = "id, project_id, prompt, service, params_json, status, file_ref, content_type, created_at, resolved_at"

func scanImage(scanner interface{ Scan(dest ...any) error }) (*Image, error) {
	var (
		image       Image
		paramsRaw   sql.NullString
		statusStr   string
		fileRef     sql.NullString
		contentType sql.NullString
		createdRaw  sql.NullString
		resolvedRaw sql.NullString
	)
	if err := scanner.Scan(
		&image.ID,
		&image.ProjectID,
		&image.Prompt,
		&image.Service,
		&paramsRaw,
		&statusStr,
		&fileRef,
		&contentType,
		&createdRaw,
		&resolvedRaw,
	); err != nil {
		return nil, err
	}
	image.Status = ImageStatus(statusStr)
	image.FileRef = fileRef.String
	image.ContentType = contentType.String
	if paramsRaw.Valid && paramsRaw.String != "" {
		params := map[string]string{}
		if err := json.Unmarshal([]byte(paramsRaw.String), &params); err == nil {
			image.Params = params
		}
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		image.CreatedAt = created
	}
	if resolvedRaw.Valid {
		image.ResolvedAt = parseOptionalTime(resolvedRaw.String)
	}
	return &image, nil
}

// InsertImage persists a new image record in preview state, assigning an ID when absent.
func (s *Store) InsertImage(ctx context.Context, image *Image) error {
	if image == nil {
		return errors.New("image is nil")
	}
	if strings.TrimSpace(image.ProjectID) == "" {
		return errors.New("image project id is required")
	}
	if image.ID == "" {
		image.ID = newID()
	}
	if image.Status == "" {
		image.Status = ImagePreview
	}
	if image.CreatedAt.IsZero() {
		image.CreatedAt = time.Now().UTC()
	}
	var paramsJSON any
	if len(image.Params) > 0 {
		data, err := json.Marshal(image.Params)
		if err != nil {
			return fmt.Errorf("marshal image params: %w", err)
		}
		paramsJSON = string(data)
	}
	if _, err := s.execWithRetry(
		ctx,
		`INSERT INTO images (id, project_id, prompt, service, params_json, status, file_ref, content_type, created_at, resolved_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		image.ID,
		image.ProjectID,
		image.Prompt,
		image.Service,
		paramsJSON,
		image.Status,
		nullableString(image.FileRef),
		nullableString(image.ContentType),
		formatTime(image.CreatedAt),
		nullableTime(image.ResolvedAt),
	); err != nil {
		return fmt.Errorf("insert image: %w", err)
	}
	return nil
}

// GetImage fetches an image by identifier. Missing images return (nil, nil).
func (s *Store) GetImage(ctx context.Context, id string) (*Image, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+imageColumns+` FROM images WHERE id = ?`, id)
	image, err := scanImage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get image: %w", err)
	}
	return image, nil
}

// GetImages fetches images keyed by ID. Identifiers without a row are absent.
func (s *Store) GetImages(ctx context.Context, ids []string) (map[string]*Image, error) {
	result := make(map[string]*Image, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+imageColumns+` FROM images WHERE id IN (`+makePlaceholders(len(ids))+`)`,
		stringArgs(ids)...,
	)
	if err != nil {
		return nil, fmt.Errorf("get images: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		image, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		result[image.ID] = image
	}
	return result, rows.Err()
}

// ListImages returns the project's images in creation order, optionally filtered by status.
func (s *Store) ListImages(ctx context.Context, projectID string, statuses ...ImageStatus) ([]*Image, error) {
	query := `SELECT ` + imageColumns + ` FROM images WHERE project_id = ?`
	args := []any{projectID}
	if len(statuses) > 0 {
		query += ` AND status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY created_at, rowid`
	return s.queryImages(ctx, query, args...)
}

// ListPreviewsBefore returns preview images created before the cutoff.
func (s *Store) ListPreviewsBefore(ctx context.Context, cutoff time.Time) ([]*Image, error) {
	return s.queryImages(
		ctx,
		`SELECT `+imageColumns+` FROM images WHERE status = ? AND created_at < ? ORDER BY created_at, rowid`,
		ImagePreview,
		formatTime(cutoff),
	)
}

func (s *Store) queryImages(ctx context.Context, query string, args ...any) ([]*Image, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	defer rows.Close()
	var images []*Image
	for rows.Next() {
		image, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		images = append(images, image)
	}
	return images, rows.Err()
}

// ApproveImage flips a preview to approved and records its committed file
// location. It reports false when the image was not in preview state.
func (s *Store) ApproveImage(ctx context.Context, id, fileRef string) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE images SET status = ?, file_ref = ?, resolved_at = ? WHERE id = ? AND status = ?`,
		ImageApproved,
		fileRef,
		now(),
		id,
		ImagePreview,
	)
	if err != nil {
		return false, fmt.Errorf("approve image: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// RejectImage flips a preview to rejected and clears its file reference,
// leaving the row as a tombstone. It reports false when the image was not in
// preview state.
func (s *Store) RejectImage(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE images SET status = ?, file_ref = NULL, resolved_at = ? WHERE id = ? AND status = ?`,
		ImageRejected,
		now(),
		id,
		ImagePreview,
	)
	if err != nil {
		return false, fmt.Errorf("reject image: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// DeleteImage removes an image record. It reports whether a row was removed.
func (s *Store) DeleteImage(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM images WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete image: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
