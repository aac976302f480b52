package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const trackColumns = "id, project_id, filename, file_ref, duration_seconds, created_at"

func scanTrack(scanner interface{ Scan(dest ...any) error }) (*Track, error) {
	var (
		track      Track
		createdRaw sql.NullString
	)
	if err := scanner.Scan(
		&track.ID,
		&track.ProjectID,
		&track.Filename,
		&track.FileRef,
		&track.DurationSeconds,
		&createdRaw,
	); err != nil {
		return nil, err
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		track.CreatedAt = created
	}
	return &track, nil
}

// InsertTrack persists a new audio track, assigning an ID when absent.
func (s *Store) InsertTrack(ctx context.Context, track *Track) error {
	if track == nil {
		return errors.New("track is nil")
	}
	if strings.TrimSpace(track.ProjectID) == "" {
		return errors.New("track project id is required")
	}
	if track.DurationSeconds <= 0 {
		return fmt.Errorf("track duration must be positive, got %v", track.DurationSeconds)
	}
	if track.ID == "" {
		track.ID = newID()
	}
	if track.CreatedAt.IsZero() {
		track.CreatedAt = time.Now().UTC()
	}
	if _, err := s.execWithRetry(
		ctx,
		`INSERT INTO tracks (id, project_id, filename, file_ref, duration_seconds, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		track.ID,
		track.ProjectID,
		track.Filename,
		track.FileRef,
		track.DurationSeconds,
		formatTime(track.CreatedAt),
	); err != nil {
		return fmt.Errorf("insert track: %w", err)
	}
	return nil
}

// GetTrack fetches a track by identifier. Missing tracks return (nil, nil).
func (s *Store) GetTrack(ctx context.Context, id string) (*Track, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+trackColumns+` FROM tracks WHERE id = ?`, id)
	track, err := scanTrack(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get track: %w", err)
	}
	return track, nil
}

// GetTracks fetches the tracks with the given identifiers keyed by ID.
// Identifiers without a row are absent from the result.
func (s *Store) GetTracks(ctx context.Context, ids []string) (map[string]*Track, error) {
	result := make(map[string]*Track, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+trackColumns+` FROM tracks WHERE id IN (`+makePlaceholders(len(ids))+`)`,
		stringArgs(ids)...,
	)
	if err != nil {
		return nil, fmt.Errorf("get tracks: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("scan track: %w", err)
		}
		result[track.ID] = track
	}
	return result, rows.Err()
}

// ListTracks returns the project's tracks in registration order.
func (s *Store) ListTracks(ctx context.Context, projectID string) ([]*Track, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+trackColumns+` FROM tracks WHERE project_id = ? ORDER BY created_at, rowid`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tracks: %w", err)
	}
	defer rows.Close()
	var tracks []*Track
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("scan track: %w", err)
		}
		tracks = append(tracks, track)
	}
	return tracks, rows.Err()
}

// DeleteTrack removes a track record. It reports whether a row was removed.
func (s *Store) DeleteTrack(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM tracks WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete track: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
