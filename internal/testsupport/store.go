package testsupport

import (
	"context"
	"testing"

	"montage/internal/config"
	"montage/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewProject inserts a draft project with the given id for tests.
func NewProject(t testing.TB, st *store.Store, id string) *store.Project {
	t.Helper()

	project := &store.Project{ID: id, Name: "Project " + id}
	if err := st.InsertProject(context.Background(), project); err != nil {
		t.Fatalf("store.InsertProject: %v", err)
	}
	return project
}

// NewTrack registers a track row with the given duration for tests.
func NewTrack(t testing.TB, st *store.Store, projectID, filename string, seconds float64) *store.Track {
	t.Helper()

	track := &store.Track{
		ProjectID:       projectID,
		Filename:        filename,
		FileRef:         "projects/" + projectID + "/audio/" + filename,
		DurationSeconds: seconds,
	}
	if err := st.InsertTrack(context.Background(), track); err != nil {
		t.Fatalf("store.InsertTrack: %v", err)
	}
	return track
}

// NewImage inserts an image row in the requested status for tests.
func NewImage(t testing.TB, st *store.Store, projectID string, status store.ImageStatus) *store.Image {
	t.Helper()

	image := &store.Image{
		ProjectID: projectID,
		Prompt:    "test prompt",
		Service:   "placeholder",
		Status:    status,
	}
	if status != store.ImageRejected {
		image.FileRef = "test/" + projectID + ".png"
	}
	if err := st.InsertImage(context.Background(), image); err != nil {
		t.Fatalf("store.InsertImage: %v", err)
	}
	return image
}
