// Package assets stores generated images, registered audio and rendered
// videos behind a key/value interface with local filesystem and S3
// implementations.
//
// Keys are slash-separated relative paths such as
// "projects/<project>/images/<id>.png". Writes are atomic: readers observe
// either the previous object or the complete new one.
package assets

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"montage/internal/config"
	"montage/internal/services"
)

// Store is the asset store collaborator used by the approval registry,
// the track library, the project catalog and the render pipeline.
type Store interface {
	// Put writes r under key.
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	// PutFile uploads a local file under key.
	PutFile(ctx context.Context, key, localPath, contentType string) error
	// Fetch downloads key to a local path.
	Fetch(ctx context.Context, key, localPath string) error
	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Move relocates srcKey to dstKey.
	Move(ctx context.Context, srcKey, dstKey string) error
	// URL returns a client-facing location for key.
	URL(key string) string
}

// New builds the configured asset store backend.
func New(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Storage.Backend {
	case config.StorageS3:
		return NewS3(ctx, cfg.Storage)
	case config.StorageLocal, "":
		return NewLocal(cfg.Storage.Root, cfg.Storage.PublicURL)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Storage.Backend)
	}
}

// CleanKey normalizes a key and rejects absolute or escaping paths.
func CleanKey(key string) (string, error) {
	trimmed := strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	if trimmed == "" {
		return "", services.Wrap(services.ErrValidation, "assets", "key", "empty key", nil)
	}
	if strings.HasPrefix(trimmed, "/") {
		return "", services.Wrap(services.ErrValidation, "assets", "key", fmt.Sprintf("absolute key %q", key), nil)
	}
	cleaned := path.Clean(trimmed)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", services.Wrap(services.ErrValidation, "assets", "key", fmt.Sprintf("key %q escapes the store", key), nil)
	}
	return cleaned, nil
}

// PreviewKey is where unapproved images live.
func PreviewKey(imageID, ext string) string {
	return "previews/" + imageID + ext
}

// ImageKey is where approved images are committed.
func ImageKey(projectID, imageID, ext string) string {
	return "projects/" + projectID + "/images/" + imageID + ext
}

// AudioKey is where registered audio tracks are stored.
func AudioKey(projectID, trackID, ext string) string {
	return "projects/" + projectID + "/audio/" + trackID + ext
}

// VideoKey is where rendered videos are committed.
func VideoKey(projectID, name string) string {
	return "projects/" + projectID + "/videos/" + name
}

// ContentTypeForExt maps the file extensions montage writes to MIME types.
func ContentTypeForExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".mp4":
		return "video/mp4"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".m4a":
		return "audio/mp4"
	case ".flac":
		return "audio/flac"
	case ".ogg":
		return "audio/ogg"
	}
	return "application/octet-stream"
}

// ExtForContentType is the inverse of ContentTypeForExt for image types.
func ExtForContentType(contentType string) string {
	switch strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])) {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	}
	return ".png"
}
