package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"montage/internal/fileutil"
	"montage/internal/services"
)

// Local stores assets under a root directory.
type Local struct {
	root      string
	publicURL string
}

// NewLocal creates the root directory if needed.
func NewLocal(root, publicURL string) (*Local, error) {
	if root == "" {
		return nil, errors.New("local asset root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create asset root: %w", err)
	}
	if publicURL == "" {
		publicURL = "/files"
	}
	return &Local{root: root, publicURL: publicURL}, nil
}

// Root returns the directory backing the store.
func (l *Local) Root() string {
	return l.root
}

// Path resolves key to its absolute location on disk.
func (l *Local) Path(key string) (string, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.root, filepath.FromSlash(cleaned)), nil
}

func (l *Local) Put(_ context.Context, key string, r io.Reader, _ string) error {
	target, err := l.Path(key)
	if err != nil {
		return err
	}
	if _, err := fileutil.WriteAtomic(target, r, 0o644); err != nil {
		return services.Wrap(services.ErrResource, "assets", "put", key, err)
	}
	return nil
}

func (l *Local) PutFile(ctx context.Context, key, localPath, contentType string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return services.Wrap(services.ErrResource, "assets", "put file", localPath, err)
	}
	defer src.Close()
	return l.Put(ctx, key, src, contentType)
}

func (l *Local) Fetch(_ context.Context, key, localPath string) error {
	source, err := l.Path(key)
	if err != nil {
		return err
	}
	in, err := os.Open(source)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return services.Wrap(services.ErrNotFound, "assets", "fetch", key, nil)
		}
		return services.Wrap(services.ErrResource, "assets", "fetch", key, err)
	}
	defer in.Close()
	if _, err := fileutil.WriteAtomic(localPath, in, 0o644); err != nil {
		return services.Wrap(services.ErrResource, "assets", "fetch", key, err)
	}
	return nil
}

func (l *Local) Exists(_ context.Context, key string) (bool, error) {
	target, err := l.Path(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, services.Wrap(services.ErrResource, "assets", "stat", key, err)
	}
	return !info.IsDir(), nil
}

func (l *Local) Delete(_ context.Context, key string) error {
	target, err := l.Path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return services.Wrap(services.ErrResource, "assets", "delete", key, err)
	}
	return nil
}

func (l *Local) Move(_ context.Context, srcKey, dstKey string) error {
	src, err := l.Path(srcKey)
	if err != nil {
		return err
	}
	dst, err := l.Path(dstKey)
	if err != nil {
		return err
	}
	if err := fileutil.MoveFile(src, dst); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return services.Wrap(services.ErrNotFound, "assets", "move", srcKey, nil)
		}
		return services.Wrap(services.ErrResource, "assets", "move", srcKey+" -> "+dstKey, err)
	}
	return nil
}

func (l *Local) URL(key string) string {
	return l.publicURL + "/" + key
}
