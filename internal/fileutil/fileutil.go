// Package fileutil holds small file helpers shared by the asset store and
// the render pipeline.
package fileutil

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
)

// WriteAtomic writes r to path through a temp file in the same directory and
// renames it into place, so readers never observe a partial file.
func WriteAtomic(path string, r io.Reader, mode os.FileMode) (n int64, err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if n, err = io.Copy(tmp, r); err != nil {
		return 0, fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return 0, fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Chmod(mode); err != nil {
		return 0, fmt.Errorf("chmod temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return 0, fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("rename into place: %w", err)
	}
	return n, nil
}

// MoveFile renames src to dst, creating dst's directory. When the rename
// crosses filesystems it falls back to a verified copy followed by removal
// of src.
func MoveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	err := os.Rename(src, dst)
	if err == nil || !errors.Is(err, syscall.EXDEV) {
		return err
	}
	if err := CopyVerified(src, dst); err != nil {
		return fmt.Errorf("cross-device copy: %w", err)
	}
	return os.Remove(src)
}

// CopyVerified copies src to dst and checks that the bytes written hash to
// the same SHA-256 as the bytes read. dst is removed when they differ.
func CopyVerified(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	readSum, wroteSum := sha256.New(), sha256.New()
	if _, err := WriteAtomic(dst, io.TeeReader(in, readSum), 0o644); err != nil {
		return err
	}

	out, err := os.Open(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(wroteSum, out); err != nil {
		return fmt.Errorf("re-read copy: %w", err)
	}
	if !bytes.Equal(readSum.Sum(nil), wroteSum.Sum(nil)) {
		_ = os.Remove(dst)
		return errors.New("copy hash mismatch: destination differs from source")
	}
	return nil
}
