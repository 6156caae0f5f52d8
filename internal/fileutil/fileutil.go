package fileutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// RequireRegularFile returns an error unless path names a regular file.
// Missing files report an error satisfying os.IsNotExist.
func RequireRegularFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", path)
	}
	return nil
}

// Spooled is a temp file holding generated content. Close removes it.
type Spooled struct {
	*os.File
	Size int64
}

// Close closes and removes the spool file.
func (s *Spooled) Close() error {
	if s == nil || s.File == nil {
		return nil
	}
	name := s.Name()
	closeErr := s.File.Close()
	removeErr := os.Remove(name)
	if errors.Is(removeErr, os.ErrNotExist) {
		removeErr = nil
	}
	return errors.Join(closeErr, removeErr)
}

// Spool writes generated content to a temp file in dir (os.TempDir when
// empty) and rewinds it for reading.
func Spool(dir, pattern string, write func(io.Writer) error) (*Spooled, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, fmt.Errorf("create spool file: %w", err)
	}
	spooled := &Spooled{File: f}
	if err := write(f); err != nil {
		_ = spooled.Close()
		return nil, err
	}
	size, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		_ = spooled.Close()
		return nil, fmt.Errorf("spool size: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		_ = spooled.Close()
		return nil, fmt.Errorf("rewind spool: %w", err)
	}
	spooled.Size = size
	return spooled, nil
}

// WriteFileAtomic streams r into dst through a temp file in the same
// directory, syncing before the rename. It returns the bytes written.
func WriteFileAtomic(dst string, r io.Reader, mode os.FileMode) (int64, error) {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	written, err := io.Copy(tmp, r)
	if err != nil {
		return written, err
	}
	if err := tmp.Chmod(mode); err != nil {
		return written, err
	}
	if err := tmp.Sync(); err != nil {
		return written, err
	}
	if err := tmp.Close(); err != nil {
		return written, err
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return written, err
	}
	committed = true
	return written, nil
}
