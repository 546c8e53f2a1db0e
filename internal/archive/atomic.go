package archive

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/jiji14/e-mission-server/internal/contract"
)

// writeAtomic writes path through a temp file in the same directory.
// The target only appears once its content is synced; on any error the temp file is removed.
// Errors from write are returned as is; file system failures become ArchiveIOError.
func writeAtomic(path string, write func(w io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &contract.ArchiveIOError{Path: path, Err: err}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return &contract.ArchiveIOError{Path: path, Err: err}
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if err := write(tmp); err != nil {
		var se *contract.SerializationError
		if errors.As(err, &se) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return &contract.ArchiveIOError{Path: path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		return &contract.ArchiveIOError{Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &contract.ArchiveIOError{Path: path, Err: err}
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return &contract.ArchiveIOError{Path: path, Err: err}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return &contract.ArchiveIOError{Path: path, Err: err}
	}
	return syncDir(dir)
}

// syncDir flushes a directory entry so a rename survives a crash.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return &contract.ArchiveIOError{Path: dir, Err: err}
	}
	defer func() { _ = d.Close() }()
	if err := d.Sync(); err != nil {
		return &contract.ArchiveIOError{Path: dir, Err: err}
	}
	return nil
}
