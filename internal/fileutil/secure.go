// Package fileutil provides file helpers for config files and downloads.
// Owner-only modes (perm & 0077 == 0) are enforced by the mode bits on
// Unix; on Windows a DACL restricting access to the current user is added.
// DACL failures are logged and do not fail the operation.
package fileutil

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// isOwnerOnly returns true if the permission mode grants nothing to group or other.
func isOwnerOnly(perm os.FileMode) bool {
	return perm&0077 == 0
}

func restrict(path string, perm os.FileMode) {
	if !isOwnerOnly(perm) {
		return
	}
	if err := restrictToCurrentUser(path); err != nil {
		slog.Warn("fileutil: best-effort DACL failed", "path", path, "err", err)
	}
}

// SecureWriteFile replaces the named file with data. The data is written
// to a temporary file in the same directory and renamed into place, so
// readers never see a partial file. The parent directory must exist.
func SecureWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if err := tmp.Chmod(perm); err != nil {
		cleanup()
		return fmt.Errorf("fileutil: chmod %s: %w", tmpName, err)
	}
	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	restrict(path, perm)
	return nil
}

// SecureMkdirAll creates a directory path and all parents that do not yet
// exist. For owner-only modes every directory it created is restricted.
func SecureMkdirAll(path string, perm os.FileMode) error {
	// Determine which directories already exist before creating.
	var created []string
	if isOwnerOnly(perm) {
		p := filepath.Clean(path)
		for p != "" && p != "." && p != string(filepath.Separator) {
			if _, err := os.Stat(p); err == nil {
				break
			}
			created = append(created, p)
			parent := filepath.Dir(p)
			if parent == p {
				break
			}
			p = parent
		}
	}

	if err := os.MkdirAll(path, perm); err != nil {
		return err
	}
	for _, dir := range created {
		restrict(dir, perm)
	}
	return nil
}

// SecureOpenFile opens the named file with the specified flag and
// permissions. Files opened with O_CREATE and an owner-only mode are
// restricted.
func SecureOpenFile(path string, flag int, perm os.FileMode) (*os.File, error) {
	f, err := os.OpenFile(path, flag, perm)
	if err != nil {
		return nil, err
	}
	if flag&os.O_CREATE != 0 {
		restrict(path, perm)
	}
	return f, nil
}
