package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	. "github.com/roelfdiedericks/voxpaste/internal/logging"
)

// DefaultBackupCount is the default number of backup versions to keep.
const DefaultBackupCount = 3

// AtomicWriteJSON marshals data as indented JSON and writes it atomically.
func AtomicWriteJSON(path string, data any, perm os.FileMode) error {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return AtomicWrite(path, append(jsonData, '\n'), perm)
}

// AtomicWrite writes data to path with temp file + rename, so readers see
// either the old file or the new one.
func AtomicWrite(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// same directory keeps the rename on one filesystem
	tmp, err := os.CreateTemp(dir, ".voxpaste-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp to target: %w", err)
	}
	success = true
	return nil
}

// BackupAndWriteJSON backs up an existing file to path.bak (rotating older
// backups to .bak.1, .bak.2, ...) and then writes data atomically. The file
// holds API keys, so it is written 0600.
func BackupAndWriteJSON(path string, data any, maxBackups int) error {
	if maxBackups <= 0 {
		maxBackups = DefaultBackupCount
	}

	if _, err := os.Stat(path); err == nil {
		rotateBackups(path, maxBackups)
		if err := copyFile(path, path+".bak"); err != nil {
			L_warn("config: backup failed, continuing with save", "error", err)
		}
	}

	if err := AtomicWriteJSON(path, data, 0600); err != nil {
		return err
	}
	L_debug("config: saved", "path", path)
	return nil
}

// rotateBackups shifts .bak -> .bak.1 -> ... and drops the oldest.
func rotateBackups(path string, maxBackups int) {
	if maxBackups <= 1 {
		return
	}
	base := path + ".bak"
	maxIndex := maxBackups - 1

	if err := os.Remove(fmt.Sprintf("%s.%d", base, maxIndex)); err != nil && !os.IsNotExist(err) {
		L_trace("config: failed to remove oldest backup", "error", err)
	}
	for i := maxIndex - 1; i >= 1; i-- {
		src := fmt.Sprintf("%s.%d", base, i)
		if err := os.Rename(src, fmt.Sprintf("%s.%d", base, i+1)); err != nil && !os.IsNotExist(err) {
			L_trace("config: failed to rotate backup", "src", src, "error", err)
		}
	}
	if err := os.Rename(base, base+".1"); err != nil && !os.IsNotExist(err) {
		L_trace("config: failed to rotate .bak", "error", err)
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
