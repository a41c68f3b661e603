package epctx

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileSystem abstracts the file access the loader and writer perform.
// The default implementation is the host filesystem; tests substitute
// spies to assert, for example, that embed-mode loads never touch disk.
type FileSystem interface {
	Stat(name string) (os.FileInfo, error)
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte) error
}

// OSFileSystem is the host filesystem.
type OSFileSystem struct{}

// Stat implements FileSystem.
func (OSFileSystem) Stat(name string) (os.FileInfo, error) { return os.Stat(name) }

// ReadFile implements FileSystem.
//
//nolint:gosec // G304: cache paths are validated by ResolveExternalRef first.
func (OSFileSystem) ReadFile(name string) ([]byte, error) { return os.ReadFile(name) }

// WriteFile writes data through a temp file in the target directory and
// renames it into place, so a failed write never leaves a truncated cache
// file behind.
func (OSFileSystem) WriteFile(name string, data []byte) error {
	dir := filepath.Dir(name)
	tmp, err := os.CreateTemp(dir, filepath.Base(name)+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to create context cache file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write context cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close context cache file: %w", err)
	}
	if err := os.Rename(tmpName, name); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to finalize context cache file: %w", err)
	}
	return nil
}
