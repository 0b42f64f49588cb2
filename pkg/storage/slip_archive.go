package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SlipArchive persists rendered putaway slips on disk under a base directory
// so they can be re-downloaded after the completion response was consumed.
type SlipArchive struct {
	baseDir string
}

// NewSlipArchive ensures the base directory exists and returns a handle.
func NewSlipArchive(baseDir string) (*SlipArchive, error) {
	if baseDir == "" {
		baseDir = "./slips"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create slip directory: %w", err)
	}
	return &SlipArchive{baseDir: baseDir}, nil
}

// Save writes the given bytes to the provided relative path under the base dir.
func (s *SlipArchive) Save(filename string, data []byte) (string, error) {
	path := s.resolve(filename)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("prepare slip directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write slip file: %w", err)
	}
	return filename, nil
}

// Open returns a read-only handle for an archived slip.
func (s *SlipArchive) Open(filename string) (*os.File, error) {
	path := s.resolve(filename)
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open slip file: %w", err)
	}
	return file, nil
}

// Delete removes an archived slip if present.
func (s *SlipArchive) Delete(filename string) error {
	path := s.resolve(filename)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete slip file: %w", err)
	}
	return nil
}

// CleanupOlderThan removes slips older than the provided TTL and returns
// the deleted names.
func (s *SlipArchive) CleanupOlderThan(ttl time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-ttl)
	deleted := make([]string, 0)
	err := filepath.WalkDir(s.baseDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().After(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		rel, err := filepath.Rel(s.baseDir, path)
		if err != nil {
			rel = path
		}
		deleted = append(deleted, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cleanup slips: %w", err)
	}
	return deleted, nil
}

func (s *SlipArchive) resolve(filename string) string {
	if filepath.IsAbs(filename) {
		return filename
	}
	return filepath.Join(s.baseDir, filename)
}
