// cache.go
package vsac

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// CacheDecision tells whether a ValueSet can be served from disk. Path is
// the cache file for the OID in both cases.
type CacheDecision struct {
	Hit  bool
	Path string
}

// CachePath returns the cache file for oid in dir.
func CachePath(dir, oid string, format Format) string {
	return filepath.Join(dir, oid+format.extension())
}

// Decide reports a hit when force is unset and a non-empty cache file for
// oid exists that is not older than maxAge. A zero maxAge never expires.
func Decide(dir, oid string, format Format, force bool, maxAge time.Duration, now time.Time) CacheDecision {
	path := CachePath(dir, oid, format)
	if force {
		return CacheDecision{Path: path}
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() || info.Size() == 0 {
		return CacheDecision{Path: path}
	}
	if maxAge > 0 && now.Sub(info.ModTime()) > maxAge {
		return CacheDecision{Path: path}
	}
	return CacheDecision{Hit: true, Path: path}
}

// writeFileAtomic writes data next to path and renames it into place so a
// reader never sees a partial cache entry.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

// checkCacheDir creates dir when needed and verifies files can be written
// to it.
func checkCacheDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return fmt.Errorf("cache directory is not writable: %w", err)
	}
	probe.Close()
	return os.Remove(probe.Name())
}
