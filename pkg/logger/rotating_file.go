package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const (
	defaultMaxBytes       = 5 * 1024 * 1024
	defaultBackupCount    = 5
	defaultRetentionDays  = 5
)

// RotatingFile is an io.Writer that rotates to a fresh numbered backup once
// the current file exceeds maxBytes, keeping at most backupCount old files,
// the same byte-cap/backup-count contract as Python's RotatingFileHandler
// (original_source/sis_scraper/logging_config.py's init_logging).
type RotatingFile struct {
	dir         string
	base        string
	maxBytes    int64
	backupCount int

	file *os.File
	size int64
}

// NewRotatingFile creates (or appends to) a log file under dir named for the
// current time to the second,
// pruning files older than the retention window and preparing rotation.
// maxBytes <= 0 and backups <= 0 fall back to the original's defaults.
func NewRotatingFile(dir string, maxBytes int64, backups int) (*RotatingFile, error) {
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	if backups <= 0 {
		backups = defaultBackupCount
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	pruneOldLogs(dir, defaultRetentionDays)

	base := time.Now().Format("2006.01.02 15.04.05") + ".log"
	path := filepath.Join(dir, base)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	return &RotatingFile{
		dir:         dir,
		base:        base,
		maxBytes:    maxBytes,
		backupCount: backups,
		file:        f,
		size:        info.Size(),
	}, nil
}

// Write implements io.Writer, rotating before a write would exceed maxBytes.
func (r *RotatingFile) Write(p []byte) (int, error) {
	if r.size+int64(len(p)) > r.maxBytes {
		if err := r.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := r.file.Write(p)
	r.size += int64(n)
	return n, err
}

// rotate shifts backup files up one index (base.N -> base.N+1, dropping
// anything past backupCount) and truncates the live file.
func (r *RotatingFile) rotate() error {
	if err := r.file.Close(); err != nil {
		return err
	}

	path := filepath.Join(r.dir, r.base)
	for i := r.backupCount - 1; i >= 1; i-- {
		src := fmt.Sprintf("%s.%d", path, i)
		dst := fmt.Sprintf("%s.%d", path, i+1)
		if _, err := os.Stat(src); err == nil {
			os.Rename(src, dst)
		}
	}
	if _, err := os.Stat(path); err == nil {
		os.Rename(path, path+".1")
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	r.file = f
	r.size = 0
	return nil
}

// Close closes the underlying file.
func (r *RotatingFile) Close() error {
	return r.file.Close()
}

func pruneOldLogs(dir string, retentionDays int) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	for _, name := range names {
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(path)
		}
	}
}
