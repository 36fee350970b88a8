// Package filesystem wraps the local music directory operations. Files land
// atomically: bytes stream into a temp file in the destination directory and
// only a successful rename makes them visible under their final name.
package filesystem

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/musicvault/musicvault/internal/constants"
)

func Sanitize(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if strings.ContainsRune(constants.InvalidPathChars, r) {
			return -1
		}
		return r
	}, s)

	return strings.TrimRight(mapped, ". ")
}

func EnsureDir(path string) error {
	return os.MkdirAll(path, constants.DirPermissions)
}

// ListNames returns the plain file names in dir, skipping subdirectories and
// dotfiles.
func ListNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Stat returns file info for path.
func Stat(path string) (os.FileInfo, error) {
	return os.Stat(path)
}

// Remove deletes a file; a missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ProgressFunc receives the running byte count during a streamed write. total
// is -1 when the source length is unknown.
type ProgressFunc func(written, total int64)

// WriteStream streams r into dir/name, replacing any same-named file only
// after the full transfer succeeded. Returns the final path and size.
func WriteStream(dir, name string, r io.Reader, total int64, progress ProgressFunc) (string, int64, error) {
	if err := EnsureDir(dir); err != nil {
		return "", 0, fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	cw := &countingWriter{w: tmp, total: total, progress: progress}
	written, err := io.Copy(cw, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", 0, fmt.Errorf("failed to write %s: %w", name, err)
	}

	finalPath := filepath.Join(dir, Sanitize(name))
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", 0, fmt.Errorf("failed to move %s into place: %w", name, err)
	}
	success = true
	return finalPath, written, nil
}

type countingWriter struct {
	w        io.Writer
	written  int64
	total    int64
	reported int64
	progress ProgressFunc
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.written += int64(n)
	if c.progress != nil && (c.written-c.reported >= constants.ProgressUpdateBytes || err != nil || int64(len(p)) > int64(n)) {
		c.reported = c.written
		c.progress(c.written, c.total)
	}
	return n, err
}
