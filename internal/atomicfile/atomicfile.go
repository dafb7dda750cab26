// Package atomicfile moves and writes files so that a destination is either
// fully replaced or left untouched.
package atomicfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Move relocates src to dst, replacing any existing dst. A plain rename is
// tried first; when that fails (typically because src and dst are on
// different filesystems) the content is copied into a temp file next to dst
// which then atomically replaces it, and src is removed.
func Move(src, dst string) error {
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("move %s: %w", src, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create destination dir: %w", err)
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	if err := Write(dst, func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	}); err != nil {
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	_ = in.Close()
	if err := os.Remove(src); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s after copy: %w", src, err)
	}
	return nil
}
