//go:build !windows

package atomicfile

import (
	"fmt"
	"io"

	"github.com/google/renameio/v2"
)

// Write streams fill into a pending file next to path and atomically
// replaces path with it once fill succeeds.
func Write(path string, fill func(w io.Writer) error) error {
	pendingFile, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending file: %w", err)
	}
	defer func() { _ = pendingFile.Cleanup() }()

	if err := fill(pendingFile); err != nil {
		return err
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace %s: %w", path, err)
	}
	return nil
}

// Produce lets an external process write path's replacement. produce gets
// the name of a temp file in path's directory; on success it replaces path.
func Produce(path string, produce func(tmp string) error) error {
	pendingFile, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending file: %w", err)
	}
	defer func() { _ = pendingFile.Cleanup() }()

	if err := produce(pendingFile.Name()); err != nil {
		return err
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace %s: %w", path, err)
	}
	return nil
}
