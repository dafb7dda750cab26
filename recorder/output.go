package recorder

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	tempDirPrefix = "screenrec-"
	staleTempAge  = 12 * time.Hour
)

// SaveError reports a recording that was finalized but could not be
// delivered. The footage is kept at TempPath.
type SaveError struct {
	TempPath string
	Err      error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("recording kept at %s: %v", e.TempPath, e.Err)
}

func (e *SaveError) Unwrap() error { return e.Err }

// outputName is "<app>-<ISO 8601 timestamp>.mp4" with the colons replaced,
// since they are not allowed in file names everywhere.
func outputName(app string, t time.Time) string {
	if app == "" {
		app = "Screenrec"
	}
	stamp := strings.ReplaceAll(t.Format("2006-01-02T15:04:05Z07:00"), ":", "-")
	return fmt.Sprintf("%s-%s.mp4", app, stamp)
}

// cleanupStaleTempDirs removes empty recording dirs older than maxAge that
// were left behind by a crash. Dirs that still hold a file are kept: they
// may be the only copy of a recording. Their files are returned as orphans.
func cleanupStaleTempDirs(base string, maxAge time.Duration, now time.Time) (removed int, orphans []string) {
	matches, err := filepath.Glob(filepath.Join(base, tempDirPrefix+"*"))
	if err != nil {
		return 0, nil
	}
	for _, dir := range matches {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() || now.Sub(info.ModTime()) < maxAge {
			continue
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		if len(entries) == 0 {
			if os.Remove(dir) == nil {
				removed++
			}
			continue
		}
		for _, e := range entries {
			if !e.IsDir() {
				orphans = append(orphans, filepath.Join(dir, e.Name()))
			}
		}
	}
	return removed, orphans
}

// uniquePath returns path, or path with a numeric suffix when a file of
// that name already exists.
func uniquePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		p := fmt.Sprintf("%s (%d)%s", stem, i, ext)
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return p
		}
	}
}
