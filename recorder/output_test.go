package recorder

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputName(t *testing.T) {
	zone := time.FixedZone("CEST", 2*60*60)
	at := time.Date(2026, 3, 1, 10, 4, 5, 0, zone)

	assert.Equal(t, "Screenrec-2026-03-01T10-04-05+02-00.mp4", outputName("", at))
	assert.Equal(t, "Demo-2026-03-01T08-04-05Z.mp4", outputName("Demo", at.UTC()))
}

func TestUniquePath(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.mp4")
	assert.Equal(t, p, uniquePath(p))

	require.NoError(t, os.WriteFile(p, nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a (1).mp4"), nil, 0o644))
	assert.Equal(t, filepath.Join(dir, "a (2).mp4"), uniquePath(p))
}

func TestCleanupStaleTempDirs(t *testing.T) {
	base := t.TempDir()
	now := time.Now()
	old := now.Add(-13 * time.Hour)

	mk := func(name string, mtime time.Time, withFile bool) string {
		dir := filepath.Join(base, name)
		require.NoError(t, os.Mkdir(dir, 0o755))
		if withFile {
			require.NoError(t, os.WriteFile(filepath.Join(dir, "rec.mp4"), []byte("x"), 0o644))
		}
		require.NoError(t, os.Chtimes(dir, mtime, mtime))
		return dir
	}
	stale := mk(tempDirPrefix+"stale", old, false)
	kept := mk(tempDirPrefix+"footage", old, true)
	fresh := mk(tempDirPrefix+"fresh", now, false)
	other := mk("other-old", old, false)

	removed, orphans := cleanupStaleTempDirs(base, staleTempAge, now)
	assert.Equal(t, 1, removed)
	assert.Equal(t, []string{filepath.Join(kept, "rec.mp4")}, orphans)
	assert.NoDirExists(t, stale)
	assert.DirExists(t, kept)
	assert.DirExists(t, fresh)
	assert.DirExists(t, other)
}

func TestSaveError(t *testing.T) {
	cause := errors.New("disk full")
	err := error(&SaveError{TempPath: "/tmp/x.mp4", Err: cause})

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "recording kept at /tmp/x.mp4: disk full", err.Error())
}
