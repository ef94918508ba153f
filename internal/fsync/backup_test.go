package fsync

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, modified time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(filepath.Base(path)), 0o600))
	require.NoError(t, os.Chtimes(path, modified, modified))
}

func TestBackup_CopiesFilesChangedToday(t *testing.T) {
	now := time.Date(2026, 3, 1, 15, 30, 0, 0, time.Local)
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "today.txt"), now.Add(-time.Hour))
	writeFile(t, filepath.Join(src, "yesterday.txt"), now.Add(-24*time.Hour))
	writeFile(t, filepath.Join(src, "sub", "nested.txt"), now.Add(-time.Hour))

	b := Backup{Dir: filepath.Join(t.TempDir(), "backups"), Source: src, Now: func() time.Time { return now }}
	dir, err := b.Run()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(b.Dir, "2026-03-01 15-30-00"), dir)
	assert.FileExists(t, filepath.Join(dir, "today.txt"))
	assert.NoFileExists(t, filepath.Join(dir, "yesterday.txt"))
	assert.NoDirExists(t, filepath.Join(dir, "sub"), "subfolders need Recursive")

	info, err := os.Stat(filepath.Join(dir, "today.txt"))
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(now.Add(-time.Hour)), "modification time is kept")
}

func TestBackup_Recursive(t *testing.T) {
	now := time.Date(2026, 3, 1, 15, 30, 0, 0, time.Local)
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "sub", "nested.txt"), now.Add(-time.Hour))

	b := Backup{Dir: t.TempDir(), Source: src, Recursive: true, Now: func() time.Time { return now }}
	dir, err := b.Run()
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "sub", "nested.txt"))
}

func TestBackup_StartsFromPreviousBackup(t *testing.T) {
	now := time.Date(2026, 3, 1, 15, 30, 0, 0, time.Local)
	backups := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(backups, "2026-03-01 10-00-00"), 0o750))
	require.NoError(t, os.Mkdir(filepath.Join(backups, "2026-03-01 14-00-00"), 0o750))
	require.NoError(t, os.Mkdir(filepath.Join(backups, "not a backup"), 0o750))

	src := t.TempDir()
	writeFile(t, filepath.Join(src, "before.txt"), time.Date(2026, 3, 1, 13, 0, 0, 0, time.Local))
	writeFile(t, filepath.Join(src, "after.txt"), time.Date(2026, 3, 1, 14, 30, 0, 0, time.Local))

	b := Backup{Dir: backups, Source: src, Now: func() time.Time { return now }}
	from, err := b.since(now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.Local), from, "an unparsable newest name falls back to midnight")

	require.NoError(t, os.Remove(filepath.Join(backups, "not a backup")))
	dir, err := b.Run()
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "after.txt"))
	assert.NoFileExists(t, filepath.Join(dir, "before.txt"))
}

func TestBackup_SingleFile(t *testing.T) {
	now := time.Date(2026, 3, 1, 15, 30, 0, 0, time.Local)
	file := filepath.Join(t.TempDir(), "hosts")
	writeFile(t, file, now.Add(-48*time.Hour))

	b := Backup{Dir: t.TempDir(), Source: file, File: true, Now: func() time.Time { return now }}
	dir, err := b.Run()
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "hosts"), "a single file is always copied")
}

func TestBackup_MissingSource(t *testing.T) {
	b := Backup{Dir: t.TempDir(), Source: filepath.Join(t.TempDir(), "missing")}
	dir, err := b.Run()
	require.NoError(t, err)
	assert.DirExists(t, dir)
}
