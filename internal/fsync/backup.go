package fsync

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// BackupLayout names backup folders after the time they were taken.
const BackupLayout = "2006-01-02 15-04-05"

// Backup copies the local files changed since the previous backup into a
// new timestamped folder under dir and returns that folder. Without a
// previous backup, files changed since midnight are copied.
type Backup struct {
	Dir string
	// Source is a folder, or a single file when File is set.
	Source    string
	File      bool
	Recursive bool
	Now       func() time.Time
}

// Run takes the backup.
func (b Backup) Run() (string, error) {
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	at := now()

	from, err := b.since(at)
	if err != nil {
		return "", err
	}

	target := filepath.Join(b.Dir, at.Format(BackupLayout))
	if err := os.MkdirAll(target, 0o750); err != nil {
		return "", fmt.Errorf("creating backup directory: %w", err)
	}

	if b.File {
		if err := copyFile(b.Source, filepath.Join(target, filepath.Base(b.Source))); err != nil && !os.IsNotExist(err) {
			return "", err
		}
		return target, nil
	}

	info, err := os.Stat(b.Source)
	if os.IsNotExist(err) {
		return target, nil
	}
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", b.Source)
	}
	return target, b.copyTree(target, from)
}

// since returns the time of the newest backup, or midnight of at.
func (b Backup) since(at time.Time) (time.Time, error) {
	from := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, at.Location())

	entries, err := os.ReadDir(b.Dir)
	if os.IsNotExist(err) {
		return from, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("reading backup directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return from, nil
	}
	sort.Strings(names)
	if last, err := time.ParseInLocation(BackupLayout, names[len(names)-1], at.Location()); err == nil {
		from = last
	}
	return from, nil
}

func (b Backup) copyTree(target string, from time.Time) error {
	return filepath.WalkDir(b.Source, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != b.Source && !b.Recursive {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().Before(from) {
			return nil
		}
		rel, err := filepath.Rel(b.Source, path)
		if err != nil {
			return err
		}
		return copyFile(path, filepath.Join(target, rel))
	})
}

// copyFile copies src to dst, keeping the modification time.
func copyFile(src, dst string) error {
	in, err := os.Open(src) // #nosec G304 -- backing up user files
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm()) // #nosec G304
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
