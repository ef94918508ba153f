// Package archive keeps zstd-compressed copies of engine XML logs.
package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/zjrosen/fsync/internal/log"
)

// Extension is appended to archived log names.
const Extension = ".zst"

// Archiver compresses logs into a directory. It satisfies session.Archiver.
type Archiver struct {
	dir    string
	level  zstd.EncoderLevel
	logger *log.Logger
	now    func() time.Time
}

// New creates an archiver writing into dir.
func New(dir string, logger *log.Logger) *Archiver {
	return &Archiver{
		dir:    dir,
		level:  zstd.SpeedDefault,
		logger: logger,
		now:    time.Now,
	}
}

// Dir returns the archive directory.
func (a *Archiver) Dir() string {
	return a.dir
}

// Archive compresses the file at path to
// <dir>/<name>-<yyyymmddThhmmss><ext>.zst. The source is left in place.
func (a *Archiver) Archive(path string) error {
	src, err := os.Open(path) //nolint:gosec // G304: engine log path owned by the session
	if err != nil {
		return fmt.Errorf("opening log for archive: %w", err)
	}
	defer func() { _ = src.Close() }()

	if err := os.MkdirAll(a.dir, 0o750); err != nil {
		return fmt.Errorf("creating archive directory: %w", err)
	}

	base := filepath.Base(path)
	ext := filepath.Ext(base)
	name := fmt.Sprintf("%s-%s%s%s", strings.TrimSuffix(base, ext), a.now().Format("20060102T150405"), ext, Extension)
	target := filepath.Join(a.dir, name)

	temp, err := os.CreateTemp(a.dir, ".archive.tmp.*")
	if err != nil {
		return fmt.Errorf("creating archive temp file: %w", err)
	}
	tempPath := temp.Name()
	fail := func(err error) error {
		_ = temp.Close()
		_ = os.Remove(tempPath)
		return err
	}

	enc, err := zstd.NewWriter(temp, zstd.WithEncoderLevel(a.level))
	if err != nil {
		return fail(fmt.Errorf("creating zstd encoder: %w", err))
	}
	n, err := io.Copy(enc, src)
	if err != nil {
		_ = enc.Close()
		return fail(fmt.Errorf("compressing log: %w", err))
	}
	if err := enc.Close(); err != nil {
		return fail(fmt.Errorf("compressing log: %w", err))
	}
	if err := temp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("closing archive temp file: %w", err)
	}
	if err := os.Rename(tempPath, target); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("renaming archive: %w", err)
	}

	a.logger.Debug(log.CatSession, "Archived engine log", "log", path, "archive", target, "bytes", n)
	return nil
}

// List returns the archived logs, oldest first.
func (a *Archiver) List() ([]string, error) {
	entries, err := os.ReadDir(a.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading archive directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), Extension) {
			names = append(names, filepath.Join(a.dir, e.Name()))
		}
	}
	sort.Strings(names)
	return names, nil
}

// Open returns a reader over the decompressed content of an archived log.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path) //nolint:gosec // G304: archive path chosen by the user
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	return &reader{dec: dec, file: f}, nil
}

type reader struct {
	dec  *zstd.Decoder
	file *os.File
}

func (r *reader) Read(p []byte) (int, error) {
	return r.dec.Read(p)
}

func (r *reader) Close() error {
	r.dec.Close()
	return r.file.Close()
}
