package fsync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/fsync/internal/config"
	"github.com/zjrosen/fsync/internal/flags"
	"github.com/zjrosen/fsync/internal/log"
	"github.com/zjrosen/fsync/internal/session"
)

// ErrFileMode is returned by operations that need a directory pair.
var ErrFileMode = errors.New("not available in file mode")

// Env holds what every pair shares.
type Env struct {
	Guard    *Guard
	Printer  *Printer
	Logger   *log.Logger
	Flags    *flags.Registry
	Recorder *Recorder
	Verifier *DirVerifier
	Watcher  config.WatcherConfig
	Tracer   trace.Tracer
	Now      func() time.Time
}

// Pair keeps one local folder, or one local file, in sync with its remote
// counterpart.
type Pair struct {
	cfg config.FolderPairConfig
	env Env
	out *Printer

	mu       sync.Mutex
	realtime *realtime
}

// NewPair creates a pair from its configuration.
func NewPair(cfg config.FolderPairConfig, env Env) *Pair {
	if env.Now == nil {
		env.Now = time.Now
	}
	if cfg.BackupDir == "" {
		cfg.BackupDir = config.DefaultBackupDir(cfg.Name)
	}
	return &Pair{cfg: cfg, env: env, out: env.Printer.With(cfg.Name)}
}

// Name returns the pair's name.
func (p *Pair) Name() string {
	return p.cfg.Name
}

// Config returns the pair's configuration.
func (p *Pair) Config() config.FolderPairConfig {
	return p.cfg
}

// Start connects and starts realtime uploads as configured.
func (p *Pair) Start(ctx context.Context) error {
	if p.cfg.AutoConnect {
		p.out.Info("Connect")
		if err := p.env.Guard.Connect(ctx); err != nil {
			return err
		}
	}
	if p.cfg.AutoRealtime {
		p.out.Info("StartRealtime")
		return p.StartRealtime(ctx)
	}
	return nil
}

// Sync synchronizes the pair in mode. Preview only reports what would
// change; allowDelete removes files missing on the source side.
func (p *Pair) Sync(ctx context.Context, mode session.SynchronizationMode, preview, allowDelete bool) error {
	if p.cfg.SingleFile() {
		return p.syncFile(ctx, mode, preview)
	}
	return p.syncDir(ctx, mode, preview, allowDelete)
}

func (p *Pair) syncDir(ctx context.Context, mode session.SynchronizationMode, preview, allowDelete bool) error {
	transfer := session.NewTransferOptions()
	transfer.TransferMode = session.TransferModeAutomatic
	if !p.cfg.IncludeSubdirectories {
		transfer.FileMask = "|*/"
	}

	var res *session.SynchronizationResult
	err := p.do(ctx, !preview, func(ctx context.Context, s *session.Session) error {
		var err error
		res, err = s.SynchronizeDirectories(ctx, mode, p.cfg.Local, p.cfg.Remote, session.SynchronizeOptions{
			RemoveFiles: allowDelete,
			Criteria:    session.CriteriaTime,
			Transfer:    transfer,
			Preview:     preview,
		})
		if err != nil {
			return err
		}
		p.env.Recorder.Removals(s.ID(), res.Removals)
		if !preview && len(res.Removals) > 0 {
			p.env.Verifier.Reset(ctx)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := res.Check(); err != nil {
		return err
	}
	p.out.Summary(res)
	return nil
}

// syncFile compares modification times and copies the newer side over the
// older one, if mode allows that direction.
func (p *Pair) syncFile(ctx context.Context, mode session.SynchronizationMode, preview bool) error {
	return p.do(ctx, !preview, func(ctx context.Context, s *session.Session) error {
		var remoteTime time.Time
		remote, err := s.GetFileInfo(ctx, p.cfg.RemoteFile)
		switch {
		case err == nil:
			remoteTime = remote.LastWriteTime
		case !session.IsRemote(err):
			return err
		}

		var localTime time.Time
		if info, err := os.Stat(p.cfg.LocalFile); err == nil {
			localTime = info.ModTime()
		} else if !os.IsNotExist(err) {
			return err
		}

		if localTime.IsZero() && remoteTime.IsZero() {
			return fmt.Errorf("neither %s nor %s exists", p.cfg.LocalFile, p.cfg.RemoteFile)
		}

		// The server keeps whole seconds.
		diff := localTime.Truncate(time.Second).Sub(remoteTime.Truncate(time.Second))
		switch {
		case diff == 0:
			p.out.Info("Files are identical")
			return nil
		case diff > 0:
			if mode == session.SynchronizeLocal {
				return nil
			}
			p.out.Info("Local file is newer")
			if preview {
				return nil
			}
			res, err := s.PutFiles(ctx, p.cfg.LocalFile, p.cfg.RemoteFile, false, session.NewTransferOptions())
			if err != nil {
				return err
			}
			return res.Check()
		default:
			if mode == session.SynchronizeRemote {
				return nil
			}
			p.out.Info("Remote file is newer")
			if preview {
				return nil
			}
			res, err := s.GetFiles(ctx, p.cfg.RemoteFile, p.cfg.LocalFile, false, session.NewTransferOptions())
			if err != nil {
				return err
			}
			return res.Check()
		}
	})
}

// SyncToLocal backs up the local side and then makes it match the remote
// side. Realtime uploads pause meanwhile.
func (p *Pair) SyncToLocal(ctx context.Context, allowDelete bool) error {
	return p.withoutRealtime(ctx, func() error {
		if err := p.BackupLocal(); err != nil {
			return err
		}
		dir := p.cfg.Local
		if p.cfg.SingleFile() {
			dir = filepath.Dir(p.cfg.LocalFile)
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("creating local directory: %w", err)
		}
		if err := p.Sync(ctx, session.SynchronizeLocal, false, allowDelete); err != nil {
			return err
		}
		p.out.Info("Finished on %s", p.env.Now().Format(time.DateTime))
		return nil
	})
}

// CopyOverwriteLocal backs up the local side and downloads every remote
// file over it, whatever its age.
func (p *Pair) CopyOverwriteLocal(ctx context.Context) error {
	return p.withoutRealtime(ctx, func() error {
		if err := p.BackupLocal(); err != nil {
			return err
		}
		remote, local := p.cfg.RemoteFile, p.cfg.LocalFile
		if !p.cfg.SingleFile() {
			remote = session.CombinePaths(p.cfg.Remote, "*")
			local = p.cfg.Local + string(filepath.Separator)
			if err := os.MkdirAll(p.cfg.Local, 0o750); err != nil {
				return fmt.Errorf("creating local directory: %w", err)
			}
		}
		return p.do(ctx, true, func(ctx context.Context, s *session.Session) error {
			res, err := s.GetFiles(ctx, remote, local, false, session.NewTransferOptions())
			if err != nil {
				return err
			}
			return res.Check()
		})
	})
}

// BackupLocal copies the local files changed since the last backup into a
// new folder under the pair's backup directory.
func (p *Pair) BackupLocal() error {
	if p.cfg.BackupDir == "" {
		return errors.New("no backup directory")
	}
	b := Backup{
		Dir:       p.cfg.BackupDir,
		Source:    p.cfg.Local,
		Recursive: p.cfg.IncludeSubdirectories,
		Now:       p.env.Now,
	}
	if p.cfg.SingleFile() {
		b.Source, b.File = p.cfg.LocalFile, true
	}
	dir, err := b.Run()
	if err != nil {
		return fmt.Errorf("backing up %s: %w", b.Source, err)
	}
	p.out.Info("Backing up local dir to %s", dir)
	return nil
}

// ListRemote prints the remote tree of the pair.
func (p *Pair) ListRemote(ctx context.Context) error {
	if p.cfg.SingleFile() {
		return ErrFileMode
	}
	return p.do(ctx, false, func(ctx context.Context, s *session.Session) error {
		return p.listRemote(ctx, s, p.cfg.Remote)
	})
}

func (p *Pair) listRemote(ctx context.Context, s *session.Session, dir string) error {
	listing, err := s.ListDirectory(ctx, dir)
	if err != nil {
		return err
	}
	for _, f := range listing.Files {
		if f.IsThisDirectory() || f.IsParentDirectory() {
			continue
		}
		full := session.CombinePaths(dir, f.Name)
		p.out.Info("%s", full)
		if f.IsDirectory() && p.cfg.IncludeSubdirectories {
			if err := p.listRemote(ctx, s, full); err != nil {
				return err
			}
		}
	}
	return nil
}

// do runs fn on the shared session and records the transfers it caused
// when record is set.
func (p *Pair) do(ctx context.Context, record bool, fn func(ctx context.Context, s *session.Session) error) error {
	return p.env.Guard.Do(ctx, func(ctx context.Context, s *session.Session) error {
		err := fn(ctx, s)
		if record {
			_ = p.env.Recorder.Flush(ctx, p.cfg.Name)
		} else {
			p.env.Recorder.Discard()
		}
		return err
	})
}
