package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/zjrosen/fsync/internal/archive"
	"github.com/zjrosen/fsync/internal/cachemanager"
	"github.com/zjrosen/fsync/internal/config"
	"github.com/zjrosen/fsync/internal/flags"
	"github.com/zjrosen/fsync/internal/fsync"
	"github.com/zjrosen/fsync/internal/history"
	"github.com/zjrosen/fsync/internal/log"
	"github.com/zjrosen/fsync/internal/session"
	"github.com/zjrosen/fsync/internal/tracing"
)

// sessionOptions are appended to the options of every session. Tests use it
// to swap the engine for a fake.
var sessionOptions []session.Option

// runtime is everything a command needs, built from the loaded config.
type runtime struct {
	ctx      context.Context
	cfg      config.Config
	logger   *log.Logger
	flags    *flags.Registry
	out      *fsync.Printer
	guard    *fsync.Guard
	recorder *fsync.Recorder
	syncer   *fsync.Syncer
	history  *history.DB
	tracing  *tracing.Provider
}

type runtimeOptions struct {
	out      io.Writer
	debugLog string
	verbose  bool
}

func newRuntime(c config.Config, opts runtimeOptions) (*runtime, error) {
	if err := config.Validate(c); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := newLogger(c, opts)
	if err != nil {
		return nil, err
	}

	rt := &runtime{
		ctx:    context.Background(),
		cfg:    c,
		logger: logger,
		flags:  flags.New(c.Flags, flags.WithLogger(logger)),
		out:    fsync.NewPrinter(opts.out),
	}

	rt.tracing, err = tracing.NewProvider(c.Tracing, tracing.WithVersion(version))
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("initializing tracing: %w", err)
	}

	connect, err := c.Session.Options()
	if err != nil {
		rt.Close()
		return nil, err
	}

	if rt.flags.Enabled(flags.FlagHistory) {
		path := c.History.Path
		if path == "" {
			path = config.DefaultHistoryPath()
		}
		rt.history, err = history.NewDB(path, logger)
		if err != nil {
			rt.Close()
			return nil, err
		}
	}
	var store *history.Store
	if rt.history != nil {
		store = rt.history.Store()
	}
	rt.recorder = fsync.NewRecorder(store, logger)

	engine := c.Engine.SessionConfig()
	opt := []session.Option{
		session.WithLogger(logger),
		session.WithTracer(rt.tracing.Tracer()),
	}
	if rt.flags.Enabled(flags.FlagArchiveXML) && c.Engine.ArchiveDir != "" {
		opt = append(opt, session.WithArchiver(archive.New(c.Engine.ArchiveDir, logger)))
	}
	opt = append(opt, sessionOptions...)
	rt.guard = fsync.NewGuard(func() *session.Session {
		return session.New(engine, opt...)
	}, connect, logger)

	dirs := cachemanager.NewInMemoryCacheManager[string, bool]("remote-dirs", c.Cache.TTL, c.Cache.CleanupInterval, logger)
	env := fsync.Env{
		Guard:    rt.guard,
		Printer:  rt.out,
		Logger:   logger,
		Flags:    rt.flags,
		Recorder: rt.recorder,
		Verifier: fsync.NewDirVerifier(dirs, c.Cache.TTL, logger),
		Watcher:  c.Watcher,
		Tracer:   rt.tracing.Tracer(),
	}
	rt.syncer = fsync.NewSyncer(c.FolderPairs, env, fsync.NewReaper(c.Engine.Executable, logger))

	logger.Debug(log.CatConfig, "Runtime ready", "pairs", len(c.FolderPairs), "history", rt.history != nil)
	return rt, nil
}

func newLogger(c config.Config, opts runtimeOptions) (*log.Logger, error) {
	path := opts.debugLog
	if path == "" {
		path = c.DebugLog
	}
	switch {
	case path != "":
		return log.Open(path)
	case opts.verbose:
		logger := log.New(io.Discard)
		logger.SetMinLevel(log.LevelInfo)
		return logger, nil
	default:
		return log.Discard(), nil
	}
}

// session runs fn with the shared session and records its transfers without
// a folder pair.
func (rt *runtime) session(fn func(ctx context.Context, s *session.Session) error) error {
	err := rt.guard.Do(rt.ctx, fn)
	if err != nil {
		rt.recorder.Discard()
		return err
	}
	return rt.recorder.Flush(rt.ctx, "")
}

// Close stops realtime uploads, disposes the session and releases the
// history database, tracer and log file.
func (rt *runtime) Close() {
	if rt.syncer != nil {
		if err := rt.syncer.Close(); err != nil {
			rt.logger.ErrorErr(log.CatSync, "Closing syncer failed", err)
		}
	}
	if rt.history != nil {
		if err := rt.history.Close(); err != nil {
			rt.logger.ErrorErr(log.CatHistory, "Closing history failed", err)
		}
	}
	if rt.tracing != nil {
		if err := rt.tracing.Shutdown(context.Background()); err != nil {
			rt.logger.ErrorErr(log.CatConfig, "Flushing traces failed", err)
		}
	}
	_ = rt.logger.Close()
}

// withRuntime builds the runtime for cmd and runs fn. Ctrl+C aborts the
// engine so a blocked command returns at once.
func withRuntime(cmd *cobra.Command, fn func(rt *runtime) error) error {
	c := cfg
	if askPassword {
		password, err := readPassword(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		c.Session.Password = password
	}

	rt, err := newRuntime(c, runtimeOptions{out: cmd.OutOrStdout(), debugLog: debugLog, verbose: verbose})
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	stopAbort := context.AfterFunc(ctx, func() {
		if err := rt.guard.Abort(); err != nil {
			rt.logger.ErrorErr(log.CatSession, "Abort failed", err)
		}
	})
	defer stopAbort()
	rt.ctx = ctx

	if verbose {
		go echoLog(ctx, rt.logger, cmd.ErrOrStderr())
	}

	err = fn(rt)
	if errors.Is(err, session.ErrAborted) || errors.Is(err, session.ErrSessionAborted) {
		return fmt.Errorf("interrupted: %w", err)
	}
	return err
}

func echoLog(ctx context.Context, logger *log.Logger, w io.Writer) {
	for ev := range logger.Listen(ctx) {
		_, _ = io.WriteString(w, ev.Payload)
	}
}

func readPassword(prompt io.Writer) (string, error) {
	fd := int(os.Stdin.Fd()) // #nosec G115 -- file descriptors fit in int
	if !term.IsTerminal(fd) {
		return "", errors.New("--ask-password needs an interactive terminal")
	}
	_, _ = fmt.Fprint(prompt, "Password: ")
	password, err := term.ReadPassword(fd)
	_, _ = fmt.Fprintln(prompt)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(password), nil
}
