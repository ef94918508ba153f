// Package session drives the file transfer engine.
//
// A Session owns one engine process. Every operation writes one command to
// the engine's stdin and reads the matching group from the XML log the
// engine appends to. Commands carry no IDs: the n-th group answers the n-th
// command, so every operation reads its group to the end, even when it fails.
//
// Console output, progress and failures are queued as events and delivered
// on the caller's goroutine whenever the session waits for the engine or an
// operation returns.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/fsync/internal/log"
	"github.com/zjrosen/fsync/internal/process"
	"github.com/zjrosen/fsync/internal/tracing"
	"github.com/zjrosen/fsync/internal/xmllog"
)

// Clock tells the session what time it is. Tests substitute a manual clock
// to drive inactivity timeouts.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Archiver keeps a copy of the XML log before the session deletes it.
type Archiver interface {
	Archive(path string) error
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithTracer records a span for every command.
func WithTracer(t trace.Tracer) Option {
	return func(s *Session) { s.tracer = t }
}

// WithClock replaces the clock used for inactivity timeouts.
func WithClock(c Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithCommandFactory replaces how the engine process is created.
func WithCommandFactory(f process.CommandFactoryFunc) Option {
	return func(s *Session) { s.commandFactory = f }
}

// WithArchiver archives every XML log before it is deleted.
func WithArchiver(a Archiver) Option {
	return func(s *Session) { s.archiver = a }
}

// Session is one engine process and the state needed to talk to it.
// Operations must not be called concurrently; Abort may be called from any
// goroutine.
type Session struct {
	cfg            Config
	logger         *log.Logger
	tracer         trace.Tracer
	clock          Clock
	commandFactory process.CommandFactoryFunc
	archiver       Archiver
	id             string

	procMu  sync.Mutex
	process *process.Process
	tracker *process.OutputTracker

	logPath  string
	logSeq   int
	logFile  *os.File
	root     *xmllog.Reader
	reader   *xmllog.Reader
	homePath string

	queue            *EventQueue
	registry         *ResultRegistry
	progressHandling int

	lastOutput atomic.Int64
	aborted    atomic.Bool
	disposed   atomic.Bool
	exitSeen   bool
	opCtx      context.Context

	handlerSeq       HandlerID
	outputHandlers   handlerList[OutputEvent]
	transferHandlers handlerList[*TransferEvent]
	failedHandlers   handlerList[*RemoteError]
	progressHandlers handlerList[*ProgressEvent]
}

// New creates a closed session.
func New(cfg Config, opts ...Option) *Session {
	cfg = cfg.withDefaults()

	s := &Session{
		cfg:      cfg,
		logger:   log.Discard(),
		tracer:   noop.NewTracerProvider().Tracer("fsync"),
		clock:    systemClock{},
		id:       uuid.NewString(),
		queue:    NewEventQueue(),
		registry: NewResultRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID identifies the session in logs and traces.
func (s *Session) ID() string {
	return s.id
}

// Opened reports whether the session is open, not aborted and its engine
// still running.
func (s *Session) Opened() bool {
	s.procMu.Lock()
	p := s.process
	s.procMu.Unlock()
	return p != nil && !s.aborted.Load() && !p.HasExited()
}

// HomePath is the remote working directory right after Open.
func (s *Session) HomePath() (string, error) {
	if err := s.checkOpened(); err != nil {
		return "", err
	}
	return s.homePath, nil
}

// Output returns the most recent console lines of the engine.
func (s *Session) Output() []string {
	if s.tracker == nil {
		return nil
	}
	return s.tracker.Output()
}

// DispatchEvents delivers queued events, waiting up to budget for more.
func (s *Session) DispatchEvents(budget time.Duration) {
	s.queue.Dispatch(budget)
}

// Open starts the engine and connects it to the server.
func (s *Session) Open(ctx context.Context, opts SessionOptions) (err error) {
	ctx, span := tracing.StartCommand(ctx, s.tracer, "open",
		attribute.String(tracing.AttrSessionID, s.id),
		attribute.String(tracing.AttrHost, opts.HostName),
		attribute.String(tracing.AttrProtocol, opts.Protocol.String()),
	)
	defer func() {
		err = normalize(err)
		s.queue.Dispatch(0)
		s.opCtx = nil
		tracing.End(span, err)
	}()

	if err := s.checkNotDisposed(); err != nil {
		return err
	}
	if s.process != nil {
		return &LocalError{Err: ErrAlreadyOpened}
	}

	cmd, logCmd, err := openCommand(opts, s.cfg.DefaultConfiguration)
	if err != nil {
		return err
	}

	s.opCtx = ctx
	s.exitSeen = false
	defer func() {
		if err != nil {
			s.logger.ErrorErr(log.CatSession, "Open failed", err, "session", s.id)
			s.cleanup()
		}
	}()

	if err := s.setupLogPath(); err != nil {
		return err
	}

	s.tracker = process.NewOutputTracker(s.cfg.OutputCapacity)
	p, err := process.NewBuilder(context.Background()).
		WithExecutable(s.cfg.ExecutablePath, s.cfg.engineArguments(s.logPath)).
		WithWorkDir(s.cfg.WorkDir).
		WithEnv(s.cfg.Env).
		WithTracker(s.tracker).
		WithOutputHandler(s.receiveOutput).
		WithProgressHandler(s.scheduleProgress).
		WithCommandFactory(s.commandFactory).
		WithLogger(s.logger).
		Build()
	if err != nil {
		return &LocalError{Err: fmt.Errorf("%w: %w", ErrStartup, err)}
	}
	s.setProcess(p)
	s.gotOutput()
	s.logger.Info(log.CatSession, "Engine started", "session", s.id, "pid", p.PID(), "log", s.logPath)

	// An engine that dies right away cannot take the commands; that is
	// diagnosed while waiting for its log.
	if err := s.writePreamble(cmd, logCmd); err != nil {
		s.logger.Debug(log.CatSession, "Engine did not take the open commands", "error", err)
	}
	if err := s.waitForLogFile(); err != nil {
		return err
	}
	if err := s.openLogReader(); err != nil {
		return err
	}

	// The open command's own group.
	if err := s.readGroup(xmllog.ThrowFailures, nil); err != nil {
		return err
	}

	if err := s.writeCommand("pwd"); err != nil {
		return err
	}
	if err := s.readGroup(xmllog.ThrowFailures, func(group *xmllog.Reader) error {
		return s.withElement(group, "cwd", func(cwd *xmllog.Reader) error {
			for {
				ok, err := cwd.Read(0)
				if err != nil || !ok {
					return err
				}
				if v, ok := cwd.Value("cwd"); ok {
					s.homePath = v
				}
			}
		})
	}); err != nil {
		return err
	}

	s.logger.Info(log.CatSession, "Session opened", "session", s.id, "host", opts.HostName, "home", s.homePath)
	return nil
}

// Close ends the engine and deletes the XML log.
func (s *Session) Close() error {
	if err := s.checkNotDisposedOnly(); err != nil {
		return err
	}
	if s.process == nil {
		return &LocalError{Err: ErrNotOpened}
	}
	s.cleanup()
	return nil
}

// Dispose closes the session if needed and makes it unusable.
func (s *Session) Dispose() error {
	if s.disposed.Swap(true) {
		return nil
	}
	s.cleanup()
	return nil
}

// Abort kills the engine. Any operation in flight fails with ErrAborted
// within one poll interval, and the session is no longer open. Safe to call
// from any goroutine. Aborting a session that is not open returns
// ErrNotOpened.
func (s *Session) Abort() error {
	if err := s.checkOpened(); err != nil {
		return err
	}
	return s.abort()
}

func (s *Session) abort() error {
	s.logger.Warn(log.CatSession, "Aborting session", "session", s.id)
	s.aborted.Store(true)

	s.procMu.Lock()
	p := s.process
	s.procMu.Unlock()

	if p == nil {
		return nil
	}
	return p.Terminate()
}

func (s *Session) setProcess(p *process.Process) {
	s.procMu.Lock()
	s.process = p
	s.procMu.Unlock()
}

func (s *Session) checkNotDisposedOnly() error {
	if s.disposed.Load() {
		return &LocalError{Err: ErrDisposed}
	}
	return nil
}

func (s *Session) checkNotDisposed() error {
	if err := s.checkNotDisposedOnly(); err != nil {
		return err
	}
	if s.aborted.Load() {
		return &LocalError{Err: ErrSessionAborted}
	}
	return nil
}

func (s *Session) checkOpened() error {
	if err := s.checkNotDisposedOnly(); err != nil {
		return err
	}
	if !s.Opened() {
		return &LocalError{Err: ErrNotOpened}
	}
	return nil
}

func (s *Session) checkNotOpened() error {
	if s.Opened() {
		return &LocalError{Err: ErrAlreadyOpened}
	}
	return nil
}

// setupLogPath picks the XML log path: the configured one, which must not
// exist yet, or a fresh file in the temp directory.
func (s *Session) setupLogPath() error {
	if s.cfg.XMLLogPath != "" {
		if _, err := os.Stat(s.cfg.XMLLogPath); err == nil {
			return localErrorf(ErrInvalidArgument, "configured XML log file %s already exists", s.cfg.XMLLogPath)
		}
		s.logPath = s.cfg.XMLLogPath
		return nil
	}

	base := filepath.Join(os.TempDir(), fmt.Sprintf("fsync-%d.%s", os.Getpid(), s.id[:8]))
	for {
		path := base + ".xml"
		if s.logSeq > 0 {
			path = fmt.Sprintf("%s.%d.xml", base, s.logSeq)
		}
		s.logSeq++
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			s.logPath = path
			return nil
		}
	}
}

// waitForLogFile waits until the engine creates its XML log, or gives up
// when the engine exits or stays silent for the timeout.
func (s *Session) waitForLogFile() error {
	explanation := fmt.Sprintf("(response log file %s was not created)", s.logPath)
	for {
		if _, err := os.Stat(s.logPath); err == nil {
			return nil
		}

		if s.process.HasExited() {
			if _, err := os.Stat(s.logPath); err == nil {
				return nil
			}
			code, _ := s.process.ExitCode()
			return localErrorf(ErrStartup, "engine process terminated with exit code %s and output %q, without responding %s",
				process.FormatExitCode(code), s.tracker.Combined(), explanation)
		}

		s.queue.Dispatch(s.cfg.PollInterval)

		if err := s.checkForTimeout(explanation); err != nil {
			if !errors.Is(err, ErrTimeout) {
				return err
			}
			return s.startupTimeout(err)
		}
	}
}

// startupTimeout stops an engine that never created its log and reports its
// exit code and output.
func (s *Session) startupTimeout(cause error) error {
	if err := s.process.Terminate(); err != nil {
		s.logger.ErrorErr(log.CatSession, "Failed to kill silent engine", err)
	}
	select {
	case <-s.process.Exited():
	case <-time.After(s.cfg.CloseGrace):
	}
	exit := "unknown"
	if code, err := s.process.ExitCode(); err == nil {
		exit = process.FormatExitCode(code)
	}
	return &LocalError{
		Msg: fmt.Sprintf("%s; engine exit code %s and output %q", cause.Error(), exit, s.tracker.Combined()),
		Err: fmt.Errorf("%w: %w", ErrStartup, ErrTimeout),
	}
}

func (s *Session) openLogReader() error {
	f, err := os.Open(s.logPath)
	if err != nil {
		return localErrorf(ErrStartup, "opening XML log: %v", err)
	}
	s.logFile = f

	stream := xmllog.NewPatientReader(f, logWaiter{s}, s.cfg.PollInterval)
	s.root = xmllog.New(stream,
		xmllog.WithFailureHandler(s.raiseFailed),
		xmllog.WithLogger(s.logger),
	)

	found, err := s.root.TryWaitForElement(xmllog.TagSession, xmllog.ThrowFailures)
	if err != nil {
		return err
	}
	if !found {
		return &LocalError{Msg: "element session not found", Err: ErrProtocol}
	}
	s.reader, err = s.root.SessionScope()
	return err
}

// cleanup releases everything Open acquired. Failures are logged, never
// returned, so they cannot hide the error that caused the cleanup.
func (s *Session) cleanup() {
	if s.process != nil {
		s.logger.Debug(log.CatSession, "Closing engine", "session", s.id)
		if err := s.process.Close(s.cfg.CloseGrace); err != nil {
			s.logger.ErrorErr(log.CatSession, "Engine cleanup failed", err)
		}
		s.setProcess(nil)
	}

	if s.root != nil {
		if err := s.root.Close(); err != nil {
			s.logger.ErrorErr(log.CatSession, "Closing log reader failed", err)
		}
		s.root, s.reader = nil, nil
	}
	if s.logFile != nil {
		if err := s.logFile.Close(); err != nil {
			s.logger.ErrorErr(log.CatSession, "Closing XML log failed", err)
		}
		s.logFile = nil
	}

	if s.logPath != "" {
		if _, err := os.Stat(s.logPath); err == nil {
			if s.archiver != nil {
				if err := s.archiver.Archive(s.logPath); err != nil {
					s.logger.ErrorErr(log.CatSession, "Archiving XML log failed", err, "path", s.logPath)
				}
			}
			s.logger.Debug(log.CatSession, "Deleting XML log", "path", s.logPath)
			if err := os.Remove(s.logPath); err != nil {
				s.logger.ErrorErr(log.CatSession, "Deleting XML log failed", err, "path", s.logPath)
			}
		}
		s.logPath = ""
	}

	s.homePath = ""
	s.queue.Dispatch(0)
}

func (s *Session) writePreamble(openCmd, logCmd string) error {
	for _, c := range []string{"option batch on", "option confirm off", s.cfg.reconnectCommand()} {
		if err := s.writeCommand(c); err != nil {
			return err
		}
	}
	return s.writeCommandRedacted(openCmd, logCmd)
}

func (s *Session) writeCommand(line string) error {
	return s.writeCommandRedacted(line, line)
}

func (s *Session) writeCommandRedacted(line, logLine string) error {
	if err := s.process.WriteCommandRedacted(line, logLine); err != nil {
		if errors.Is(err, process.ErrExited) {
			return s.engineExited()
		}
		return &LocalError{Err: err}
	}
	// An immediate acknowledgement counts as output, so writing resets the
	// inactivity clock.
	s.gotOutput()
	return nil
}

func (s *Session) gotOutput() {
	s.lastOutput.Store(s.clock.Now().UnixNano())
}

// receiveOutput runs on the engine's pipe goroutines.
func (s *Session) receiveOutput(line string, stream process.Stream) {
	s.gotOutput()
	ev := OutputEvent{Line: line, Stderr: stream == process.StreamStderr}
	s.queue.Schedule(func() {
		s.logger.Debug(log.CatSession, "Engine output", "line", line, "stream", stream)
		s.outputHandlers.emit(ev)
	})
}

// raiseFailed is told about every failure element the log reader meets.
func (s *Session) raiseFailed(rerr *RemoteError) {
	s.logger.Warn(log.CatSession, "Engine reported failure", "session", s.id, "message", rerr.Message())
	if s.opCtx != nil {
		trace.SpanFromContext(s.opCtx).AddEvent(tracing.EventRemoteFailure,
			trace.WithAttributes(attribute.String("message", rerr.Message())))
	}
	s.registry.Attach(rerr)
	s.queue.Schedule(func() { s.failedHandlers.emit(rerr) })
}

func (s *Session) scheduleTransferred(ev *TransferEvent) {
	s.queue.Schedule(func() {
		s.logger.Debug(log.CatSession, "File transferred", "file", ev.FileName, "side", ev.Side)
		s.transferHandlers.emit(ev)
	})
}

// logWaiter connects the patient log stream to the session's timeout,
// abort and event dispatch.
type logWaiter struct {
	s *Session
}

func (w logWaiter) Wait(interval time.Duration) error {
	return w.s.idle(interval)
}

func (w logWaiter) Touch() {
	w.s.gotOutput()
}

// idle is one step of every wait on the engine: deliver events for up to
// interval, then check whether to keep waiting.
func (s *Session) idle(interval time.Duration) error {
	s.queue.Dispatch(interval)
	if err := s.checkForTimeout(""); err != nil {
		return err
	}
	if s.process != nil && s.process.HasExited() {
		// The engine may have written its last bytes just before exiting,
		// so allow one more read before reporting the exit.
		if s.exitSeen {
			return s.engineExited()
		}
		s.exitSeen = true
	}
	return nil
}

func (s *Session) checkForTimeout(additional string) error {
	if s.aborted.Load() {
		return &LocalError{Err: ErrAborted}
	}

	if s.opCtx != nil {
		if err := s.opCtx.Err(); err != nil {
			s.logger.Warn(log.CatSession, "Operation cancelled", "session", s.id, "error", err)
			_ = s.abort()
			return &LocalError{Err: fmt.Errorf("%w: %w", ErrAborted, err)}
		}
	}

	last := time.Unix(0, s.lastOutput.Load())
	if s.clock.Now().Sub(last) > s.cfg.Timeout {
		msg := fmt.Sprintf("engine was silent for more than %s", s.cfg.Timeout)
		if additional != "" {
			msg += " " + additional
		}
		return &LocalError{Msg: msg, Err: ErrTimeout}
	}
	return nil
}

func (s *Session) engineExited() error {
	code, err := s.process.ExitCode()
	exit := "unknown"
	if err == nil {
		exit = process.FormatExitCode(code)
	}
	return localErrorf(ErrEngineExited, "exit code %s, output %q", exit, s.tracker.Combined())
}
