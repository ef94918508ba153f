package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/zjrosen/fsync/internal/log"
)

// ErrSpawn wraps every failure to start the engine.
var ErrSpawn = errors.New("failed to start engine process")

// CommandFactoryFunc creates an exec.Cmd. Tests use it to substitute a fake engine.
type CommandFactoryFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// OutputFunc receives every console line that is not a progress record.
// It runs on a pipe reader goroutine and must not block.
type OutputFunc func(line string, stream Stream)

// ProgressFunc receives decoded progress records on the stdout reader goroutine.
type ProgressFunc func(ProgressRecord)

// Builder provides a fluent API for spawning the engine.
type Builder struct {
	ctx            context.Context
	execPath       string
	args           []string
	workDir        string
	env            []string
	tracker        *OutputTracker
	onOutput       OutputFunc
	onProgress     ProgressFunc
	commandFactory CommandFactoryFunc
	logger         *log.Logger
}

// NewBuilder creates a Builder. Cancelling ctx kills the engine.
func NewBuilder(ctx context.Context) *Builder {
	return &Builder{ctx: ctx}
}

// WithExecutable sets the executable path and arguments.
func (b *Builder) WithExecutable(path string, args []string) *Builder {
	b.execPath = path
	b.args = args
	return b
}

// WithWorkDir sets the working directory for the process.
func (b *Builder) WithWorkDir(dir string) *Builder {
	b.workDir = dir
	return b
}

// WithEnv appends "KEY=VALUE" entries to os.Environ().
func (b *Builder) WithEnv(env []string) *Builder {
	b.env = env
	return b
}

// WithTracker sets the tracker that receives console lines. A new tracker
// is created when none is given.
func (b *Builder) WithTracker(t *OutputTracker) *Builder {
	b.tracker = t
	return b
}

// WithOutputHandler sets the console line callback.
func (b *Builder) WithOutputHandler(fn OutputFunc) *Builder {
	b.onOutput = fn
	return b
}

// WithProgressHandler sets the progress record callback.
func (b *Builder) WithProgressHandler(fn ProgressFunc) *Builder {
	b.onProgress = fn
	return b
}

// WithCommandFactory sets a custom command factory for testing.
func (b *Builder) WithCommandFactory(fn CommandFactoryFunc) *Builder {
	b.commandFactory = fn
	return b
}

// WithLogger sets the logger for process diagnostics.
func (b *Builder) WithLogger(l *log.Logger) *Builder {
	b.logger = l
	return b
}

// Build validates the configuration, starts the engine and its pipe readers.
// On error, all created resources are released.
func (b *Builder) Build() (*Process, error) {
	if b.execPath == "" {
		return nil, fmt.Errorf("%w: executable path is required", ErrSpawn)
	}

	ctx, cancel := context.WithCancel(b.ctx)

	var (
		stdin  io.WriteCloser
		stdout io.ReadCloser
		stderr io.ReadCloser
	)
	cleanup := func() {
		cancel()
		for _, c := range []io.Closer{stdin, stdout, stderr} {
			if c != nil {
				_ = c.Close()
			}
		}
	}

	var cmd *exec.Cmd
	if b.commandFactory != nil {
		cmd = b.commandFactory(ctx, b.execPath, b.args...)
	} else {
		// #nosec G204 -- the executable comes from the session configuration
		cmd = exec.CommandContext(ctx, b.execPath, b.args...)
	}
	cmd.Dir = b.workDir
	if len(b.env) > 0 {
		cmd.Env = append(os.Environ(), b.env...)
	}

	var err error
	if stdin, err = cmd.StdinPipe(); err != nil {
		cleanup()
		return nil, fmt.Errorf("%w: creating stdin pipe: %w", ErrSpawn, err)
	}
	if stdout, err = cmd.StdoutPipe(); err != nil {
		cleanup()
		return nil, fmt.Errorf("%w: creating stdout pipe: %w", ErrSpawn, err)
	}
	if stderr, err = cmd.StderrPipe(); err != nil {
		cleanup()
		return nil, fmt.Errorf("%w: creating stderr pipe: %w", ErrSpawn, err)
	}

	tracker := b.tracker
	if tracker == nil {
		tracker = NewOutputTracker(DefaultTrackerCapacity)
	}

	p := &Process{
		cmd:        cmd,
		stdin:      stdin,
		stdout:     stdout,
		stderr:     stderr,
		cancel:     cancel,
		tracker:    tracker,
		onOutput:   b.onOutput,
		onProgress: b.onProgress,
		logger:     b.logger,
		status:     StatusPending,
		exitCode:   -1,
		exited:     make(chan struct{}),
	}

	b.logger.Debug(log.CatProcess, "Spawning engine",
		"execPath", b.execPath,
		"args", len(b.args),
		"workDir", b.workDir)

	if err := cmd.Start(); err != nil {
		cleanup()
		return nil, fmt.Errorf("%w: %s: %w", ErrSpawn, b.execPath, err)
	}

	b.logger.Info(log.CatProcess, "Engine started", "pid", cmd.Process.Pid)

	p.setStatus(StatusRunning)
	p.startReaders()

	return p, nil
}
