// Package process supervises the external transfer engine: it feeds command
// lines to its stdin, captures its console output, and tracks its exit.
package process

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/zjrosen/fsync/internal/log"
)

var (
	// ErrExited is returned when writing to an engine that has already exited.
	ErrExited = errors.New("engine process has exited")
	// ErrNotExited is returned when asking for the exit code of a live engine.
	ErrNotExited = errors.New("engine process has not exited")
)

// killWait bounds how long Close waits for pipes to drain after a kill.
const killWait = 5 * time.Second

// Process is a running engine.
type Process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser
	cancel func()

	tracker    *OutputTracker
	onOutput   OutputFunc
	onProgress ProgressFunc
	logger     *log.Logger

	mu       sync.RWMutex
	status   Status
	exitCode int
	exited   chan struct{}

	writeMu sync.Mutex
	readers sync.WaitGroup
}

// PID returns the OS process ID, or -1 if not started.
func (p *Process) PID() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return -1
	}
	return p.cmd.Process.Pid
}

// Status returns the current process status. Thread-safe.
func (p *Process) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

func (p *Process) setStatus(s Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = s
}

// Tracker returns the console output tracker.
func (p *Process) Tracker() *OutputTracker {
	return p.tracker
}

// Exited is closed once the process has exited and its pipes are drained.
func (p *Process) Exited() <-chan struct{} {
	return p.exited
}

// HasExited reports whether the process has exited.
func (p *Process) HasExited() bool {
	select {
	case <-p.exited:
		return true
	default:
		return false
	}
}

// ExitCode returns the exit code. It is only valid after exit.
func (p *Process) ExitCode() (int, error) {
	if !p.HasExited() {
		return 0, ErrNotExited
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.exitCode, nil
}

// WriteCommand sends one command line to the engine.
func (p *Process) WriteCommand(line string) error {
	return p.WriteCommandRedacted(line, line)
}

// WriteCommandRedacted sends line but logs logLine in its place, so that
// credentials never reach the debug log.
func (p *Process) WriteCommandRedacted(line, logLine string) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if p.HasExited() {
		return ErrExited
	}

	p.logger.Debug(log.CatProcess, "Writing command", "command", logLine)
	if _, err := io.WriteString(p.stdin, line+"\n"); err != nil {
		if p.HasExited() {
			return ErrExited
		}
		return fmt.Errorf("writing command: %w", err)
	}
	return nil
}

// Interrupt asks the engine to cancel the transfer in progress. The engine
// keeps running and reports the cancellation through its log.
func (p *Process) Interrupt() error {
	if p.HasExited() || p.cmd.Process == nil {
		return nil
	}
	p.logger.Debug(log.CatProcess, "Interrupting transfer", "pid", p.PID())
	if err := p.cmd.Process.Signal(os.Interrupt); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("interrupting engine: %w", err)
	}
	return nil
}

// Terminate force-kills the engine. It is a no-op once the process exited.
func (p *Process) Terminate() error {
	p.mu.Lock()
	if p.status.IsTerminal() {
		p.mu.Unlock()
		return nil
	}
	p.status = StatusKilled
	p.mu.Unlock()

	p.logger.Warn(log.CatProcess, "Killing engine", "pid", p.PID())
	err := p.cmd.Process.Kill()
	p.cancel()
	if err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("killing engine: %w", err)
	}
	return nil
}

// Close asks the engine to exit, waits up to grace for it to do so, and
// kills it otherwise.
func (p *Process) Close(grace time.Duration) error {
	defer p.cancel()

	if p.HasExited() {
		return nil
	}

	if err := p.WriteCommand("exit"); err != nil {
		p.logger.ErrorErr(log.CatProcess, "Failed to send exit", err)
	}
	_ = p.stdin.Close()

	select {
	case <-p.exited:
		return nil
	case <-time.After(grace):
	}

	p.logger.Warn(log.CatProcess, "Engine did not exit in time", "grace", grace)
	err := p.Terminate()

	select {
	case <-p.exited:
	case <-time.After(killWait):
		p.logger.Error(log.CatProcess, "Engine pipes still open after kill", "pid", p.PID())
	}
	return err
}

func (p *Process) startReaders() {
	p.readers.Add(2)
	go p.readPipe(p.stdout, StreamStdout)
	go p.readPipe(p.stderr, StreamStderr)
	go p.waitForExit()
}

// readPipe splits a console pipe into lines, diverting progress records.
func (p *Process) readPipe(r io.Reader, stream Stream) {
	defer p.readers.Done()

	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		if stream == StreamStdout {
			if rec, ok := ParseProgressLine(line); ok {
				if p.onProgress != nil {
					p.onProgress(rec)
				}
				continue
			}
		}

		p.tracker.Append(line, stream)
		if p.onOutput != nil {
			p.onOutput(line, stream)
		}
	}
	if err := scanner.Err(); err != nil {
		p.logger.Debug(log.CatProcess, "pipe read error", "stream", stream, "error", err)
	}
}

// waitForExit reaps the process once both pipes reached EOF.
func (p *Process) waitForExit() {
	p.readers.Wait()
	err := p.cmd.Wait()

	code := -1
	if p.cmd.ProcessState != nil {
		code = p.cmd.ProcessState.ExitCode()
	}

	p.mu.Lock()
	p.exitCode = code
	if p.status != StatusKilled {
		p.status = StatusExited
	}
	status := p.status
	p.mu.Unlock()

	if err != nil {
		p.logger.Debug(log.CatProcess, "Engine exited with error", "status", status, "exitCode", code, "error", err)
	} else {
		p.logger.Info(log.CatProcess, "Engine exited", "exitCode", code)
	}
	close(p.exited)
}
