package process

import (
	"context"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/fsync/internal/log"
)

func startShell(t *testing.T, script string, opts ...func(*Builder)) *Process {
	t.Helper()
	b := NewBuilder(context.Background()).
		WithExecutable("/bin/sh", []string{"-c", script}).
		WithLogger(log.Discard())
	for _, opt := range opts {
		opt(b)
	}
	p, err := b.Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Terminate() })
	return p
}

func waitExited(t *testing.T, p *Process) {
	t.Helper()
	select {
	case <-p.Exited():
	case <-time.After(5 * time.Second):
		require.Fail(t, "process did not exit")
	}
}

// TestBuilder_MissingExecutable_ReturnsSpawnError verifies that Build()
// rejects an empty executable path.
func TestBuilder_MissingExecutable_ReturnsSpawnError(t *testing.T) {
	_, err := NewBuilder(context.Background()).Build()

	require.ErrorIs(t, err, ErrSpawn)
	require.Contains(t, err.Error(), "executable path is required")
}

// TestBuilder_NonexistentExecutable_ReturnsSpawnError verifies that start
// failures are reported as spawn errors.
func TestBuilder_NonexistentExecutable_ReturnsSpawnError(t *testing.T) {
	_, err := NewBuilder(context.Background()).
		WithExecutable("/nonexistent/engine", nil).
		Build()

	require.ErrorIs(t, err, ErrSpawn)
	require.Contains(t, err.Error(), "/nonexistent/engine")
}

// TestBuilder_UsesCommandFactory verifies that the factory replaces exec.CommandContext.
func TestBuilder_UsesCommandFactory(t *testing.T) {
	var gotName string
	var gotArgs []string
	factory := func(ctx context.Context, name string, args ...string) *exec.Cmd {
		gotName, gotArgs = name, args
		return exec.CommandContext(ctx, "/bin/echo", "from factory")
	}

	p, err := NewBuilder(context.Background()).
		WithExecutable("engine.com", []string{"/xmllog=log.xml"}).
		WithCommandFactory(factory).
		Build()
	require.NoError(t, err)
	waitExited(t, p)

	require.Equal(t, "engine.com", gotName)
	require.Equal(t, []string{"/xmllog=log.xml"}, gotArgs)
	require.Equal(t, []string{"from factory"}, p.Tracker().Output())
}

// TestProcess_WriteCommand_EchoesThroughOutputHandler verifies the stdin to
// stdout round trip and the output callback.
func TestProcess_WriteCommand_EchoesThroughOutputHandler(t *testing.T) {
	var mu sync.Mutex
	var lines []string
	p := startShell(t, `while read l; do [ "$l" = exit ] && exit 0; echo "got $l"; done`,
		func(b *Builder) {
			b.WithOutputHandler(func(line string, stream Stream) {
				mu.Lock()
				defer mu.Unlock()
				lines = append(lines, stream.String()+":"+line)
			})
		})

	require.Equal(t, StatusRunning, p.Status())
	require.NoError(t, p.WriteCommand("ls"))
	require.NoError(t, p.WriteCommand("pwd"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(lines) == 2
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	require.Equal(t, []string{"stdout:got ls", "stdout:got pwd"}, lines)
	mu.Unlock()

	require.NoError(t, p.Close(time.Second))
	code, err := p.ExitCode()
	require.NoError(t, err)
	require.Equal(t, 0, code)
	require.Equal(t, StatusExited, p.Status())
}

// TestProcess_ExitCode_BeforeExitFails verifies the exit code is only valid after exit.
func TestProcess_ExitCode_BeforeExitFails(t *testing.T) {
	p := startShell(t, `sleep 10`)

	_, err := p.ExitCode()
	require.ErrorIs(t, err, ErrNotExited)
	require.False(t, p.HasExited())
}

// TestProcess_ExitCode_ReportsNonZero verifies exit codes are captured.
func TestProcess_ExitCode_ReportsNonZero(t *testing.T) {
	p := startShell(t, `echo failing; echo oops >&2; exit 3`)
	waitExited(t, p)

	code, err := p.ExitCode()
	require.NoError(t, err)
	require.Equal(t, 3, code)
	require.Equal(t, []string{"failing"}, p.Tracker().Output())
	require.Equal(t, []string{"oops"}, p.Tracker().ErrorOutput())
	require.ErrorIs(t, p.WriteCommand("ls"), ErrExited)
}

// TestProcess_Close_KillsUnresponsiveEngine verifies that Close falls back
// to a kill when the engine ignores exit.
func TestProcess_Close_KillsUnresponsiveEngine(t *testing.T) {
	p := startShell(t, `exec sleep 30`)

	start := time.Now()
	require.NoError(t, p.Close(100*time.Millisecond))
	require.Less(t, time.Since(start), 5*time.Second)
	require.True(t, p.HasExited())
	require.Equal(t, StatusKilled, p.Status())
}

// TestProcess_Interrupt_DoesNotKill verifies that Interrupt delivers a
// signal the engine can handle and keep its own exit code.
func TestProcess_Interrupt_DoesNotKill(t *testing.T) {
	p := startShell(t, `trap 'echo interrupted; exit 5' INT; echo ready; while :; do sleep 0.05; done`)

	require.Eventually(t, func() bool {
		return len(p.Tracker().Output()) > 0
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, p.Interrupt())
	waitExited(t, p)

	code, err := p.ExitCode()
	require.NoError(t, err)
	require.Equal(t, 5, code)
	require.Equal(t, StatusExited, p.Status())
	require.Contains(t, p.Tracker().Output(), "interrupted")
}

// TestProcess_ProgressLinesAreDiverted verifies that progress records go to
// the progress handler and never reach the tracker.
func TestProcess_ProgressLinesAreDiverted(t *testing.T) {
	records := make(chan ProgressRecord, 1)
	p := startShell(t, `printf '!progress\ttransfer\tlocal\t50\t25\t1024\t/tmp\ta b.txt\n'; echo done`,
		func(b *Builder) {
			b.WithProgressHandler(func(r ProgressRecord) { records <- r })
		})
	waitExited(t, p)

	select {
	case r := <-records:
		require.Equal(t, "transfer", r.Operation)
		require.Equal(t, "local", r.Side)
		require.InDelta(t, 0.5, r.OverallProgress, 1e-9)
		require.InDelta(t, 0.25, r.FileProgress, 1e-9)
		require.Equal(t, 1024, r.CPS)
		require.Equal(t, "/tmp", r.Directory)
		require.Equal(t, "a b.txt", r.FileName)
	case <-time.After(time.Second):
		require.Fail(t, "no progress record")
	}
	require.Equal(t, []string{"done"}, p.Tracker().Output())
}

// TestProcess_Terminate_IsIdempotent verifies repeated kills are harmless.
func TestProcess_Terminate_IsIdempotent(t *testing.T) {
	p := startShell(t, `exec sleep 30`)

	require.NoError(t, p.Terminate())
	require.NoError(t, p.Terminate())
	waitExited(t, p)
	require.True(t, strings.Contains(p.Status().String(), "killed"))
}
