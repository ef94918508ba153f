package testutil

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/fsync/internal/process"
)

// Builder accumulates a fake engine script.
type Builder struct {
	t      *testing.T
	script EngineScript
}

// NewEngine starts a script for a fake engine that records every command
// it reads.
func NewEngine(t *testing.T) *Builder {
	t.Helper()
	return &Builder{t: t, script: EngineScript{
		RecordPath: filepath.Join(t.TempDir(), "commands.txt"),
	}}
}

// WithResponse answers the next command, which must start with match.
func (b *Builder) WithResponse(match string, opts ...ResponseOption) *Builder {
	resp := EngineResponse{Match: match}
	for _, opt := range opts {
		opt(&resp)
	}
	b.script.Responses = append(b.script.Responses, resp)
	return b
}

// WithHome sets the answer to pwd.
func (b *Builder) WithHome(home string) *Builder {
	b.script.Home = home
	return b
}

// WithBanner prints lines at startup.
func (b *Builder) WithBanner(lines ...string) *Builder {
	b.script.Banner = append(b.script.Banner, lines...)
	return b
}

// WithOpenFailure makes the open command fail with message.
func (b *Builder) WithOpenFailure(message string) *Builder {
	b.script.OpenFailure = message
	return b
}

// WithoutLog makes the engine exit with code before creating its log.
func (b *Builder) WithoutLog(code int) *Builder {
	b.script.NoLog = true
	b.script.ExitCode = code
	return b
}

// Silent makes the engine never create its log and never exit.
func (b *Builder) Silent() *Builder {
	b.script.Silent = true
	return b
}

// Build writes the script and returns a command factory starting the fake
// engine. The package's TestMain must call RunFakeEngineIfRequested.
func (b *Builder) Build() process.CommandFactoryFunc {
	b.t.Helper()
	data, err := json.Marshal(b.script)
	require.NoError(b.t, err)

	path := filepath.Join(b.t.TempDir(), "engine.json")
	require.NoError(b.t, os.WriteFile(path, data, 0o600))

	return func(ctx context.Context, _ string, args ...string) *exec.Cmd {
		cmd := exec.CommandContext(ctx, os.Args[0], args...) // #nosec G204 -- re-executes the test binary
		cmd.Env = append(os.Environ(), EngineScriptEnv+"="+path)
		return cmd
	}
}

// Commands returns the command lines the engine has read so far.
func (b *Builder) Commands() []string {
	b.t.Helper()
	data, err := os.ReadFile(b.script.RecordPath)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(b.t, err)
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}
