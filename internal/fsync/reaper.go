package fsync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/zjrosen/fsync/internal/log"
)

// killable is the part of a process the reaper uses.
type killable interface {
	NameWithContext(ctx context.Context) (string, error)
	KillWithContext(ctx context.Context) error
}

type runningProcess struct {
	pid  int32
	proc killable
}

// Reaper kills engine processes left behind by crashed sessions.
type Reaper struct {
	executable string
	logger     *log.Logger
	list       func(ctx context.Context) ([]runningProcess, error)
}

// NewReaper creates a reaper for processes running executable.
func NewReaper(executable string, logger *log.Logger) *Reaper {
	return &Reaper{executable: executable, logger: logger, list: listProcesses}
}

func listProcesses(ctx context.Context) ([]runningProcess, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing processes: %w", err)
	}
	out := make([]runningProcess, 0, len(procs))
	for _, p := range procs {
		out = append(out, runningProcess{pid: p.Pid, proc: p})
	}
	return out, nil
}

// Reap kills every process running the engine executable, except this
// process, and returns how many it killed.
func (r *Reaper) Reap(ctx context.Context) (int, error) {
	procs, err := r.list(ctx)
	if err != nil {
		return 0, err
	}

	self := int32(os.Getpid()) // #nosec G115 -- pids fit in int32
	want := engineName(r.executable)
	killed := 0
	var errs []error
	for _, p := range procs {
		if p.pid == self {
			continue
		}
		name, err := p.proc.NameWithContext(ctx)
		if err != nil || engineName(name) != want {
			continue
		}
		if err := p.proc.KillWithContext(ctx); err != nil {
			r.logger.ErrorErr(log.CatProcess, "Failed to kill engine", err, "pid", p.pid)
			errs = append(errs, fmt.Errorf("killing %d: %w", p.pid, err))
			continue
		}
		r.logger.Info(log.CatProcess, "Killed engine", "pid", p.pid, "name", name)
		killed++
	}
	return killed, errors.Join(errs...)
}

// engineName reduces an executable path, in either slash style, to a
// lower-case name without the .exe or .com extension.
func engineName(executable string) string {
	name := strings.ToLower(executable)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	for _, ext := range []string{".exe", ".com"} {
		name = strings.TrimSuffix(name, ext)
	}
	return name
}
