package fsync

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"github.com/zjrosen/fsync/internal/session"
)

// ErrNoSuchAction is returned by LookupAction when nothing matches.
var ErrNoSuchAction = errors.New("No such command") //nolint:staticcheck // printed to the user as is

// AmbiguousActionError is returned by LookupAction when several actions
// match.
type AmbiguousActionError struct {
	Names []string
}

func (e *AmbiguousActionError) Error() string {
	return "Did you mean: " + strings.Join(e.Names, " / ")
}

// Action is a named operation on a pair.
type Action struct {
	Name    string
	Summary string
	Aliases []string
	// Global actions need no pair.
	Global  bool
	Run     func(ctx context.Context, s *Syncer, p *Pair) error
}

// Alias is the initials of the words in the name plus its digits, such as
// "strp" for sync-to-remote-preview.
func (a Action) Alias() string {
	var b strings.Builder
	for _, word := range strings.Split(a.Name, "-") {
		for i, r := range word {
			if i == 0 || unicode.IsDigit(r) {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}

func (a Action) matches(cmd string) bool {
	if strings.EqualFold(a.Name, cmd) || strings.EqualFold(a.Alias(), cmd) {
		return true
	}
	for _, alias := range a.Aliases {
		if strings.EqualFold(alias, cmd) {
			return true
		}
	}
	return false
}

func syncAction(name, summary string, mode session.SynchronizationMode, preview, allowDelete bool) Action {
	return Action{Name: name, Summary: summary, Run: func(ctx context.Context, _ *Syncer, p *Pair) error {
		return p.Sync(ctx, mode, preview, allowDelete)
	}}
}

// actions is filled in init because help lists it.
var actions []Action

func init() {
	actions = []Action{
		syncAction("sync-to-remote", "Upload local changes", session.SynchronizeRemote, false, false),
		syncAction("sync-to-remote-preview", "Show what sync-to-remote would do", session.SynchronizeRemote, true, false),
		syncAction("sync-to-remote-with-delete", "Upload local changes and delete remote files missing locally", session.SynchronizeRemote, false, true),
		syncAction("sync-to-remote-with-delete-preview", "Show what sync-to-remote-with-delete would do", session.SynchronizeRemote, true, true),
		{Name: "sync-to-local", Summary: "Back up, then download remote changes", Run: func(ctx context.Context, _ *Syncer, p *Pair) error {
			return p.SyncToLocal(ctx, false)
		}},
		{Name: "sync-to-local-with-delete", Summary: "Back up, then download remote changes and delete local files missing remotely", Run: func(ctx context.Context, _ *Syncer, p *Pair) error {
			return p.SyncToLocal(ctx, true)
		}},
		syncAction("sync-to-local-preview", "Show what sync-to-local would do", session.SynchronizeLocal, true, false),
		syncAction("sync-to-local-with-delete-preview", "Show what sync-to-local-with-delete would do", session.SynchronizeLocal, true, true),
		syncAction("sync-preview", "Show what a two-way sync would do", session.SynchronizeBoth, true, false),
		{Name: "copy-overwrite-local", Summary: "Back up, then download every remote file", Run: func(ctx context.Context, _ *Syncer, p *Pair) error {
			return p.CopyOverwriteLocal(ctx)
		}},
		{Name: "backup-local", Summary: "Copy recently changed local files to the backup directory", Run: func(_ context.Context, _ *Syncer, p *Pair) error {
			return p.BackupLocal()
		}},
		{Name: "start-realtime", Summary: "Upload local changes as they happen", Run: func(ctx context.Context, _ *Syncer, p *Pair) error {
			return p.StartRealtime(ctx)
		}},
		{Name: "stop-realtime", Summary: "Stop realtime uploads", Run: func(_ context.Context, _ *Syncer, p *Pair) error {
			p.StopRealtime()
			return nil
		}},
		{Name: "list-remote", Summary: "List the remote files of the pair", Run: func(ctx context.Context, _ *Syncer, p *Pair) error {
			return p.ListRemote(ctx)
		}},
		{Name: "connect", Global: true, Summary: "Drop the session and open a new one", Run: func(ctx context.Context, s *Syncer, _ *Pair) error {
			return s.Reconnect(ctx)
		}},
		{Name: "disconnect", Global: true, Summary: "Abort the session", Run: func(_ context.Context, s *Syncer, _ *Pair) error {
			return s.env.Guard.Abort()
		}},
		{Name: "kill-all-sessions", Global: true, Summary: "Kill every running engine process", Run: func(ctx context.Context, s *Syncer, _ *Pair) error {
			return s.KillAllSessions(ctx)
		}},
		{Name: "help", Global: true, Summary: "List the commands", Aliases: []string{"?"}, Run: func(_ context.Context, s *Syncer, _ *Pair) error {
			s.Help()
			return nil
		}},
	}
}

// Actions returns every action in menu order.
func Actions() []Action {
	return append([]Action(nil), actions...)
}

// LookupAction finds the action named cmd, by full name or alias, ignoring
// case.
func LookupAction(cmd string) (Action, error) {
	var found []Action
	for _, a := range actions {
		if a.matches(cmd) {
			found = append(found, a)
		}
	}
	switch len(found) {
	case 0:
		return Action{}, ErrNoSuchAction
	case 1:
		return found[0], nil
	}
	names := make([]string, len(found))
	for i, a := range found {
		names[i] = a.Name
	}
	return Action{}, &AmbiguousActionError{Names: names}
}
