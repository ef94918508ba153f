package fsync

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/fsync/internal/config"
	"github.com/zjrosen/fsync/internal/log"
	"github.com/zjrosen/fsync/internal/session"
	"github.com/zjrosen/fsync/internal/tracing"
)

// Syncer runs actions on a set of folder pairs sharing one session.
type Syncer struct {
	env    Env
	pairs  []*Pair
	reaper *Reaper
}

// NewSyncer creates pairs from cfgs. Engine output and transfers of every
// session the guard opens are printed and recorded.
func NewSyncer(cfgs []config.FolderPairConfig, env Env, reaper *Reaper) *Syncer {
	if env.Tracer == nil {
		env.Tracer = noop.NewTracerProvider().Tracer("fsync")
	}
	s := &Syncer{env: env, reaper: reaper}
	for _, cfg := range cfgs {
		s.pairs = append(s.pairs, NewPair(cfg, env))
	}

	env.Guard.OnSession(func(sess *session.Session) {
		sess.OnOutputDataReceived(func(ev session.OutputEvent) {
			env.Printer.Muted("%s", ev.Line)
		})
		env.Recorder.Attach(sess)
	})
	return s
}

// Pairs returns the pairs in configuration order.
func (s *Syncer) Pairs() []*Pair {
	return s.pairs
}

// Pair returns the pair called name.
func (s *Syncer) Pair(name string) (*Pair, bool) {
	for _, p := range s.pairs {
		if p.Name() == name {
			return p, true
		}
	}
	return nil, false
}

// Start connects and starts realtime uploads for the pairs configured to.
func (s *Syncer) Start(ctx context.Context) error {
	for _, p := range s.pairs {
		if err := p.Start(ctx); err != nil {
			return fmt.Errorf("starting %s: %w", p.Name(), err)
		}
	}
	return nil
}

// Run looks up cmd and runs it on pair.
func (s *Syncer) Run(ctx context.Context, cmd string, pair *Pair) error {
	a, err := LookupAction(cmd)
	if err != nil {
		return err
	}
	if pair == nil && !a.Global {
		return fmt.Errorf("%s needs a folder pair", a.Name)
	}
	out := s.env.Printer
	if pair != nil {
		out = pair.out
	}
	out.Info("%s", a.Name)
	s.env.Logger.Debug(log.CatSync, "Running action", "action", a.Name, "pair", pairName(pair))

	ctx, span := tracing.StartAction(ctx, s.env.Tracer, pairName(pair), a.Name)
	err = a.Run(ctx, s, pair)
	tracing.End(span, err)
	return err
}

// Menu reads commands from in until "q" or the end of input. A line may
// start with a pair name to pick the pair; otherwise the first pair is used.
func (s *Syncer) Menu(ctx context.Context, in io.Reader) error {
	return s.MenuFor(ctx, in, nil)
}

// MenuFor is Menu with pair as the default pair.
func (s *Syncer) MenuFor(ctx context.Context, in io.Reader, pair *Pair) error {
	if pair == nil && len(s.pairs) > 0 {
		pair = s.pairs[0]
	}
	scanner := bufio.NewScanner(in)
	for {
		s.env.Printer.Prompt(">")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "q":
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		}

		target, cmd := s.splitCommand(line, pair)
		err := s.Run(ctx, cmd, target)
		var ambiguous *AmbiguousActionError
		switch {
		case err == nil:
		case errors.Is(err, ErrNoSuchAction), errors.As(err, &ambiguous):
			s.env.Printer.Info("%v", err)
		default:
			s.env.Printer.Failure(err)
		}
	}
}

func (s *Syncer) splitCommand(line string, pair *Pair) (*Pair, string) {
	if name, cmd, ok := strings.Cut(line, " "); ok {
		if p, found := s.Pair(name); found {
			return p, strings.TrimSpace(cmd)
		}
	}
	return pair, line
}

// Help prints every action with its alias.
func (s *Syncer) Help() {
	for _, a := range actions {
		s.env.Printer.Info("%-36s %-8s %s", a.Name, a.Alias(), a.Summary)
	}
}

// Reconnect drops the session and opens a new one. Verified remote
// directories are checked again afterwards.
func (s *Syncer) Reconnect(ctx context.Context) error {
	s.env.Verifier.Reset(ctx)
	return s.env.Guard.Reconnect(ctx)
}

// Abort kills the engine of the session in use.
func (s *Syncer) Abort() error {
	return s.env.Guard.Abort()
}

// KillAllSessions kills every engine process on this machine.
func (s *Syncer) KillAllSessions(ctx context.Context) error {
	if s.reaper == nil {
		return errors.New("no reaper configured")
	}
	n, err := s.reaper.Reap(ctx)
	s.env.Printer.Info("Killed %d engine processes", n)
	return err
}

// Close stops realtime uploads and disposes the session.
func (s *Syncer) Close() error {
	for _, p := range s.pairs {
		p.StopRealtime()
	}
	return s.env.Guard.Close()
}

func pairName(p *Pair) string {
	if p == nil {
		return ""
	}
	return p.Name()
}
