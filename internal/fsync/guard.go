// Package fsync keeps folder pairs in sync through one shared engine session.
package fsync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/zjrosen/fsync/internal/log"
	"github.com/zjrosen/fsync/internal/session"
)

// Guard serializes every use of one session. The session is opened lazily
// and replaced after an abort or engine crash.
type Guard struct {
	mu         sync.Mutex
	newSession func() *session.Session
	options    session.SessionOptions
	hooks      []func(*session.Session)
	current    atomic.Pointer[session.Session]
	logger     *log.Logger
}

// NewGuard creates a guard that builds sessions with newSession and opens
// them with opts.
func NewGuard(newSession func() *session.Session, opts session.SessionOptions, logger *log.Logger) *Guard {
	return &Guard{newSession: newSession, options: opts, logger: logger}
}

// OnSession registers fn to run on every new session before it opens.
// Register hooks before the first Do.
func (g *Guard) OnSession(fn func(*session.Session)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hooks = append(g.hooks, fn)
}

// Do runs fn with exclusive use of an open session.
func (g *Guard) Do(ctx context.Context, fn func(ctx context.Context, s *session.Session) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, err := g.connectLocked(ctx)
	if err != nil {
		return err
	}
	return fn(ctx, s)
}

// Connect opens the session if it is not open yet.
func (g *Guard) Connect(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	_, err := g.connectLocked(ctx)
	return err
}

// Reconnect drops the current session and opens a new one.
func (g *Guard) Reconnect(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.disposeLocked()
	_, err := g.connectLocked(ctx)
	return err
}

// Connected reports whether an open session is held.
func (g *Guard) Connected() bool {
	s := g.current.Load()
	return s != nil && s.Opened()
}

// Abort kills the engine of the current session without waiting for the
// operation holding the guard. Safe to call from any goroutine. Without an
// open session there is nothing to abort.
func (g *Guard) Abort() error {
	s := g.current.Load()
	if s == nil {
		return nil
	}
	if err := s.Abort(); err != nil && !errors.Is(err, session.ErrNotOpened) {
		return err
	}
	return nil
}

// Close disposes the current session.
func (g *Guard) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.disposeLocked()
	return nil
}

func (g *Guard) connectLocked(ctx context.Context) (*session.Session, error) {
	if s := g.current.Load(); s != nil {
		if s.Opened() {
			return s, nil
		}
		g.logger.Info(log.CatSync, "Session lost, reconnecting", "session", s.ID())
		g.disposeLocked()
	}

	s := g.newSession()
	for _, hook := range g.hooks {
		hook(s)
	}
	g.current.Store(s)

	if err := s.Open(ctx, g.options); err != nil {
		g.disposeLocked()
		return nil, err
	}
	return s, nil
}

func (g *Guard) disposeLocked() {
	s := g.current.Swap(nil)
	if s == nil {
		return
	}
	if err := s.Dispose(); err != nil {
		g.logger.ErrorErr(log.CatSync, "Disposing session failed", err, "session", s.ID())
	}
}
