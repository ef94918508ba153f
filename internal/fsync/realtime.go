package fsync

import (
	"context"
	"os"
	"path"
	"path/filepath"

	"github.com/zjrosen/fsync/internal/flags"
	"github.com/zjrosen/fsync/internal/log"
	"github.com/zjrosen/fsync/internal/session"
	"github.com/zjrosen/fsync/internal/watcher"
)

type realtime struct {
	w      *watcher.Watcher
	cancel context.CancelFunc
	done   chan struct{}
}

// StartRealtime uploads local changes as they happen, until StopRealtime.
// Starting twice is a no-op.
func (p *Pair) StartRealtime(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.realtime != nil {
		return nil
	}

	cfg := watcher.Config{
		Root:         p.cfg.Local,
		Recursive:    p.cfg.IncludeSubdirectories,
		DebounceDur:  p.env.Watcher.Debounce,
		SkipSuffixes: p.env.Watcher.SkipSuffixes,
		SkipContains: p.env.Watcher.SkipContains,
	}
	if p.cfg.SingleFile() {
		cfg.Root = filepath.Dir(p.cfg.LocalFile)
		cfg.Recursive = false
	}

	w, err := watcher.New(cfg, p.env.Logger)
	if err != nil {
		return err
	}
	changes, err := w.Start()
	if err != nil {
		_ = w.Stop()
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	rt := &realtime{w: w, cancel: cancel, done: make(chan struct{})}
	p.realtime = rt
	go p.runRealtime(ctx, rt, changes)

	p.out.Info("Realtime started on %s", cfg.Root)
	return nil
}

// StopRealtime stops realtime uploads and waits for the upload in flight.
func (p *Pair) StopRealtime() {
	p.mu.Lock()
	rt := p.realtime
	p.realtime = nil
	p.mu.Unlock()

	if rt == nil {
		return
	}
	rt.cancel()
	_ = rt.w.Stop()
	<-rt.done
	p.out.Info("Realtime stopped")
}

// RealtimeRunning reports whether realtime uploads are on.
func (p *Pair) RealtimeRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.realtime != nil
}

// withoutRealtime pauses realtime uploads around fn.
func (p *Pair) withoutRealtime(ctx context.Context, fn func() error) error {
	wasRunning := p.RealtimeRunning()
	if wasRunning {
		p.StopRealtime()
	}
	err := fn()
	if wasRunning {
		if startErr := p.StartRealtime(ctx); startErr != nil && err == nil {
			err = startErr
		}
	}
	return err
}

func (p *Pair) runRealtime(ctx context.Context, rt *realtime, changes <-chan []string) {
	defer close(rt.done)
	for {
		select {
		case <-ctx.Done():
			return
		case batch := <-changes:
			p.uploadBatch(ctx, batch)
		}
	}
}

func (p *Pair) uploadBatch(ctx context.Context, batch []string) {
	if p.cfg.SingleFile() {
		batch = only(batch, filepath.Base(p.cfg.LocalFile))
	}
	if len(batch) == 0 {
		return
	}

	err := p.do(ctx, true, func(ctx context.Context, s *session.Session) error {
		for _, rel := range batch {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := p.upload(ctx, s, rel); err != nil && !session.IsRemote(err) {
				return err
			}
		}
		return nil
	})
	if err != nil && ctx.Err() == nil {
		p.env.Logger.ErrorErr(log.CatSync, "Realtime upload failed", err, "pair", p.cfg.Name)
		p.out.Failure(err)
	}
}

// upload sends one changed file. Failures the server reports are printed
// and returned; the caller carries on with the next file.
func (p *Pair) upload(ctx context.Context, s *session.Session, rel string) error {
	localPath := filepath.Join(p.cfg.Local, filepath.FromSlash(rel))
	remotePath := session.CombinePaths(p.cfg.Remote, rel)
	if p.cfg.SingleFile() {
		localPath, remotePath = p.cfg.LocalFile, p.cfg.RemoteFile
	}

	if info, err := os.Stat(localPath); err != nil || info.IsDir() {
		return nil
	}

	p.out.Info("Uploading %s to %s", localPath, remotePath)
	if p.env.Flags.Enabled(flags.FlagVerifyRemote) && p.env.Verifier != nil {
		if err := p.env.Verifier.Verify(ctx, s, path.Dir(remotePath)); err != nil {
			p.out.Failure(err)
			return err
		}
	}

	res, err := s.PutFiles(ctx, localPath, remotePath, false, session.NewTransferOptions())
	if err != nil {
		p.out.Failure(err)
		return err
	}
	if !res.IsSuccess() {
		p.out.Info("FAILED!")
		for _, f := range res.Failures {
			p.out.Failure(f)
		}
		for _, ev := range res.Transfers {
			p.out.Transfer(ev)
		}
		return res.Check()
	}
	for _, ev := range res.Transfers {
		p.out.Transfer(ev)
	}
	return nil
}

func only(batch []string, name string) []string {
	for _, rel := range batch {
		if rel == name {
			return []string{rel}
		}
	}
	return nil
}
