package fsync

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/zjrosen/fsync/internal/cachemanager"
	"github.com/zjrosen/fsync/internal/log"
	"github.com/zjrosen/fsync/internal/session"
)

type sessionKey struct{}

// DirVerifier makes sure remote directories exist before files are uploaded
// into them. Directories known to exist stay cached while uploads keep
// landing in them.
type DirVerifier struct {
	dirs   *cachemanager.ReadThroughCache[string, bool]
	ttl    time.Duration
	logger *log.Logger
}

// NewDirVerifier creates a verifier remembering directories in cache for ttl.
// A nil cache checks the server every time.
func NewDirVerifier(cache cachemanager.CacheManager[string, bool], ttl time.Duration, logger *log.Logger) *DirVerifier {
	v := &DirVerifier{ttl: ttl, logger: logger}
	v.dirs = cachemanager.NewReadThroughCache(cache, v.load, false)
	return v
}

// Verify ensures dir exists on the server of s, creating it and any missing
// parents.
func (v *DirVerifier) Verify(ctx context.Context, s *session.Session, dir string) error {
	ctx = context.WithValue(ctx, sessionKey{}, s)
	_, err := v.dirs.GetWithRefresh(ctx, dir, v.ttl)
	return err
}

// Reset forgets every verified directory. Called when the server side may
// have changed under us: after a reconnect or a sync that deletes.
func (v *DirVerifier) Reset(ctx context.Context) {
	if v == nil {
		return
	}
	if err := v.dirs.Purge(ctx); err != nil {
		v.logger.ErrorErr(log.CatCache, "Failed to reset verified directories", err)
	}
}

func (v *DirVerifier) load(ctx context.Context, dir string) (bool, error) {
	s, _ := ctx.Value(sessionKey{}).(*session.Session)
	if err := v.ensure(ctx, s, dir); err != nil {
		return false, err
	}
	return true, nil
}

func (v *DirVerifier) ensure(ctx context.Context, s *session.Session, dir string) error {
	_, err := s.ListDirectory(ctx, dir)
	if err == nil || !session.IsRemote(err) {
		return err
	}

	err = s.CreateDirectory(ctx, dir)
	if err == nil {
		v.logger.Info(log.CatSync, "Created remote directory", "dir", dir)
		return nil
	}
	if !session.IsRemote(err) {
		return err
	}

	trimmed := strings.TrimSuffix(dir, "/")
	parent := path.Dir(trimmed)
	if trimmed == "" || parent == trimmed || parent == "." {
		return err
	}
	if err := v.ensure(ctx, s, parent); err != nil {
		return err
	}
	if err := s.CreateDirectory(ctx, dir); err != nil {
		return err
	}
	v.logger.Info(log.CatSync, "Created remote directory", "dir", dir)
	return nil
}
