package fsync

import (
	"bytes"
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/fsync/internal/cachemanager"
	"github.com/zjrosen/fsync/internal/config"
	"github.com/zjrosen/fsync/internal/flags"
	"github.com/zjrosen/fsync/internal/history"
	"github.com/zjrosen/fsync/internal/log"
	"github.com/zjrosen/fsync/internal/session"
	"github.com/zjrosen/fsync/internal/testutil"
)

func TestMain(m *testing.M) {
	testutil.RunFakeEngineIfRequested()
	os.Exit(m.Run())
}

// lockedBuffer collects printer output written from several goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type harness struct {
	env    Env
	out    *lockedBuffer
	engine *testutil.Builder
	store  *history.Store
}

func testSessionOptions() session.SessionOptions {
	return session.SessionOptions{
		Protocol:              session.ProtocolSFTP,
		HostName:              "example.com",
		UserName:              "user",
		Password:              "secret",
		SSHHostKeyFingerprint: "ssh-ed25519 255 abc",
	}
}

func newGuard(t *testing.T, engine *testutil.Builder) *Guard {
	t.Helper()
	factory := engine.Build()
	cfg := session.DefaultConfig()
	cfg.ExecutablePath = "fake-engine"
	cfg.Timeout = 5 * time.Second
	cfg.PollInterval = 10 * time.Millisecond

	g := NewGuard(func() *session.Session {
		return session.New(cfg, session.WithCommandFactory(factory))
	}, testSessionOptions(), log.Discard())
	t.Cleanup(func() { _ = g.Close() })
	return g
}

func newHarness(t *testing.T, engine *testutil.Builder) *harness {
	t.Helper()
	conn := testutil.NewTestDB(t)
	require.NoError(t, history.Migrate(context.Background(), conn))
	store := history.NewStore(conn, log.Discard())

	out := &lockedBuffer{}
	logger := log.Discard()
	guard := newGuard(t, engine)
	recorder := NewRecorder(store, logger)
	guard.OnSession(recorder.Attach)

	return &harness{
		env: Env{
			Guard:    guard,
			Printer:  NewPrinter(out),
			Logger:   logger,
			Flags:    flags.New(config.Defaults().Flags),
			Recorder: recorder,
			Verifier: NewDirVerifier(cachemanager.NewInMemoryCacheManager[string, bool]("dirs", time.Minute, time.Minute, logger), time.Minute, logger),
			Watcher:  config.WatcherConfig{Debounce: 20 * time.Millisecond, SkipSuffixes: []string{".tmp"}, SkipContains: []string{"~"}},
			Now:      func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local) },
		},
		out:    out,
		engine: engine,
		store:  store,
	}
}

func (h *harness) pair(cfg config.FolderPairConfig) *Pair {
	return NewPair(cfg, h.env)
}

// commands returns the engine commands starting with prefix.
func (h *harness) commands(t *testing.T, prefix string) []string {
	t.Helper()
	var out []string
	for _, c := range h.engine.Commands() {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

func (h *harness) history(t *testing.T, pair string) []history.Entry {
	t.Helper()
	entries, err := h.store.Recent(context.Background(), pair, 100)
	require.NoError(t, err)
	return entries
}
