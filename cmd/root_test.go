package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/fsync/internal/config"
	"github.com/zjrosen/fsync/internal/log"
	"github.com/zjrosen/fsync/internal/session"
	"github.com/zjrosen/fsync/internal/testutil"
)

func TestMain(m *testing.M) {
	testutil.RunFakeEngineIfRequested()
	os.Exit(m.Run())
}

// writeConfig writes a config file pointing at the fake engine, with the
// history database next to it.
func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`engine:
  executable: fake-engine
  timeout: 5s
  poll_interval: 10ms
session:
  host: example.com
  user: user
  password: secret
  host_key: ssh-ed25519 255 abc
history:
  path: %s
%s`, filepath.Join(dir, "history.db"), extra)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// execute runs the root command with args against engine, which may be nil
// for commands that never open a session.
func execute(t *testing.T, engine *testutil.Builder, args ...string) (string, error) {
	t.Helper()
	sessionOptions = nil
	if engine != nil {
		sessionOptions = []session.Option{session.WithCommandFactory(engine.Build())}
	}
	t.Cleanup(func() { sessionOptions = nil })

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestSetDefaults_UnmarshalToDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v, config.Defaults())

	var c config.Config
	require.NoError(t, v.Unmarshal(&c))

	defaults := config.Defaults()
	require.Equal(t, defaults.Engine, c.Engine)
	require.Equal(t, defaults.Session, c.Session)
	require.Equal(t, defaults.Watcher, c.Watcher)
	require.Equal(t, defaults.Cache, c.Cache)
	require.Equal(t, defaults.History, c.History)
	require.Equal(t, defaults.Tracing, c.Tracing)
	require.Equal(t, defaults.Flags, c.Flags)
	require.NoError(t, config.Validate(c))
}

func TestInitConfig_ReadsConfigFile(t *testing.T) {
	path := writeConfig(t, `folder_pairs:
  - name: site
    local: /home/me/site
    remote: /var/www
`)

	cfgFile = path
	t.Cleanup(func() { cfgFile = "" })
	initConfig()

	require.Equal(t, "fake-engine", cfg.Engine.Executable)
	require.Equal(t, "example.com", cfg.Session.Host)
	require.Len(t, cfg.FolderPairs, 1)
	require.Equal(t, "/var/www", cfg.FolderPairs[0].Remote)
	require.Equal(t, config.Defaults().Watcher, cfg.Watcher, "missing sections keep their defaults")
	require.Equal(t, path, configPath())
}

func TestNewLogger(t *testing.T) {
	logger, err := newLogger(config.Config{}, runtimeOptions{})
	require.NoError(t, err)
	logger.Info(log.CatConfig, "dropped")

	path := filepath.Join(t.TempDir(), "debug.log")
	logger, err = newLogger(config.Config{DebugLog: "/unused"}, runtimeOptions{debugLog: path})
	require.NoError(t, err)
	logger.Info(log.CatConfig, "written")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "[config] written")
}

func TestNewRuntime(t *testing.T) {
	base := func(t *testing.T) config.Config {
		c := config.Defaults()
		c.History.Path = filepath.Join(t.TempDir(), "history.db")
		return c
	}

	t.Run("history enabled", func(t *testing.T) {
		rt, err := newRuntime(base(t), runtimeOptions{out: &bytes.Buffer{}})
		require.NoError(t, err)
		defer rt.Close()
		require.NotNil(t, rt.history)
		require.NotNil(t, rt.syncer)
	})

	t.Run("history disabled", func(t *testing.T) {
		c := base(t)
		c.Flags = map[string]bool{"history": false}
		rt, err := newRuntime(c, runtimeOptions{out: &bytes.Buffer{}})
		require.NoError(t, err)
		defer rt.Close()
		require.Nil(t, rt.history)
		_, err = os.Stat(c.History.Path)
		require.True(t, os.IsNotExist(err))
	})

	t.Run("invalid config", func(t *testing.T) {
		c := base(t)
		c.Engine.Timeout = -1
		_, err := newRuntime(c, runtimeOptions{out: &bytes.Buffer{}})
		require.ErrorContains(t, err, "invalid configuration")
	})

	t.Run("unknown protocol", func(t *testing.T) {
		c := base(t)
		c.Session.Protocol = "gopher"
		_, err := newRuntime(c, runtimeOptions{out: &bytes.Buffer{}})
		require.ErrorContains(t, err, "unknown protocol")
	})
}

func TestPairAdd_SavesToConfig(t *testing.T) {
	path := writeConfig(t, "")
	local := t.TempDir()

	out, err := execute(t, nil, "--config", path, "pair", "add", "site", local, "/var/www")
	require.NoError(t, err)
	require.Contains(t, out, "Added folder pair site")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "name: site")
	require.Contains(t, string(data), "remote: /var/www")
	require.Contains(t, string(data), "host: example.com", "other settings are kept")

	out, err = execute(t, nil, "--config", path, "pair", "list")
	require.NoError(t, err)
	require.Contains(t, out, "site")
	require.Contains(t, out, local+" <-> /var/www")

	_, err = execute(t, nil, "--config", path, "pair", "add", "site", local, "/srv")
	require.ErrorContains(t, err, "duplicate name")
}

func TestActions_ListsEveryAction(t *testing.T) {
	out, err := execute(t, nil, "--config", writeConfig(t, ""), "actions")
	require.NoError(t, err)
	require.Contains(t, out, "sync-to-remote-with-delete-preview")
	require.Contains(t, out, "kill-all-sessions")
}
