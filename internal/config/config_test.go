package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/fsync/internal/log"
	"github.com/zjrosen/fsync/internal/session"
	"github.com/zjrosen/fsync/internal/tracing"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	require.Equal(t, session.DefaultExecutable, cfg.Engine.Executable)
	require.Equal(t, time.Minute, cfg.Engine.Timeout)
	require.True(t, cfg.Engine.DefaultConfiguration)
	require.Equal(t, "sftp", cfg.Session.Protocol)
	require.Equal(t, 100*time.Millisecond, cfg.Watcher.Debounce)
	require.Equal(t, []string{".tmp"}, cfg.Watcher.SkipSuffixes)
	require.Equal(t, []string{"~"}, cfg.Watcher.SkipContains)
	require.Equal(t, 20, cfg.History.Limit)
	require.False(t, cfg.Tracing.Enabled)
	require.Equal(t, "file", cfg.Tracing.Exporter)
	require.True(t, cfg.Flags["history"])
	require.NoError(t, Validate(cfg))
}

func TestDefaultConfigTemplate_MatchesDefaults(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewBufferString(DefaultConfigTemplate())))

	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))

	defaults := Defaults()
	require.Equal(t, defaults.Engine.Executable, cfg.Engine.Executable)
	require.Equal(t, defaults.Engine.Timeout, cfg.Engine.Timeout)
	require.Equal(t, defaults.Engine.ReconnectTime, cfg.Engine.ReconnectTime)
	require.Equal(t, defaults.Session.ServerTimeout, cfg.Session.ServerTimeout)
	require.Equal(t, defaults.Watcher, cfg.Watcher)
	require.Equal(t, defaults.Cache, cfg.Cache)
	require.Equal(t, defaults.Flags, cfg.Flags)
	require.Empty(t, cfg.FolderPairs)
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, WriteDefaultConfig(log.Discard(), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, DefaultConfigTemplate(), string(data))
}

func TestEngineConfig_SessionConfig(t *testing.T) {
	e := EngineConfig{
		Executable:       "/opt/engine.com",
		Arguments:        []string{"/privatekey=x"},
		Timeout:          30 * time.Second,
		ReconnectTime:    0,
		XMLLog:           "/tmp/log.xml",
		IniFile:          "/etc/engine.ini",
		RawConfiguration: map[string]string{"a": "b"},
	}

	cfg := e.SessionConfig()
	require.Equal(t, "/opt/engine.com", cfg.ExecutablePath)
	require.Equal(t, []string{"/privatekey=x"}, cfg.AdditionalArguments)
	require.Equal(t, 30*time.Second, cfg.Timeout)
	require.Zero(t, cfg.ReconnectTime)
	require.Equal(t, "/tmp/log.xml", cfg.XMLLogPath)
	require.Equal(t, "/etc/engine.ini", cfg.IniFilePath)
	require.Equal(t, "b", cfg.RawConfiguration["a"])
}

func TestSessionConfig_Options(t *testing.T) {
	tests := []struct {
		name    string
		cfg     SessionConfig
		check   func(t *testing.T, o session.SessionOptions)
		wantErr string
	}{
		{
			name: "empty protocol is sftp",
			cfg:  SessionConfig{Host: "h", HostKey: "ssh-ed25519 255 x"},
			check: func(t *testing.T, o session.SessionOptions) {
				require.Equal(t, session.ProtocolSFTP, o.Protocol)
				require.Equal(t, "ssh-ed25519 255 x", o.SSHHostKeyFingerprint)
			},
		},
		{
			name: "ftp active explicit",
			cfg:  SessionConfig{Protocol: "FTP", Host: "h", FTPMode: "active", FTPSecure: "explicit", AcceptAnyTLSCert: true},
			check: func(t *testing.T, o session.SessionOptions) {
				require.Equal(t, session.ProtocolFTP, o.Protocol)
				require.Equal(t, session.FTPModeActive, o.FTPMode)
				require.Equal(t, session.FTPSecureExplicit, o.FTPSecure)
				require.True(t, o.GiveUpSecurityAndAcceptAnyTLSHostCertificate)
			},
		},
		{
			name: "webdav",
			cfg:  SessionConfig{Protocol: "webdav", Host: "h", WebDAVSecure: true, WebDAVRoot: "/dav"},
			check: func(t *testing.T, o session.SessionOptions) {
				require.Equal(t, session.ProtocolWebDAV, o.Protocol)
				require.True(t, o.WebDAVSecure)
				require.Equal(t, "/dav", o.WebDAVRoot)
			},
		},
		{name: "unknown protocol", cfg: SessionConfig{Protocol: "gopher"}, wantErr: "unknown protocol"},
		{name: "bad ftp mode", cfg: SessionConfig{FTPMode: "sideways"}, wantErr: "session.ftp_mode"},
		{name: "bad ftp secure", cfg: SessionConfig{FTPSecure: "maybe"}, wantErr: "session.ftp_secure"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := tt.cfg.Options()
			if tt.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, o)
		})
	}
}

func TestConfig_FolderPair(t *testing.T) {
	cfg := Config{FolderPairs: []FolderPairConfig{{Name: "a"}, {Name: "b", Local: "/b"}}}

	p, ok := cfg.FolderPair("b")
	require.True(t, ok)
	require.Equal(t, "/b", p.Local)

	_, ok = cfg.FolderPair("missing")
	require.False(t, ok)
}

func TestValidateFolderPairs(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []FolderPairConfig
		wantErr string
	}{
		{name: "empty", pairs: nil},
		{name: "valid directory pair", pairs: []FolderPairConfig{{Name: "a", Local: "/l", Remote: "/r"}}},
		{name: "valid single file", pairs: []FolderPairConfig{{Name: "a", LocalFile: "/l/f", RemoteFile: "/r/f"}}},
		{name: "missing name", pairs: []FolderPairConfig{{Local: "/l", Remote: "/r"}}, wantErr: "folder pair 0: name is required"},
		{
			name:    "duplicate name",
			pairs:   []FolderPairConfig{{Name: "a", Local: "/l", Remote: "/r"}, {Name: "a", Local: "/l", Remote: "/r"}},
			wantErr: "folder pair 1 (a): duplicate name",
		},
		{name: "missing local", pairs: []FolderPairConfig{{Name: "a", Remote: "/r"}}, wantErr: "local is required"},
		{name: "missing remote", pairs: []FolderPairConfig{{Name: "a", Local: "/l"}}, wantErr: "remote is required"},
		{name: "relative remote", pairs: []FolderPairConfig{{Name: "a", Local: "/l", Remote: "r"}}, wantErr: "remote must be an absolute path"},
		{name: "half single file", pairs: []FolderPairConfig{{Name: "a", LocalFile: "/l/f"}}, wantErr: "must both be set"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFolderPairs(tt.pairs)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateEngine(t *testing.T) {
	require.NoError(t, ValidateEngine(EngineConfig{}))
	require.ErrorContains(t, ValidateEngine(EngineConfig{Timeout: -time.Second}), "engine.timeout")
	require.ErrorContains(t, ValidateEngine(EngineConfig{ReconnectTime: -time.Second}), "engine.reconnect_time")
	require.ErrorContains(t, ValidateEngine(EngineConfig{DefaultConfiguration: true, IniFile: "x.ini"}), "engine.ini_file")
	require.ErrorContains(t, ValidateEngine(EngineConfig{ArchiveDir: "logs"}), "engine.archive_dir")
}

func TestValidateSession(t *testing.T) {
	require.NoError(t, ValidateSession(SessionConfig{}), "no host yet is valid")
	require.NoError(t, ValidateSession(SessionConfig{Host: "h", Port: 22}))
	require.ErrorContains(t, ValidateSession(SessionConfig{Host: "h", Port: 70000}), "session.port")
	require.ErrorContains(t, ValidateSession(SessionConfig{Host: "h", Protocol: "gopher"}), "unknown protocol")
}

func TestValidateWatcherAndCache(t *testing.T) {
	require.NoError(t, ValidateWatcher(Defaults().Watcher))
	require.ErrorContains(t, ValidateWatcher(WatcherConfig{Debounce: -1}), "watcher.debounce")
	require.ErrorContains(t, ValidateWatcher(WatcherConfig{SkipContains: []string{""}}), "must not be empty")

	require.NoError(t, ValidateCache(CacheConfig{}))
	require.ErrorContains(t, ValidateCache(CacheConfig{TTL: -1}), "cache.ttl")
	require.ErrorContains(t, ValidateCache(CacheConfig{CleanupInterval: -1}), "cache.cleanup_interval")
}

func TestValidateTracing(t *testing.T) {
	tests := []struct {
		name    string
		cfg     tracing.Config
		wantErr string
	}{
		{name: "zero value", cfg: tracing.Config{}},
		{name: "enabled file", cfg: tracing.Config{Enabled: true, Exporter: "file", FilePath: "/tmp/t.jsonl", SampleRate: 1}},
		{name: "disabled file without path", cfg: tracing.Config{Exporter: "file"}},
		{name: "sample rate too high", cfg: tracing.Config{SampleRate: 1.5}, wantErr: "sample_rate"},
		{name: "sample rate negative", cfg: tracing.Config{SampleRate: -0.1}, wantErr: "sample_rate"},
		{name: "unknown exporter", cfg: tracing.Config{Exporter: "jaeger"}, wantErr: "tracing.exporter"},
		{name: "file without path", cfg: tracing.Config{Enabled: true, Exporter: "file"}, wantErr: "file_path is required"},
		{name: "otlp without endpoint", cfg: tracing.Config{Enabled: true, Exporter: "otlp"}, wantErr: "otlp_endpoint is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTracing(tt.cfg)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestValidate_HistoryLimit(t *testing.T) {
	cfg := Defaults()
	cfg.History.Limit = -1
	require.ErrorContains(t, Validate(cfg), "history.limit")
}

func TestDefaultBackupDir(t *testing.T) {
	t.Setenv("HOME", "/home/me")
	require.Equal(t, filepath.Join("/home/me", ".config", "fsync", "backups", "site"), DefaultBackupDir("site"))
}
