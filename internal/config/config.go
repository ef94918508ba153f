// Package config provides configuration types and defaults for fsync.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zjrosen/fsync/internal/log"
	"github.com/zjrosen/fsync/internal/session"
	"github.com/zjrosen/fsync/internal/tracing"
)

// Config holds all configuration options for fsync.
type Config struct {
	Engine      EngineConfig       `mapstructure:"engine"`
	Session     SessionConfig      `mapstructure:"session"`
	FolderPairs []FolderPairConfig `mapstructure:"folder_pairs"`
	Watcher     WatcherConfig      `mapstructure:"watcher"`
	Cache       CacheConfig        `mapstructure:"cache"`
	History     HistoryConfig      `mapstructure:"history"`
	Tracing     tracing.Config     `mapstructure:"tracing"`
	Flags       map[string]bool    `mapstructure:"flags"`
	// DebugLog enables the debug log at the given path.
	DebugLog string `mapstructure:"debug_log"`
}

// EngineConfig controls how the transfer engine is started.
type EngineConfig struct {
	Executable string   `mapstructure:"executable"`
	Arguments  []string `mapstructure:"arguments"`
	// Timeout is how long the engine may stay silent during a command.
	Timeout       time.Duration `mapstructure:"timeout"`
	ReconnectTime time.Duration `mapstructure:"reconnect_time"`
	CloseGrace    time.Duration `mapstructure:"close_grace"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	// SessionLog is the engine's own session log.
	SessionLog string `mapstructure:"session_log"`
	// XMLLog fixes the XML log path. Empty uses a temp file per session.
	XMLLog               string            `mapstructure:"xml_log"`
	DefaultConfiguration bool              `mapstructure:"default_configuration"`
	IniFile              string            `mapstructure:"ini_file"`
	RawConfiguration     map[string]string `mapstructure:"raw_configuration"`
	// ArchiveDir receives a zstd copy of every XML log before it is removed.
	ArchiveDir string `mapstructure:"archive_dir"`
}

// SessionConfig describes the server to connect to.
type SessionConfig struct {
	Protocol   string `mapstructure:"protocol"` // sftp (default), scp, ftp, webdav
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	User       string `mapstructure:"user"`
	Password   string `mapstructure:"password"`
	HostKey    string `mapstructure:"host_key"`
	AcceptAny  bool   `mapstructure:"accept_any_host_key"`
	PrivateKey string `mapstructure:"private_key"`
	Passphrase string `mapstructure:"passphrase"`

	FTPMode   string `mapstructure:"ftp_mode"`   // passive (default) or active
	FTPSecure string `mapstructure:"ftp_secure"` // none, implicit, explicit, explicitssl

	WebDAVSecure bool   `mapstructure:"webdav_secure"`
	WebDAVRoot   string `mapstructure:"webdav_root"`

	TLSFingerprint   string            `mapstructure:"tls_fingerprint"`
	AcceptAnyTLSCert bool              `mapstructure:"accept_any_tls_certificate"`
	ServerTimeout    time.Duration     `mapstructure:"server_timeout"`
	RawSettings      map[string]string `mapstructure:"raw_settings"`
}

// FolderPairConfig links a local directory to a remote one.
type FolderPairConfig struct {
	Name                  string `mapstructure:"name"`
	Local                 string `mapstructure:"local"`
	Remote                string `mapstructure:"remote"`
	IncludeSubdirectories bool   `mapstructure:"include_subdirectories"`
	AutoConnect           bool   `mapstructure:"auto_connect"`
	AutoRealtime          bool   `mapstructure:"auto_realtime"`
	// LocalFile and RemoteFile switch the pair to single-file mode.
	LocalFile  string `mapstructure:"local_file"`
	RemoteFile string `mapstructure:"remote_file"`
	// BackupDir receives local copies before a download overwrites them.
	BackupDir string `mapstructure:"backup_dir"`
}

// SingleFile reports whether the pair syncs one file instead of a directory.
func (p FolderPairConfig) SingleFile() bool {
	return p.LocalFile != "" || p.RemoteFile != ""
}

// WatcherConfig tunes the realtime file watcher.
type WatcherConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
	// SkipSuffixes lists file name suffixes never uploaded.
	SkipSuffixes []string `mapstructure:"skip_suffixes"`
	// SkipContains lists substrings that mark a name as temporary.
	SkipContains []string `mapstructure:"skip_contains"`
}

// CacheConfig controls the verified remote directory cache.
type CacheConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// HistoryConfig controls transfer history persistence. Recording also needs
// the history flag.
type HistoryConfig struct {
	Path  string `mapstructure:"path"`
	Limit int    `mapstructure:"limit"`
}

// DefaultConfigDir returns ~/.config/fsync or an empty string if the home
// directory is unavailable.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "fsync")
}

// DefaultTracesFilePath returns the default path for trace file export.
func DefaultTracesFilePath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "traces", "traces.jsonl")
}

// DefaultHistoryPath returns the default transfer history database.
func DefaultHistoryPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "history.db")
}

// DefaultBackupDir returns where backups of the named pair go when the pair
// sets no backup_dir.
func DefaultBackupDir(pair string) string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "backups", pair)
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	trace := tracing.DefaultConfig()
	trace.FilePath = DefaultTracesFilePath()
	return Config{
		Engine: EngineConfig{
			Executable:           session.DefaultExecutable,
			Timeout:              session.DefaultTimeout,
			ReconnectTime:        session.DefaultReconnectTime,
			CloseGrace:           session.DefaultCloseGrace,
			PollInterval:         50 * time.Millisecond,
			DefaultConfiguration: true,
		},
		Session: SessionConfig{
			Protocol:      "sftp",
			FTPMode:       "passive",
			FTPSecure:     "none",
			ServerTimeout: session.DefaultServerTimeout,
		},
		Watcher: WatcherConfig{
			Debounce:     100 * time.Millisecond,
			SkipSuffixes: []string{".tmp"},
			SkipContains: []string{"~"},
		},
		Cache: CacheConfig{
			TTL:             10 * time.Minute,
			CleanupInterval: 20 * time.Minute,
		},
		History: HistoryConfig{
			Path:  DefaultHistoryPath(),
			Limit: 20,
		},
		Tracing: trace,
		Flags: map[string]bool{
			"history":       true,
			"archive-xml":   false,
			"verify-remote": true,
		},
	}
}

// SessionConfig converts the engine section into session settings.
func (e EngineConfig) SessionConfig() session.Config {
	return session.Config{
		ExecutablePath:       e.Executable,
		AdditionalArguments:  e.Arguments,
		DefaultConfiguration: e.DefaultConfiguration,
		IniFilePath:          e.IniFile,
		ReconnectTime:        e.ReconnectTime,
		SessionLogPath:       e.SessionLog,
		XMLLogPath:           e.XMLLog,
		Timeout:              e.Timeout,
		CloseGrace:           e.CloseGrace,
		PollInterval:         e.PollInterval,
		RawConfiguration:     e.RawConfiguration,
	}
}

// Options converts the session section into session options.
func (s SessionConfig) Options() (session.SessionOptions, error) {
	protocol := session.ProtocolSFTP
	if s.Protocol != "" {
		p, err := session.ParseProtocol(s.Protocol)
		if err != nil {
			return session.SessionOptions{}, err
		}
		protocol = p
	}

	var mode session.FTPMode
	switch strings.ToLower(s.FTPMode) {
	case "", "passive":
		mode = session.FTPModePassive
	case "active":
		mode = session.FTPModeActive
	default:
		return session.SessionOptions{}, fmt.Errorf("session.ftp_mode must be \"passive\" or \"active\", got %q", s.FTPMode)
	}

	var secure session.FTPSecure
	switch strings.ToLower(s.FTPSecure) {
	case "", "none":
		secure = session.FTPSecureNone
	case "implicit":
		secure = session.FTPSecureImplicit
	case "explicit":
		secure = session.FTPSecureExplicit
	case "explicitssl":
		secure = session.FTPSecureExplicitSSL
	default:
		return session.SessionOptions{}, fmt.Errorf("session.ftp_secure must be \"none\", \"implicit\", \"explicit\", or \"explicitssl\", got %q", s.FTPSecure)
	}

	return session.SessionOptions{
		Protocol:                             protocol,
		HostName:                             s.Host,
		PortNumber:                           s.Port,
		UserName:                             s.User,
		Password:                             s.Password,
		Timeout:                              s.ServerTimeout,
		SSHHostKeyFingerprint:                s.HostKey,
		GiveUpSecurityAndAcceptAnySSHHostKey: s.AcceptAny,
		SSHPrivateKeyPath:                    s.PrivateKey,
		SSHPrivateKeyPassphrase:              s.Passphrase,
		FTPMode:                              mode,
		FTPSecure:                            secure,
		WebDAVSecure:                         s.WebDAVSecure,
		WebDAVRoot:                           s.WebDAVRoot,
		TLSHostCertificateFingerprint:        s.TLSFingerprint,
		RawSettings:                          s.RawSettings,

		GiveUpSecurityAndAcceptAnyTLSHostCertificate: s.AcceptAnyTLSCert,
	}, nil
}

// FolderPair returns the pair with the given name.
func (c Config) FolderPair(name string) (FolderPairConfig, bool) {
	for _, p := range c.FolderPairs {
		if p.Name == name {
			return p, true
		}
	}
	return FolderPairConfig{}, false
}

// Validate checks every section.
func Validate(cfg Config) error {
	if err := ValidateEngine(cfg.Engine); err != nil {
		return err
	}
	if err := ValidateSession(cfg.Session); err != nil {
		return err
	}
	if err := ValidateFolderPairs(cfg.FolderPairs); err != nil {
		return err
	}
	if err := ValidateWatcher(cfg.Watcher); err != nil {
		return err
	}
	if err := ValidateCache(cfg.Cache); err != nil {
		return err
	}
	if cfg.History.Limit < 0 {
		return fmt.Errorf("history.limit must not be negative, got %d", cfg.History.Limit)
	}
	return ValidateTracing(cfg.Tracing)
}

// ValidateEngine checks engine configuration for errors.
// Zero durations fall back to the session defaults.
func ValidateEngine(e EngineConfig) error {
	if e.Timeout < 0 {
		return fmt.Errorf("engine.timeout must not be negative, got %s", e.Timeout)
	}
	if e.ReconnectTime < 0 {
		return fmt.Errorf("engine.reconnect_time must not be negative, got %s", e.ReconnectTime)
	}
	if e.DefaultConfiguration && e.IniFile != "" {
		return fmt.Errorf("engine.ini_file cannot be used with engine.default_configuration")
	}
	if e.ArchiveDir != "" && !filepath.IsAbs(e.ArchiveDir) {
		return fmt.Errorf("engine.archive_dir must be an absolute path, got %q", e.ArchiveDir)
	}
	return nil
}

// ValidateSession checks the session section. An empty host is valid until
// a command needs a connection.
func ValidateSession(s SessionConfig) error {
	if s.Host == "" {
		return nil
	}
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("session.port must be between 0 and 65535, got %d", s.Port)
	}
	if _, err := s.Options(); err != nil {
		return err
	}
	return nil
}

// ValidateFolderPairs checks folder pair configuration for errors.
func ValidateFolderPairs(pairs []FolderPairConfig) error {
	seen := make(map[string]bool, len(pairs))
	for i, p := range pairs {
		if p.Name == "" {
			return fmt.Errorf("folder pair %d: name is required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("folder pair %d (%s): duplicate name", i, p.Name)
		}
		seen[p.Name] = true

		if p.SingleFile() {
			if p.LocalFile == "" || p.RemoteFile == "" {
				return fmt.Errorf("folder pair %d (%s): local_file and remote_file must both be set", i, p.Name)
			}
			continue
		}
		if p.Local == "" {
			return fmt.Errorf("folder pair %d (%s): local is required", i, p.Name)
		}
		if p.Remote == "" {
			return fmt.Errorf("folder pair %d (%s): remote is required", i, p.Name)
		}
		if !strings.HasPrefix(p.Remote, "/") {
			return fmt.Errorf("folder pair %d (%s): remote must be an absolute path, got %q", i, p.Name, p.Remote)
		}
	}
	return nil
}

// ValidateWatcher checks watcher configuration for errors.
func ValidateWatcher(w WatcherConfig) error {
	if w.Debounce < 0 {
		return fmt.Errorf("watcher.debounce must not be negative, got %s", w.Debounce)
	}
	for _, s := range append(append([]string{}, w.SkipSuffixes...), w.SkipContains...) {
		if s == "" {
			return fmt.Errorf("watcher skip patterns must not be empty")
		}
	}
	return nil
}

// ValidateCache checks cache configuration for errors.
func ValidateCache(c CacheConfig) error {
	if c.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative, got %s", c.TTL)
	}
	if c.CleanupInterval < 0 {
		return fmt.Errorf("cache.cleanup_interval must not be negative, got %s", c.CleanupInterval)
	}
	return nil
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(t tracing.Config) error {
	if t.SampleRate < 0.0 || t.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", t.SampleRate)
	}

	if t.Exporter != "" {
		switch t.Exporter {
		case "none", "file", "stdout", "otlp":
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", t.Exporter)
		}
	}

	if t.Enabled {
		if t.Exporter == "file" && t.FilePath == "" {
			return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
		}
		if t.Exporter == "otlp" && t.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}

	return nil
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# fsync configuration

# Transfer engine
engine:
  executable: winscp.com
  # arguments: []
  timeout: 1m              # Longest the engine may stay silent during a command
  reconnect_time: 2m       # 0 turns reconnecting off
  close_grace: 2s          # Wait for the engine to exit before killing it
  default_configuration: true
  # ini_file: /path/to/engine.ini
  # session_log: /tmp/engine-session.log
  # xml_log: /tmp/engine.xml   # Fixed XML log path (must not exist when a session opens)
  # archive_dir: /var/log/fsync # zstd copies of XML logs (needs flags.archive-xml)
  # raw_configuration:
  #   Interface\SessionReopenAuto: "5000"

# Server
session:
  protocol: sftp           # sftp, scp, ftp, webdav
  # host: example.com
  # port: 22
  # user: deploy
  # host_key: "ssh-ed25519 255 xxxxxxxx"
  # private_key: ~/.ssh/id_ed25519
  server_timeout: 15s
  # ftp_mode: passive      # passive or active
  # ftp_secure: none       # none, implicit, explicit, explicitssl

# Folder pairs (add with 'fsync pair add <name> <local> <remote>')
# folder_pairs:
#   - name: site
#     local: /home/me/site
#     remote: /var/www/site
#     include_subdirectories: true
#     auto_connect: false
#     auto_realtime: false
#     backup_dir: /home/me/backups/site
#   - name: hosts
#     local_file: /etc/hosts
#     remote_file: /etc/hosts

# Realtime upload watcher
watcher:
  debounce: 100ms
  skip_suffixes: [".tmp"]
  skip_contains: ["~"]

# Verified remote directory cache
cache:
  ttl: 10m
  cleanup_interval: 20m

# Transfer history
history:
  # path: ~/.config/fsync/history.db
  limit: 20

# Distributed tracing, one span per engine command
# tracing:
#   enabled: false
#   exporter: file                 # none, file, stdout, otlp
#   file_path: ~/.config/fsync/traces/traces.jsonl
#   otlp_endpoint: localhost:4317
#   sample_rate: 1.0

flags:
  history: true
  archive-xml: false
  verify-remote: true
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(logger *log.Logger, configPath string) error {
	logger.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		logger.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		logger.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	logger.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
