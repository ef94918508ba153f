package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/fsync/internal/config"
	"github.com/zjrosen/fsync/internal/log"
)

var (
	version     = "dev"
	cfgFile     string
	debugLog    string
	verbose     bool
	askPassword bool
	cfg         config.Config
)

var rootCmd = &cobra.Command{
	Use:   "fsync",
	Short: "Keep local folders in sync with a remote server",
	Long: `fsync drives a file transfer engine to keep local folders in sync with
their remote counterparts over SFTP, SCP, FTP or WebDAV.

Without a subcommand fsync connects the folder pairs configured to auto
connect, starts realtime uploads where configured and reads actions from
standard input. Type "help" for the list of actions and "q" to quit.

Examples:
  fsync                          # interactive menu over every folder pair
  fsync sync site --direction remote --preview
  fsync put ./index.html /var/www/
  fsync watch site               # upload changes as they happen`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runMenu,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ~/.config/fsync/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&debugLog, "debug", "",
		"write a debug log to this path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"echo log entries to stderr")
	rootCmd.PersistentFlags().BoolVar(&askPassword, "ask-password", false,
		"prompt for the server password instead of reading it from the config")
}

func initConfig() {
	setDefaults(viper.GetViper(), config.Defaults())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .fsync/config.yaml (current directory)
		// 2. ~/.config/fsync/config.yaml (user config)
		if _, err := os.Stat(".fsync/config.yaml"); err == nil {
			viper.SetConfigFile(".fsync/config.yaml")
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".config", "fsync"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		// No config file found anywhere - create the default user config
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			defaultPath := filepath.Join(config.DefaultConfigDir(), "config.yaml")
			if writeErr := config.WriteDefaultConfig(log.Discard(), defaultPath); writeErr == nil {
				viper.SetConfigFile(defaultPath)
				_ = viper.ReadInConfig()
			}
			// If write fails, just continue with defaults (no config file)
		}
	}

	cfg = config.Config{}
	_ = viper.Unmarshal(&cfg)
}

// setDefaults registers every default so keys missing from the file still
// unmarshal to their default value.
func setDefaults(v *viper.Viper, d config.Config) {
	v.SetDefault("engine.executable", d.Engine.Executable)
	v.SetDefault("engine.timeout", d.Engine.Timeout)
	v.SetDefault("engine.reconnect_time", d.Engine.ReconnectTime)
	v.SetDefault("engine.close_grace", d.Engine.CloseGrace)
	v.SetDefault("engine.poll_interval", d.Engine.PollInterval)
	v.SetDefault("engine.default_configuration", d.Engine.DefaultConfiguration)
	v.SetDefault("session.protocol", d.Session.Protocol)
	v.SetDefault("session.ftp_mode", d.Session.FTPMode)
	v.SetDefault("session.ftp_secure", d.Session.FTPSecure)
	v.SetDefault("session.server_timeout", d.Session.ServerTimeout)
	v.SetDefault("watcher.debounce", d.Watcher.Debounce)
	v.SetDefault("watcher.skip_suffixes", d.Watcher.SkipSuffixes)
	v.SetDefault("watcher.skip_contains", d.Watcher.SkipContains)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("cache.cleanup_interval", d.Cache.CleanupInterval)
	v.SetDefault("history.path", d.History.Path)
	v.SetDefault("history.limit", d.History.Limit)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("flags", d.Flags)
}

// configPath returns the file pair changes are saved to.
func configPath() string {
	if used := viper.ConfigFileUsed(); used != "" {
		return used
	}
	return filepath.Join(config.DefaultConfigDir(), "config.yaml")
}

func runMenu(cmd *cobra.Command, _ []string) error {
	return withRuntime(cmd, func(rt *runtime) error {
		if len(rt.syncer.Pairs()) == 0 {
			return fmt.Errorf("no folder pairs configured in %s", configPath())
		}
		if err := rt.syncer.Start(rt.ctx); err != nil {
			rt.out.Failure(err)
		}
		rt.syncer.Help()

		done := make(chan error, 1)
		go func() { done <- rt.syncer.Menu(rt.ctx, cmd.InOrStdin()) }()
		select {
		case err := <-done:
			return err
		case <-rt.ctx.Done():
			return nil
		}
	})
}

// Execute runs the root command
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
