package session

import (
	"fmt"
	"maps"
	"sort"
	"time"

	"github.com/zjrosen/fsync/internal/process"
	"github.com/zjrosen/fsync/internal/xmllog"
)

// Defaults for Config fields left zero.
const (
	DefaultExecutable    = "winscp.com"
	DefaultTimeout       = time.Minute
	DefaultReconnectTime = 120 * time.Second
	DefaultCloseGrace    = 2 * time.Second
)

// Config controls how the engine is started and supervised.
type Config struct {
	ExecutablePath      string
	AdditionalArguments []string
	// DefaultConfiguration starts the engine without any stored settings.
	DefaultConfiguration bool
	IniFilePath          string
	// ReconnectTime is how long the engine keeps reconnecting a dropped
	// connection. Zero turns reconnecting off.
	ReconnectTime time.Duration
	// SessionLogPath enables the engine's own session log.
	SessionLogPath string
	// XMLLogPath fixes the path of the XML log. It must not exist when the
	// session opens. Empty means a fresh temporary file.
	XMLLogPath string
	// Timeout is the longest the engine may stay silent.
	Timeout        time.Duration
	CloseGrace     time.Duration
	PollInterval   time.Duration
	OutputCapacity int
	// RawConfiguration is passed to the engine as raw settings.
	RawConfiguration map[string]string
	WorkDir          string
	Env              []string
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		ExecutablePath:       DefaultExecutable,
		DefaultConfiguration: true,
		ReconnectTime:        DefaultReconnectTime,
		Timeout:              DefaultTimeout,
		CloseGrace:           DefaultCloseGrace,
		PollInterval:         xmllog.DefaultPollInterval,
		OutputCapacity:       process.DefaultTrackerCapacity,
	}
}

func (c Config) withDefaults() Config {
	if c.ExecutablePath == "" {
		c.ExecutablePath = DefaultExecutable
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.CloseGrace <= 0 {
		c.CloseGrace = DefaultCloseGrace
	}
	if c.PollInterval <= 0 {
		c.PollInterval = xmllog.DefaultPollInterval
	}
	if c.OutputCapacity <= 0 {
		c.OutputCapacity = process.DefaultTrackerCapacity
	}
	c.RawConfiguration = maps.Clone(c.RawConfiguration)
	return c
}

// engineArguments are the command line arguments for an engine writing its
// XML log to logPath.
func (c Config) engineArguments(logPath string) []string {
	args := []string{"/xmllog=" + logPath, "/xmlgroups", "/nointeractiveinput"}
	if c.SessionLogPath != "" {
		args = append(args, "/log="+c.SessionLogPath)
	}
	switch {
	case c.DefaultConfiguration:
		args = append(args, "/ini=nul")
	case c.IniFilePath != "":
		args = append(args, "/ini="+c.IniFilePath)
	}
	if len(c.RawConfiguration) > 0 {
		args = append(args, "/rawconfig")
		names := make([]string, 0, len(c.RawConfiguration))
		for name := range c.RawConfiguration {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			args = append(args, name+"="+c.RawConfiguration[name])
		}
	}
	return append(args, c.AdditionalArguments...)
}

// reconnectCommand renders the reconnect option of the batch preamble.
func (c Config) reconnectCommand() string {
	if c.ReconnectTime <= 0 {
		return "option reconnecttime off"
	}
	return fmt.Sprintf("option reconnecttime %d", int(c.ReconnectTime/time.Second))
}

// Config returns the session configuration.
func (s *Session) Config() Config {
	return s.cfg
}

// SetConfig replaces the configuration. Only allowed while closed.
func (s *Session) SetConfig(cfg Config) error {
	if err := s.checkNotOpened(); err != nil {
		return err
	}
	s.cfg = cfg.withDefaults()
	return nil
}

// AddRawConfiguration adds one raw engine setting. Only allowed while closed.
func (s *Session) AddRawConfiguration(setting, value string) error {
	if err := s.checkNotOpened(); err != nil {
		return err
	}
	if s.cfg.RawConfiguration == nil {
		s.cfg.RawConfiguration = make(map[string]string)
	}
	s.cfg.RawConfiguration[setting] = value
	return nil
}
