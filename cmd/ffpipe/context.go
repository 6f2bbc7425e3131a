package main

import (
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"ffpipe/internal/config"
	"ffpipe/internal/deps"
	"ffpipe/internal/history"
	"ffpipe/internal/logging"
	"ffpipe/internal/probe"
)

type globalFlags struct {
	config    string
	logLevel  string
	logFormat string
}

type commandContext struct {
	flags *globalFlags

	configOnce sync.Once
	config     *config.Config
	configPath string
	configSeen bool
	configErr  error

	logger *slog.Logger
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, path, exists, err := config.Load(strings.TrimSpace(c.flags.config))
		if err != nil {
			c.configErr = err
			return
		}
		if level := strings.TrimSpace(c.flags.logLevel); level != "" {
			cfg.Logging.Level = strings.ToLower(level)
		}
		if format := strings.TrimSpace(c.flags.logFormat); format != "" {
			cfg.Logging.Format = strings.ToLower(format)
		}
		if err := cfg.Validate(); err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = path
		c.configSeen = exists
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger(w io.Writer) (*slog.Logger, error) {
	if c.logger != nil {
		return c.logger, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewFromConfig(cfg, w)
	if err != nil {
		return nil, err
	}
	c.logger = logger
	return logger, nil
}

// loggerValue never returns nil so commands that skip config still log.
func (c *commandContext) loggerValue() *slog.Logger {
	if c.logger == nil {
		return logging.NewNop()
	}
	return c.logger
}

func (c *commandContext) locator() deps.Locator {
	if c.config == nil {
		return deps.Locator{}
	}
	return deps.Locator{
		Binary:     c.config.FFmpeg.Binary,
		InstallDir: c.config.FFmpeg.InstallDir,
	}
}

// probeBinary picks the ffprobe that pairs with the ffmpeg ffpipe would run.
func (c *commandContext) probeBinary() string {
	path, err := c.locator().Locate()
	if err != nil {
		return probe.ProgramName
	}
	return probe.BinaryFor(path)
}

// withHistory opens the history store for fn. When history is disabled fn
// receives nil.
func (c *commandContext) withHistory(fn func(*history.Store) error) error {
	if c.config == nil || !c.config.History.Enabled {
		return fn(nil)
	}
	store, err := history.Open(c.config.History.Path)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
