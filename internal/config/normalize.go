package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizeFFmpeg(); err != nil {
		return err
	}
	if err := c.normalizeHistory(); err != nil {
		return err
	}
	c.Feed.Bind = strings.TrimSpace(c.Feed.Bind)
	return c.normalizeLogging()
}

func (c *Config) normalizeFFmpeg() error {
	if strings.TrimSpace(c.FFmpeg.Binary) == "" {
		if value, ok := os.LookupEnv(envBinary); ok {
			c.FFmpeg.Binary = value
		}
	}
	c.FFmpeg.Binary = strings.TrimSpace(c.FFmpeg.Binary)
	if strings.ContainsAny(c.FFmpeg.Binary, `/\`) || strings.HasPrefix(c.FFmpeg.Binary, "~") {
		var err error
		if c.FFmpeg.Binary, err = expandPath(c.FFmpeg.Binary); err != nil {
			return fmt.Errorf("ffmpeg.binary: %w", err)
		}
	}

	if strings.TrimSpace(c.FFmpeg.InstallDir) == "" {
		if value, ok := os.LookupEnv(envInstallDir); ok {
			c.FFmpeg.InstallDir = value
		}
	}
	var err error
	if c.FFmpeg.InstallDir, err = expandPath(strings.TrimSpace(c.FFmpeg.InstallDir)); err != nil {
		return fmt.Errorf("ffmpeg.install_dir: %w", err)
	}
	c.FFmpeg.DownloadURL = strings.TrimSpace(c.FFmpeg.DownloadURL)
	return nil
}

func (c *Config) normalizeHistory() error {
	if strings.TrimSpace(c.History.Path) == "" {
		c.History.Path = defaultHistoryPath
	}
	var err error
	if c.History.Path, err = expandPath(strings.TrimSpace(c.History.Path)); err != nil {
		return fmt.Errorf("history.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() error {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	var err error
	if c.Logging.File, err = expandPath(strings.TrimSpace(c.Logging.File)); err != nil {
		return fmt.Errorf("logging.file: %w", err)
	}
	return nil
}
