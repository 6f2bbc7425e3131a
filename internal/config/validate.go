package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"ffpipe/internal/faults"
)

// Validate ensures the configuration is usable. Every problem found is
// reported in one error marked faults.ErrConfiguration.
func (c *Config) Validate() error {
	var problems []string
	for _, check := range []func() error{
		c.validateFFmpeg,
		c.validateProgress,
		c.validateFeed,
		c.validateLogging,
	} {
		if err := check(); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return faults.Wrap(faults.ErrConfiguration, "config", "validate", strings.Join(problems, "; "), nil)
}

func (c *Config) validateFFmpeg() error {
	if c.FFmpeg.StopGraceSeconds <= 0 {
		return errors.New("ffmpeg.stop_grace_seconds must be positive")
	}
	if c.FFmpeg.DownloadURL != "" {
		parsed, err := url.Parse(c.FFmpeg.DownloadURL)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return fmt.Errorf("ffmpeg.download_url must be an http(s) URL, got %q", c.FFmpeg.DownloadURL)
		}
	}
	return nil
}

func (c *Config) validateProgress() error {
	if c.Progress.QueueCapacity < 1 || c.Progress.QueueCapacity > maxQueueCapacity {
		return fmt.Errorf("progress.queue_capacity must be between 1 and %d", maxQueueCapacity)
	}
	if c.Progress.ChunkSize < minChunkSize || c.Progress.ChunkSize > maxChunkSize {
		return fmt.Errorf("progress.chunk_size must be between %d and %d", minChunkSize, maxChunkSize)
	}
	return nil
}

func (c *Config) validateFeed() error {
	if c.Feed.Bind == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.Feed.Bind); err != nil {
		return fmt.Errorf("feed.bind must be host:port: %v", err)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
