package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"ffpipe/internal/faults"
)

//go:embed sample_config.toml
var sampleConfig string

// FFmpeg locates, downloads, and stops the ffmpeg binary.
type FFmpeg struct {
	// Binary overrides PATH lookup when set. Bare names are still searched
	// on PATH; anything containing a separator is used as given.
	Binary string `toml:"binary"`
	// InstallDir receives downloaded builds. Empty means the "ffmpeg"
	// directory next to the ffpipe executable.
	InstallDir string `toml:"install_dir"`
	// DownloadURL overrides the prebuilt archive for this platform.
	DownloadURL string `toml:"download_url"`
	// StopGraceSeconds is how long a graceful stop waits before killing.
	StopGraceSeconds int `toml:"stop_grace_seconds"`
}

// Progress tunes the progress monitor attached to runs.
type Progress struct {
	QueueCapacity int `toml:"queue_capacity"`
	ChunkSize     int `toml:"chunk_size"`
}

// History controls the run history database.
type History struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Feed controls the optional live progress WebSocket server.
type Feed struct {
	// Bind is the listen address; empty disables the feed.
	Bind string `toml:"bind"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
	// File, when set, receives a copy of every log line.
	File string `toml:"file"`
}

// Config encapsulates all configuration values for ffpipe.
type Config struct {
	FFmpeg   FFmpeg   `toml:"ffmpeg"`
	Progress Progress `toml:"progress"`
	History  History  `toml:"history"`
	Feed     Feed     `toml:"feed"`
	Logging  Logging  `toml:"logging"`
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		FFmpeg: FFmpeg{
			StopGraceSeconds: defaultStopGraceSeconds,
		},
		Progress: Progress{
			QueueCapacity: defaultQueueCapacity,
			ChunkSize:     defaultChunkSize,
		},
		History: History{
			Enabled: defaultHistoryEnabled,
			Path:    defaultHistoryPath,
		},
		Feed: Feed{
			Bind: defaultFeedBind,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/ffpipe/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, "", false, faults.Wrap(faults.ErrConfiguration, "config", "parse", strings.TrimSpace(strict.String()), nil)
			}
			return nil, "", false, faults.Wrap(faults.ErrConfiguration, "config", "parse", resolvedPath, err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("ffpipe.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// StopGrace returns the graceful stop window as a duration.
func (c *Config) StopGrace() time.Duration {
	return time.Duration(c.FFmpeg.StopGraceSeconds) * time.Second
}

// EnsureDirectories creates the directories the configured paths live in.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.FFmpeg.InstallDir}
	if c.History.Enabled {
		dirs = append(dirs, filepath.Dir(c.History.Path))
	}
	if c.Logging.File != "" {
		dirs = append(dirs, filepath.Dir(c.Logging.File))
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
