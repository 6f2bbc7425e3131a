package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"ffpipe/internal/config"
	"ffpipe/internal/faults"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	t.Setenv("FFPIPE_FFMPEG", "")
	t.Setenv("FFPIPE_INSTALL_DIR", "")
	t.Chdir(t.TempDir())
	return home
}

func TestLoadDefaultsWhenNoFileExists(t *testing.T) {
	home := isolate(t)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}
	if want := filepath.Join(home, ".config", "ffpipe", "config.toml"); resolved != want {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, want)
	}
	if cfg.Progress.QueueCapacity != 128 {
		t.Fatalf("expected queue capacity 128, got %d", cfg.Progress.QueueCapacity)
	}
	if cfg.Progress.ChunkSize != 1024 {
		t.Fatalf("expected chunk size 1024, got %d", cfg.Progress.ChunkSize)
	}
	if cfg.StopGrace() != 10*time.Second {
		t.Fatalf("unexpected stop grace: %s", cfg.StopGrace())
	}
	if want := filepath.Join(home, ".local", "share", "ffpipe", "history.db"); cfg.History.Path != want {
		t.Fatalf("unexpected history path: got %q want %q", cfg.History.Path, want)
	}
	if !cfg.History.Enabled {
		t.Fatal("expected history enabled by default")
	}
	if cfg.Feed.Bind != "" {
		t.Fatalf("expected feed disabled by default, got %q", cfg.Feed.Bind)
	}
	if cfg.Logging.Format != "console" || cfg.Logging.Level != "info" {
		t.Fatalf("unexpected logging defaults: %+v", cfg.Logging)
	}
	if cfg.FFmpeg.InstallDir != "" {
		t.Fatalf("expected empty install dir, got %q", cfg.FFmpeg.InstallDir)
	}
}

func TestLoadExplicitFileExpandsPaths(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(t.TempDir(), "custom.toml")
	body := `
[ffmpeg]
binary = "~/bin/ffmpeg"
install_dir = "~/tools/ffmpeg"
stop_grace_seconds = 3

[progress]
queue_capacity = 16
chunk_size = 64

[history]
path = "~/runs.db"

[feed]
bind = "127.0.0.1:7490"

[logging]
format = " JSON "
level = "DEBUG"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected explicit path to be used, got %q (exists=%v)", resolved, exists)
	}
	if cfg.FFmpeg.Binary != filepath.Join(home, "bin", "ffmpeg") {
		t.Fatalf("unexpected binary: %q", cfg.FFmpeg.Binary)
	}
	if cfg.FFmpeg.InstallDir != filepath.Join(home, "tools", "ffmpeg") {
		t.Fatalf("unexpected install dir: %q", cfg.FFmpeg.InstallDir)
	}
	if cfg.StopGrace() != 3*time.Second {
		t.Fatalf("unexpected stop grace: %s", cfg.StopGrace())
	}
	if cfg.Progress.QueueCapacity != 16 || cfg.Progress.ChunkSize != 64 {
		t.Fatalf("unexpected progress section: %+v", cfg.Progress)
	}
	if cfg.History.Path != filepath.Join(home, "runs.db") {
		t.Fatalf("unexpected history path: %q", cfg.History.Path)
	}
	if cfg.Feed.Bind != "127.0.0.1:7490" {
		t.Fatalf("unexpected feed bind: %q", cfg.Feed.Bind)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("expected logging to be normalized, got %+v", cfg.Logging)
	}
}

func TestLoadMissingExplicitFileUsesDefaults(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "absent.toml")

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for a missing explicit file")
	}
	if resolved != path {
		t.Fatalf("unexpected resolved path: %q", resolved)
	}
	if cfg.Progress.QueueCapacity != 128 {
		t.Fatalf("expected defaults, got %+v", cfg.Progress)
	}
}

func TestLoadFallsBackToProjectFile(t *testing.T) {
	isolate(t)
	if err := os.WriteFile("ffpipe.toml", []byte("[progress]\nqueue_capacity = 7\n"), 0o644); err != nil {
		t.Fatalf("write project config: %v", err)
	}

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || filepath.Base(resolved) != "ffpipe.toml" {
		t.Fatalf("expected project config, got %q (exists=%v)", resolved, exists)
	}
	if cfg.Progress.QueueCapacity != 7 {
		t.Fatalf("expected project value, got %d", cfg.Progress.QueueCapacity)
	}
}

func TestLoadEnvironmentFallbacks(t *testing.T) {
	home := isolate(t)
	t.Setenv("FFPIPE_FFMPEG", "ffmpeg-nightly")
	t.Setenv("FFPIPE_INSTALL_DIR", "~/ff")

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.FFmpeg.Binary != "ffmpeg-nightly" {
		t.Fatalf("bare binary names should stay unexpanded, got %q", cfg.FFmpeg.Binary)
	}
	if cfg.FFmpeg.InstallDir != filepath.Join(home, "ff") {
		t.Fatalf("unexpected install dir: %q", cfg.FFmpeg.InstallDir)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "typo.toml")
	if err := os.WriteFile(path, []byte("[progress]\nqueue_capacty = 7\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, _, _, err := config.Load(path)
	if err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
	if !errors.Is(err, faults.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if !strings.Contains(err.Error(), "queue_capacty") {
		t.Fatalf("expected the offending key in the message, got %v", err)
	}
}

func TestValidateAggregatesProblems(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   []string
	}{
		{
			name:   "valid defaults",
			mutate: func(*config.Config) {},
		},
		{
			name:   "zero grace",
			mutate: func(c *config.Config) { c.FFmpeg.StopGraceSeconds = 0 },
			want:   []string{"ffmpeg.stop_grace_seconds"},
		},
		{
			name:   "bad url",
			mutate: func(c *config.Config) { c.FFmpeg.DownloadURL = "ftp://example.com/ffmpeg.gz" },
			want:   []string{"ffmpeg.download_url"},
		},
		{
			name:   "zero capacity",
			mutate: func(c *config.Config) { c.Progress.QueueCapacity = 0 },
			want:   []string{"progress.queue_capacity"},
		},
		{
			name: "several at once",
			mutate: func(c *config.Config) {
				c.Progress.ChunkSize = 1
				c.Feed.Bind = "no-port"
				c.Logging.Format = "xml"
			},
			want: []string{"progress.chunk_size", "feed.bind", "logging.format"},
		},
		{
			name:   "bad level",
			mutate: func(c *config.Config) { c.Logging.Level = "verbose" },
			want:   []string{"logging.level"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if len(tt.want) == 0 {
				if err != nil {
					t.Fatalf("expected valid config, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, faults.ErrConfiguration) {
				t.Fatalf("expected configuration marker, got %v", err)
			}
			for _, fragment := range tt.want {
				if !strings.Contains(err.Error(), fragment) {
					t.Fatalf("expected %q in %v", fragment, err)
				}
			}
		})
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var parsed config.Config
	if err := toml.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("sample is not valid TOML: %v", err)
	}
	if parsed.Progress.QueueCapacity != 128 {
		t.Fatalf("sample should document the default capacity, got %d", parsed.Progress.QueueCapacity)
	}

	if _, _, _, err := config.Load(path); err != nil {
		t.Fatalf("sample config failed to load: %v", err)
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.FFmpeg.InstallDir = filepath.Join(base, "bin")
	cfg.History.Path = filepath.Join(base, "state", "history.db")
	cfg.Logging.File = filepath.Join(base, "logs", "ffpipe.log")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories returned error: %v", err)
	}
	for _, dir := range []string{"bin", "state", "logs"} {
		if info, err := os.Stat(filepath.Join(base, dir)); err != nil || !info.IsDir() {
			t.Fatalf("expected %s to exist: %v", dir, err)
		}
	}
}

func TestExpandPath(t *testing.T) {
	home := isolate(t)
	got, err := config.ExpandPath("~/x/../y")
	if err != nil {
		t.Fatalf("ExpandPath returned error: %v", err)
	}
	if got != filepath.Join(home, "y") {
		t.Fatalf("unexpected expansion: %q", got)
	}
	if got, _ := config.ExpandPath(""); got != "" {
		t.Fatalf("empty path should stay empty, got %q", got)
	}
}
