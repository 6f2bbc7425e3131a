package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type cliTestEnv struct {
	baseDir     string
	homeDir     string
	configPath  string
	installDir  string
	historyPath string
}

type cliConfigOption func(*cliConfig)

type cliConfig struct {
	binary         string
	historyEnabled bool
	downloadURL    string
}

func withBinary(path string) cliConfigOption {
	return func(c *cliConfig) { c.binary = path }
}

func withoutHistory() cliConfigOption {
	return func(c *cliConfig) { c.historyEnabled = false }
}

func withDownloadURL(url string) cliConfigOption {
	return func(c *cliConfig) { c.downloadURL = url }
}

func setupCLITestEnv(t *testing.T, opts ...cliConfigOption) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("USERPROFILE", homeDir)
	t.Setenv("FFPIPE_FFMPEG", "")
	t.Setenv("FFPIPE_INSTALL_DIR", "")
	t.Chdir(base)

	env := &cliTestEnv{
		baseDir:     base,
		homeDir:     homeDir,
		configPath:  filepath.Join(base, "ffpipe-test.toml"),
		installDir:  filepath.Join(base, "bin"),
		historyPath: filepath.Join(base, "state", "history.db"),
	}
	cfg := cliConfig{historyEnabled: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	writeTestConfig(t, env, cfg)
	return env
}

func writeTestConfig(t *testing.T, env *cliTestEnv, cfg cliConfig) {
	t.Helper()
	var b strings.Builder
	fmt.Fprintln(&b, "[ffmpeg]")
	fmt.Fprintf(&b, "binary = %q\n", cfg.binary)
	fmt.Fprintf(&b, "install_dir = %q\n", env.installDir)
	if cfg.downloadURL != "" {
		fmt.Fprintf(&b, "download_url = %q\n", cfg.downloadURL)
	}
	fmt.Fprintln(&b, "stop_grace_seconds = 2")
	fmt.Fprintln(&b, "\n[history]")
	fmt.Fprintf(&b, "enabled = %t\n", cfg.historyEnabled)
	fmt.Fprintf(&b, "path = %q\n", env.historyPath)
	fmt.Fprintln(&b, "\n[logging]")
	fmt.Fprintln(&b, `format = "console"`)
	fmt.Fprintln(&b, `level = "info"`)
	if err := os.WriteFile(env.configPath, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q\n--- output ---\n%s", needle, haystack)
	}
}
