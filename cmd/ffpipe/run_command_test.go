//go:build !windows

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"ffpipe/internal/config"
	"ffpipe/internal/faults"
	"ffpipe/internal/logging"
)

func writeStubFFmpeg(t *testing.T, dir, body string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir stub dir: %v", err)
	}
	path := filepath.Join(dir, "ffmpeg")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func listRuns(t *testing.T, configPath string) []runView {
	t.Helper()
	out, _, err := runCLI(t, []string{"history", "list", "--json"}, configPath)
	if err != nil {
		t.Fatalf("history list: %v", err)
	}
	var runs []runView
	if err := json.Unmarshal([]byte(out), &runs); err != nil {
		t.Fatalf("decode history: %v\n%s", err, out)
	}
	return runs
}

func TestRunRecordsSuccessfulRun(t *testing.T) {
	stub := writeStubFFmpeg(t, t.TempDir(),
		`printf 'frame=48\nfps=24.0\ntotal_size=4096\nout_time_us=2000000\nspeed=1.5x\nprogress=end\n' > "$2"`)
	env := setupCLITestEnv(t, withBinary(stub))

	_, stderr, err := runCLI(t, []string{"run", "-i", "in.mkv", "-o", "out.webm", "--vcodec", "libvpx-vp9", "--", "-shortest"}, env.configPath)
	if err != nil {
		t.Fatalf("run: %v\n%s", err, stderr)
	}
	requireContains(t, stderr, "ffmpeg finished")

	runs := listRuns(t, env.configPath)
	if len(runs) != 1 {
		t.Fatalf("expected one recorded run, got %d", len(runs))
	}
	run := runs[0]
	if run.Status != "succeeded" {
		t.Fatalf("expected succeeded, got %q", run.Status)
	}
	if run.ExitCode == nil || *run.ExitCode != 0 {
		t.Fatalf("expected exit code 0, got %v", run.ExitCode)
	}
	if run.Frames == nil || *run.Frames != 48 {
		t.Fatalf("expected 48 frames, got %v", run.Frames)
	}
	if run.TotalSize == nil || *run.TotalSize != 4096 {
		t.Fatalf("expected total size 4096, got %v", run.TotalSize)
	}
	if run.Program != stub {
		t.Fatalf("expected program %q, got %q", stub, run.Program)
	}
	if len(run.Args) < 2 || run.Args[0] != "-progress" {
		t.Fatalf("expected -progress first, got %v", run.Args)
	}
	for _, want := range []string{"-hide_banner", "-y", "-c:v", "libvpx-vp9", "-shortest", "out.webm"} {
		if !slices.Contains(run.Args, want) {
			t.Fatalf("expected %q in %v", want, run.Args)
		}
	}

	out, _, err := runCLI(t, []string{"history", "show", run.ID}, env.configPath)
	if err != nil {
		t.Fatalf("history show: %v", err)
	}
	requireContains(t, out, "Status:    Succeeded")
	requireContains(t, out, "Frames:    48")
	requireContains(t, out, "Size:      4.0 KiB")
	requireContains(t, out, "Media:     00:00:02.00")
}

func TestRunReportsFailureExitStatus(t *testing.T) {
	stub := writeStubFFmpeg(t, t.TempDir(), "echo 'in.mkv: No such file or directory' >&2\nexit 3")
	env := setupCLITestEnv(t, withBinary(stub))

	_, _, err := runCLI(t, []string{"run", "-i", "in.mkv", "-o", "out.mkv"}, env.configPath)
	var status *exitStatusError
	if !errors.As(err, &status) {
		t.Fatalf("expected exit status error, got %v", err)
	}
	if status.code != 3 || exitCode(err) != 3 {
		t.Fatalf("expected status 3, got %d", status.code)
	}
	requireContains(t, err.Error(), "No such file or directory")

	runs := listRuns(t, env.configPath)
	if len(runs) != 1 || runs[0].Status != "failed" {
		t.Fatalf("expected one failed run, got %+v", runs)
	}
	if runs[0].Error == "" {
		t.Fatal("expected the failure to be recorded")
	}
}

func TestRunWithoutHistory(t *testing.T) {
	stub := writeStubFFmpeg(t, t.TempDir(), `printf 'progress=end\n' > "$2"`)
	env := setupCLITestEnv(t, withBinary(stub))

	if _, stderr, err := runCLI(t, []string{"run", "--no-history", "-i", "a", "-o", "b"}, env.configPath); err != nil {
		t.Fatalf("run: %v\n%s", err, stderr)
	}
	if runs := listRuns(t, env.configPath); len(runs) != 0 {
		t.Fatalf("expected no recorded runs, got %d", len(runs))
	}
}

func TestRunRequiresInputAndOutput(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, []string{"run", "-o", "out.mkv"}, env.configPath)
	if !errors.Is(err, faults.ErrConfiguration) {
		t.Fatalf("expected configuration error without input, got %v", err)
	}
	_, _, err = runCLI(t, []string{"run", "-i", "in.mkv"}, env.configPath)
	if !errors.Is(err, faults.ErrConfiguration) {
		t.Fatalf("expected configuration error without output, got %v", err)
	}
	_, _, err = runCLI(t, []string{"run", "-i", "in.mkv", "-o", "out.mkv", "--feed", "nope"}, env.configPath)
	if !errors.Is(err, faults.ErrConfiguration) {
		t.Fatalf("expected configuration error for bad feed address, got %v", err)
	}
}

func TestBuildInvocationMapsStdio(t *testing.T) {
	cfg := config.Default()
	opts := runOptions{
		inputs:       []string{"-"},
		inputFormat:  "s16le",
		output:       "-",
		outputFormat: "wav",
		overwrite:    true,
		noProgress:   true,
	}
	b, relays := buildInvocation("ffmpeg", &cfg, logging.NewNop(), opts, []string{"-ar", "48000"})
	if err := b.Err(); err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(relays) != 0 {
		t.Fatalf("expected no channel relays for plain stdio, got %d", len(relays))
	}
	got := strings.Join(b.Argv(), " ")
	want := "-hide_banner -f s16le -i pipe:0 -ar 48000 -f wav -y pipe:1"
	if got != want {
		t.Fatalf("argv mismatch\n got: %q\nwant: %q", got, want)
	}
	if strings.Contains(got, "-progress") {
		t.Fatalf("progress requested despite --no-progress: %q", got)
	}
}

func TestBuildInvocationRoutesStdioThroughChannels(t *testing.T) {
	cfg := config.Default()
	opts := runOptions{
		inputs:     []string{"-", "cover.png"},
		output:     "-",
		noProgress: true,
		viaChannel: true,
	}
	b, relays := buildInvocation("ffmpeg", &cfg, logging.NewNop(), opts, nil)
	defer b.Discard()
	if err := b.Err(); err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(relays) != 2 || !relays[0].input || relays[1].input {
		t.Fatalf("expected input then output relay, got %+v", relays)
	}
	want := []string{"-hide_banner", "-i", relays[0].ch.Path(), "-i", "cover.png", "-y", relays[1].ch.Path()}
	if got := b.Argv(); !slices.Equal(got, want) {
		t.Fatalf("argv mismatch\n got: %q\nwant: %q", got, want)
	}
	if slices.Contains(b.Argv(), "pipe:0") || slices.Contains(b.Argv(), "pipe:1") {
		t.Fatalf("stdio pipes used despite --channel: %q", b.Argv())
	}
}

func TestRunCarriesStdioOverChannels(t *testing.T) {
	// Arguments: -hide_banner -i IN -y OUT
	stub := writeStubFFmpeg(t, t.TempDir(), `tr a-z A-Z < "$3" > "$5"`)
	env := setupCLITestEnv(t, withBinary(stub), withoutHistory())

	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetIn(strings.NewReader("media bytes"))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"--config", env.configPath, "run", "--channel", "--no-progress", "-i", "-", "-o", "-"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("run: %v\n%s", err, stderr.String())
	}
	if got := stdout.String(); got != "MEDIA BYTES" {
		t.Fatalf("expected relayed output %q, got %q", "MEDIA BYTES", got)
	}
}

func TestRunRejectsSecondStdinInput(t *testing.T) {
	env := setupCLITestEnv(t, withBinary(writeStubFFmpeg(t, t.TempDir(), "exit 0")))
	_, _, err := runCLI(t, []string{"run", "-i", "-", "-i", "-", "-o", "out.mkv"}, env.configPath)
	if !errors.Is(err, faults.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestRunRefusesExistingOutput(t *testing.T) {
	stub := writeStubFFmpeg(t, t.TempDir(), `printf 'progress=end\n' > "$2"`)
	env := setupCLITestEnv(t, withBinary(stub))
	if err := os.WriteFile("out.mkv", []byte("keep"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, _, err := runCLI(t, []string{"run", "-i", "in.mkv", "-o", "out.mkv"}, env.configPath)
	if !errors.Is(err, faults.ErrConfiguration) {
		t.Fatalf("expected refusal for existing output, got %v", err)
	}
	if _, stderr, err := runCLI(t, []string{"run", "-y", "-i", "in.mkv", "-o", "out.mkv"}, env.configPath); err != nil {
		t.Fatalf("run --overwrite: %v\n%s", err, stderr)
	}
}

func TestIsLocalPath(t *testing.T) {
	cases := map[string]bool{
		"out.mkv":              true,
		"/tmp/out.mkv":         true,
		"file:///tmp/out.mkv":  true,
		"-":                    false,
		"pipe:1":               false,
		"rtmp://host/live/key": false,
		"srt://127.0.0.1:9000": false,
	}
	for target, want := range cases {
		if got := isLocalPath(target); got != want {
			t.Errorf("isLocalPath(%q) = %v, want %v", target, got, want)
		}
	}
}

func TestRunDryRunPrintsCommandLine(t *testing.T) {
	stub := writeStubFFmpeg(t, t.TempDir(), "touch ran\nexit 0")
	env := setupCLITestEnv(t, withBinary(stub))

	out, _, err := runCLI(t, []string{"run", "--dry-run", "--no-progress", "-i", "my clip.mkv", "-o", "out.mkv", "--", "-metadata", "title=it's"}, env.configPath)
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	want := stub + ` -hide_banner -i 'my clip.mkv' -metadata 'title=it'\''s' -y out.mkv`
	if got := strings.TrimSpace(out); got != want {
		t.Fatalf("dry run mismatch\n got: %q\nwant: %q", got, want)
	}
	if _, err := os.Stat("ran"); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("dry run started ffmpeg")
	}
	if runs := listRuns(t, env.configPath); len(runs) != 0 {
		t.Fatalf("dry run recorded %d runs", len(runs))
	}
}

func TestShellQuote(t *testing.T) {
	cases := []struct{ in, want string }{
		{"", "''"},
		{"-c:v", "-c:v"},
		{"a b", "'a b'"},
		{"it's", `'it'\''s'`},
		{"$HOME", "'$HOME'"},
	}
	for _, tc := range cases {
		if got := shellQuote(tc.in); got != tc.want {
			t.Errorf("shellQuote(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestLocateCommand(t *testing.T) {
	stub := writeStubFFmpeg(t, t.TempDir(), "exit 0")
	env := setupCLITestEnv(t, withBinary(stub))

	out, _, err := runCLI(t, []string{"locate"}, env.configPath)
	if err != nil {
		t.Fatalf("locate: %v", err)
	}
	if strings.TrimSpace(out) != stub {
		t.Fatalf("expected %q, got %q", stub, out)
	}
}

func TestLocateFindsInstalledBinary(t *testing.T) {
	env := setupCLITestEnv(t)
	t.Setenv("PATH", t.TempDir())
	installed := writeStubFFmpeg(t, env.installDir, "exit 0")

	out, _, err := runCLI(t, []string{"locate"}, env.configPath)
	if err != nil {
		t.Fatalf("locate: %v", err)
	}
	if strings.TrimSpace(out) != installed {
		t.Fatalf("expected %q, got %q", installed, out)
	}
}

func TestLocateMissingBinary(t *testing.T) {
	env := setupCLITestEnv(t)
	t.Setenv("PATH", t.TempDir())

	_, _, err := runCLI(t, []string{"locate"}, env.configPath)
	if !errors.Is(err, faults.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if code := exitCode(err); code != 2 {
		t.Fatalf("expected exit code 2, got %d", code)
	}
}
