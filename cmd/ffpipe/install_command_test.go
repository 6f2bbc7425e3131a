//go:build !windows

package main

import (
	"bytes"
	"compress/gzip"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"ffpipe/internal/faults"
	"ffpipe/internal/install"
)

func serveGzipped(t *testing.T, body string) *httptest.Server {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write([]byte(body)); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	payload := buf.Bytes()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ffmpeg.gz" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		_, _ = w.Write(payload)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestInstallCommandDownloadsBinary(t *testing.T) {
	srv := serveGzipped(t, "#!/bin/sh\nexit 0\n")
	env := setupCLITestEnv(t)
	t.Setenv("PATH", t.TempDir())
	dir := filepath.Join(t.TempDir(), "ffmpeg")

	out, stderr, err := runCLI(t, []string{"install", "--url", srv.URL + "/ffmpeg.gz", "--dir", dir}, env.configPath)
	if err != nil {
		t.Fatalf("install: %v\n%s", err, stderr)
	}
	target := filepath.Join(dir, "ffmpeg")
	requireContains(t, out, "ffmpeg installed at "+target)
	requireContains(t, stderr, "downloading ffmpeg")
	requireContains(t, stderr, "extracting ffmpeg")

	info, err := os.Stat(target)
	if err != nil {
		t.Fatalf("stat installed binary: %v", err)
	}
	if info.Mode().Perm()&0o111 == 0 {
		t.Fatalf("installed binary is not executable: %v", info.Mode())
	}
}

func TestLocateAutoInstall(t *testing.T) {
	srv := serveGzipped(t, "#!/bin/sh\nexit 0\n")
	env := setupCLITestEnv(t, withDownloadURL(srv.URL+"/ffmpeg.gz"))
	t.Setenv("PATH", t.TempDir())

	out, _, err := runCLI(t, []string{"locate", "--auto-install"}, env.configPath)
	if err != nil {
		t.Fatalf("locate --auto-install: %v", err)
	}
	if got := strings.TrimSpace(out); got != filepath.Join(env.installDir, "ffmpeg") {
		t.Fatalf("unexpected path %q", got)
	}
}

func TestInstallCommandReportsDownloadFailure(t *testing.T) {
	srv := serveGzipped(t, "unused")
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"install", "--url", srv.URL + "/missing.gz", "--dir", t.TempDir()}, env.configPath)
	if !errors.Is(err, faults.ErrDownload) {
		t.Fatalf("expected download error, got %v", err)
	}
}

func TestRenderInstallEventsPlain(t *testing.T) {
	events := make(chan install.Event, 8)
	events <- install.Event{Stage: install.StageStarting}
	events <- install.Event{Stage: install.StageDownloading, Downloaded: 10, Total: 100, Percent: 10, HasPercent: true}
	events <- install.Event{Stage: install.StageDownloading, Downloaded: 100, Total: 100, Percent: 100, HasPercent: true}
	events <- install.Event{Stage: install.StageExtracting}
	events <- install.Event{Stage: install.StageFinished}
	close(events)

	var out bytes.Buffer
	renderInstallEvents(&out, events)
	if got := out.String(); got != "downloading ffmpeg\nextracting ffmpeg\n" {
		t.Fatalf("unexpected output %q", got)
	}
}
