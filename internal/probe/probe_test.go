package probe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"ffpipe/internal/faults"
)

const sampleReport = `{
  "streams": [
    {"index": 0, "codec_name": "h264", "codec_type": "video", "width": 1920, "height": 1080, "avg_frame_rate": "30000/1001"},
    {"index": 1, "codec_name": "aac", "codec_type": "audio", "sample_rate": "48000", "channels": 2, "avg_frame_rate": "0/0"},
    {"index": 2, "codec_name": "opus", "codec_type": "audio", "sample_rate": "48000", "channels": 6}
  ],
  "format": {"filename": "in.mkv", "nb_streams": 3, "format_name": "matroska,webm", "duration": "123.450000", "size": "1000", "bit_rate": "32000"}
}`

func TestParseReport(t *testing.T) {
	result, err := Parse([]byte(sampleReport))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := result.StreamCount("video"); got != 1 {
		t.Fatalf("expected 1 video stream, got %d", got)
	}
	if got := result.StreamCount("AUDIO"); got != 2 {
		t.Fatalf("expected 2 audio streams, got %d", got)
	}
	duration, ok := result.Duration()
	if !ok || duration != 123450*time.Millisecond {
		t.Fatalf("unexpected duration %v (ok=%v)", duration, ok)
	}
	if result.SizeBytes() != 1000 {
		t.Fatalf("unexpected size %d", result.SizeBytes())
	}
	if result.BitRate() != 32000 {
		t.Fatalf("unexpected bitrate %d", result.BitRate())
	}
	fps, ok := result.Streams[0].FrameRate()
	if !ok || fps < 29.97 || fps > 29.98 {
		t.Fatalf("unexpected frame rate %v (ok=%v)", fps, ok)
	}
	if _, ok := result.Streams[1].FrameRate(); ok {
		t.Fatal("0/0 frame rate should be unknown")
	}
}

func TestResultHandlesMissingNumbers(t *testing.T) {
	result := &Result{Format: Format{Duration: "N/A", Size: "-1", BitRate: "nope"}}
	if _, ok := result.Duration(); ok {
		t.Fatal("expected unknown duration")
	}
	if result.SizeBytes() != 0 {
		t.Fatalf("expected size 0, got %d", result.SizeBytes())
	}
	if result.BitRate() != 0 {
		t.Fatalf("expected bitrate 0, got %d", result.BitRate())
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse([]byte("not json")); !errors.Is(err, faults.ErrIO) {
		t.Fatalf("expected io error, got %v", err)
	}
}

func TestBinaryForPrefersSibling(t *testing.T) {
	dir := t.TempDir()
	ffmpeg := filepath.Join(dir, "ffmpeg")
	if got := BinaryFor(ffmpeg); got != ProgramName {
		t.Fatalf("expected PATH fallback, got %q", got)
	}
	sibling := filepath.Join(dir, "ffprobe")
	if err := os.WriteFile(sibling, nil, 0o755); err != nil {
		t.Fatal(err)
	}
	if got := BinaryFor(ffmpeg); got != sibling {
		t.Fatalf("expected sibling %q, got %q", sibling, got)
	}
}

func TestInspectRunsBinary(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell stub")
	}
	dir := t.TempDir()
	report := filepath.Join(dir, "report.json")
	if err := os.WriteFile(report, []byte(sampleReport), 0o644); err != nil {
		t.Fatal(err)
	}
	stub := filepath.Join(dir, "ffprobe")
	script := "#!/bin/sh\nfor last; do :; done\n[ \"$last\" = in.mkv ] || exit 1\ncat " + report + "\n"
	if err := os.WriteFile(stub, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}

	result, err := Inspect(context.Background(), stub, "in.mkv")
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if result.Format.FormatName != "matroska,webm" {
		t.Fatalf("unexpected format %q", result.Format.FormatName)
	}

	if _, err := Inspect(context.Background(), stub, "other.mkv"); !errors.Is(err, faults.ErrIO) {
		t.Fatalf("expected io error for failing probe, got %v", err)
	}
	if _, err := Inspect(context.Background(), filepath.Join(dir, "missing"), "in.mkv"); !errors.Is(err, faults.ErrSpawnFailed) {
		t.Fatalf("expected spawn failure, got %v", err)
	}
	if _, err := Inspect(context.Background(), stub, " "); !errors.Is(err, faults.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
