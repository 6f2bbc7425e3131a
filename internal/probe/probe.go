package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"ffpipe/internal/faults"
)

const component = "probe"

// ProgramName is the binary looked up when no sibling of ffmpeg exists.
const ProgramName = "ffprobe"

// Result is the parsed output of one ffprobe call.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes one elementary stream of the container.
type Stream struct {
	Index      int    `json:"index"`
	CodecName  string `json:"codec_name"`
	CodecType  string `json:"codec_type"`
	Duration   string `json:"duration"`
	BitRate    string `json:"bit_rate"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	SampleRate string `json:"sample_rate"`
	Channels   int    `json:"channels"`
	AvgFrame   string `json:"avg_frame_rate"`
}

// Format is container-level metadata.
type Format struct {
	Filename   string `json:"filename"`
	NBStreams  int    `json:"nb_streams"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

// BinaryFor returns the ffprobe paired with ffmpegPath: a sibling in the same
// directory when one exists, otherwise whatever PATH resolves.
func BinaryFor(ffmpegPath string) string {
	if dir := filepath.Dir(strings.TrimSpace(ffmpegPath)); dir != "." && dir != "" {
		sibling := filepath.Join(dir, ProgramName+filepath.Ext(ffmpegPath))
		if info, err := os.Stat(sibling); err == nil && !info.IsDir() {
			return sibling
		}
	}
	return ProgramName
}

// Inspect runs ffprobe against target and decodes its JSON report. An empty
// binary means ProgramName.
func Inspect(ctx context.Context, binary, target string) (*Result, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = ProgramName
	}
	if strings.TrimSpace(target) == "" {
		return nil, faults.Wrap(faults.ErrConfiguration, component, "inspect", "empty target", nil)
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary,
		"-v", "error", "-hide_banner",
		"-show_format", "-show_streams",
		"-of", "json",
		"--", target,
	)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, faults.Wrap(faults.ErrSpawnFailed, component, "inspect", binary, err)
		}
		return nil, faults.Wrap(faults.ErrIO, component, "inspect", strings.TrimSpace(stderr.String()), err)
	}
	return Parse(stdout.Bytes())
}

// Parse decodes an ffprobe JSON report.
func Parse(data []byte) (*Result, error) {
	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, faults.Wrap(faults.ErrIO, component, "parse", "ffprobe report", err)
	}
	return &result, nil
}

// StreamCount returns how many streams have the given codec type
// ("video", "audio", "subtitle").
func (r *Result) StreamCount(codecType string) int {
	count := 0
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, codecType) {
			count++
		}
	}
	return count
}

// Duration is the container duration. ok is false when ffprobe reported
// none, as for live sources.
func (r *Result) Duration() (time.Duration, bool) {
	seconds, ok := parseNumber(r.Format.Duration)
	if !ok || seconds <= 0 {
		return 0, false
	}
	return time.Duration(seconds * float64(time.Second)), true
}

// SizeBytes is the container size, or 0 when unknown.
func (r *Result) SizeBytes() uint64 {
	size, ok := parseNumber(r.Format.Size)
	if !ok || size < 0 {
		return 0
	}
	return uint64(size)
}

// BitRate is the container bitrate in bits per second, or 0 when unknown.
func (r *Result) BitRate() uint64 {
	rate, ok := parseNumber(r.Format.BitRate)
	if !ok || rate < 0 {
		return 0
	}
	return uint64(rate)
}

// FrameRate parses avg_frame_rate ("30000/1001") into frames per second.
func (s Stream) FrameRate() (float64, bool) {
	num, den, found := strings.Cut(strings.TrimSpace(s.AvgFrame), "/")
	n, ok := parseNumber(num)
	if !ok {
		return 0, false
	}
	if !found {
		return n, n > 0
	}
	d, ok := parseNumber(den)
	if !ok || d == 0 {
		return 0, false
	}
	return n / d, n > 0
}

func parseNumber(value string) (float64, bool) {
	value = strings.TrimSpace(value)
	if value == "" || value == "N/A" {
		return 0, false
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return 0, false
	}
	return parsed, true
}
