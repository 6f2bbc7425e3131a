package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"ffpipe/internal/progress"
)

var numberPrinter = message.NewPrinter(language.English)

// formatProgressLine renders the fields a snapshot carries, skipping the rest.
// total is the input duration when known.
func formatProgressLine(snap progress.Snapshot, total time.Duration) string {
	parts := make([]string, 0, 6)
	if snap.Frame != nil {
		parts = append(parts, numberPrinter.Sprintf("frame %d", *snap.Frame))
	}
	if snap.FPS != nil {
		parts = append(parts, "fps "+strconv.FormatFloat(*snap.FPS, 'f', 1, 64))
	}
	if elapsed, ok := snap.Elapsed(); ok {
		parts = append(parts, "time "+formatClock(elapsed))
	}
	if percent, ok := progressPercent(snap, total); ok {
		parts = append(parts, strconv.FormatFloat(percent, 'f', 1, 64)+"%")
	}
	if snap.TotalSize != nil {
		parts = append(parts, "size "+humanize.IBytes(*snap.TotalSize))
	}
	if snap.Bitrate != nil {
		parts = append(parts, fmt.Sprintf("bitrate %.1f kbit/s", *snap.Bitrate))
	}
	if snap.Speed != nil {
		parts = append(parts, fmt.Sprintf("speed %.2fx", *snap.Speed))
	}
	if drops := snap.DropFrames; drops != nil && *drops > 0 {
		parts = append(parts, numberPrinter.Sprintf("dropped %d", *drops))
	}
	if len(parts) == 0 {
		return snap.Status.String()
	}
	return strings.Join(parts, "  ")
}

// progressPercent is the media time reached as a share of total, capped at
// 100. ffmpeg may overshoot the probed duration by a frame or two.
func progressPercent(snap progress.Snapshot, total time.Duration) (float64, bool) {
	elapsed, ok := snap.Elapsed()
	if !ok || total <= 0 {
		return 0, false
	}
	return min(100, float64(elapsed)/float64(total)*100), true
}

// formatClock prints d as HH:MM:SS.cc the way ffmpeg reports out_time.
func formatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second
	d -= seconds * time.Second
	centis := d / (10 * time.Millisecond)
	return fmt.Sprintf("%02d:%02d:%02d.%02d", hours, minutes, seconds, centis)
}

// liveLine redraws a single status line in place on a terminal.
type liveLine struct {
	w       io.Writer
	lastLen int
	drawn   bool
}

func newLiveLine(w io.Writer) *liveLine {
	return &liveLine{w: w}
}

func (l *liveLine) Update(line string) {
	pad := ""
	if n := l.lastLen - len(line); n > 0 {
		pad = strings.Repeat(" ", n)
	}
	fmt.Fprintf(l.w, "\r%s%s", line, pad)
	l.lastLen = len(line)
	l.drawn = true
}

// Finish moves past the status line so later output starts on a new line.
func (l *liveLine) Finish() {
	if l.drawn {
		fmt.Fprintln(l.w)
		l.drawn = false
		l.lastLen = 0
	}
}
