package progress

import (
	"bufio"
	"math"
	"strconv"
	"strings"
	"time"
)

// Status is the value of the progress key that terminates each record.
type Status int

const (
	StatusUnknown Status = iota
	StatusContinue
	StatusEnd
)

func (s Status) String() string {
	switch s {
	case StatusContinue:
		return "continue"
	case StatusEnd:
		return "end"
	default:
		return "unknown"
	}
}

// Snapshot is one parsed progress record. Every field is optional: absent,
// "N/A", or malformed values leave it nil.
type Snapshot struct {
	Frame      *uint64
	FPS        *float64
	Bitrate    *float64 // kbit/s
	TotalSize  *uint64  // bytes
	OutTimeUS  *uint64
	OutTimeMS  *uint64
	DupFrames  *uint64
	DropFrames *uint64
	Speed      *float64
	Status     Status
}

// Terminal reports whether this is the final record of the stream.
func (s Snapshot) Terminal() bool {
	return s.Status == StatusEnd
}

// Elapsed returns the media time encoded so far. ffmpeg writes microseconds
// under both out_time_us and out_time_ms.
func (s Snapshot) Elapsed() (time.Duration, bool) {
	switch {
	case s.OutTimeUS != nil:
		return time.Duration(*s.OutTimeUS) * time.Microsecond, true
	case s.OutTimeMS != nil:
		return time.Duration(*s.OutTimeMS) * time.Microsecond, true
	default:
		return 0, false
	}
}

// Parse converts a block of key=value lines into a Snapshot. Unknown keys
// and lines without '=' are ignored.
func Parse(block string) Snapshot {
	var snap Snapshot
	scanner := bufio.NewScanner(strings.NewReader(block))
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch key {
		case "frame":
			snap.Frame = parseUint(value)
		case "fps":
			snap.FPS = parseFloat(value)
		case "bitrate":
			snap.Bitrate = parseFloat(prefixBefore(value, "kbits"))
		case "total_size":
			snap.TotalSize = parseUint(value)
		case "out_time_us":
			snap.OutTimeUS = parseUint(value)
		case "out_time_ms":
			snap.OutTimeMS = parseUint(value)
		case "dup_frames":
			snap.DupFrames = parseUint(value)
		case "drop_frames":
			snap.DropFrames = parseUint(value)
		case "speed":
			snap.Speed = parseFloat(prefixBefore(value, "x"))
		case "progress":
			snap.Status = parseStatus(value)
		}
	}
	return snap
}

func parseStatus(value string) Status {
	switch value {
	case "continue":
		return StatusContinue
	case "end":
		return StatusEnd
	default:
		return StatusUnknown
	}
}

func prefixBefore(value, suffix string) string {
	idx := strings.Index(value, suffix)
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(value[:idx])
}

func parseUint(value string) *uint64 {
	v, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

func parseFloat(value string) *float64 {
	if value == "" || value == "N/A" {
		return nil
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
