package feed

import (
	"time"

	"ffpipe/internal/progress"
)

// Message types.
const (
	TypeRunStarted  = "run_started"
	TypeProgress    = "progress"
	TypeRunFinished = "run_finished"
)

// Message is the JSON document sent to observers.
type Message struct {
	Type     string    `json:"type"`
	RunID    string    `json:"run_id"`
	At       time.Time `json:"at"`
	Args     []string  `json:"args,omitempty"`
	Progress *Progress `json:"progress,omitempty"`
	Status   string    `json:"status,omitempty"`
	ExitCode *int      `json:"exit_code,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Progress mirrors progress.Snapshot with JSON names matching ffmpeg's keys.
type Progress struct {
	Frame      *uint64  `json:"frame,omitempty"`
	FPS        *float64 `json:"fps,omitempty"`
	Bitrate    *float64 `json:"bitrate_kbits,omitempty"`
	TotalSize  *uint64  `json:"total_size,omitempty"`
	OutTimeUS  *uint64  `json:"out_time_us,omitempty"`
	DupFrames  *uint64  `json:"dup_frames,omitempty"`
	DropFrames *uint64  `json:"drop_frames,omitempty"`
	Speed      *float64 `json:"speed,omitempty"`
	State      string   `json:"progress"`
}

// RunStarted announces a new invocation.
func RunStarted(runID string, args []string) Message {
	return Message{Type: TypeRunStarted, RunID: runID, At: time.Now().UTC(), Args: args}
}

// ProgressUpdate wraps one snapshot.
func ProgressUpdate(runID string, snap progress.Snapshot) Message {
	return Message{
		Type:  TypeProgress,
		RunID: runID,
		At:    time.Now().UTC(),
		Progress: &Progress{
			Frame:      snap.Frame,
			FPS:        snap.FPS,
			Bitrate:    snap.Bitrate,
			TotalSize:  snap.TotalSize,
			OutTimeUS:  snap.OutTimeUS,
			DupFrames:  snap.DupFrames,
			DropFrames: snap.DropFrames,
			Speed:      snap.Speed,
			State:      snap.Status.String(),
		},
	}
}

// RunFinished announces how an invocation ended.
func RunFinished(runID, status string, exitCode *int, err error) Message {
	msg := Message{Type: TypeRunFinished, RunID: runID, At: time.Now().UTC(), Status: status, ExitCode: exitCode}
	if err != nil {
		msg.Error = err.Error()
	}
	return msg
}
