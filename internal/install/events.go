package install

import "fmt"

// Stage identifies a step of an installation.
type Stage int

const (
	StageStarting Stage = iota
	StageDownloading
	StageExtracting
	StageFinished
)

func (s Stage) String() string {
	switch s {
	case StageStarting:
		return "starting"
	case StageDownloading:
		return "downloading"
	case StageExtracting:
		return "extracting"
	case StageFinished:
		return "finished"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Event reports installation progress. Percent is only meaningful when
// HasPercent is set, which requires the server to announce a length.
type Event struct {
	Stage      Stage
	Percent    int
	HasPercent bool
	Downloaded int64
	Total      int64
}

// EventBuffer is the capacity of the channel returned by Download.Events.
const EventBuffer = 256

// emit delivers ev without blocking; progress is best effort.
func emit(events chan<- Event, ev Event) {
	if events == nil {
		return
	}
	select {
	case events <- ev:
	default:
	}
}
