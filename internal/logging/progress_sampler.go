package logging

import (
	"strings"
	"time"
)

// DefaultProgressInterval is the media-time bucket used when none is given.
const DefaultProgressInterval = 30 * time.Second

// ProgressSampler suppresses repetitive progress logs while preserving signal
// when the reported status changes or the media clock crosses a bucket.
type ProgressSampler struct {
	interval   time.Duration
	lastStatus string
	lastBucket int64
}

// NewProgressSampler constructs a sampler that emits when elapsed media time
// crosses an interval boundary or when the status changes.
func NewProgressSampler(interval time.Duration) *ProgressSampler {
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	return &ProgressSampler{interval: interval, lastBucket: -1}
}

// ShouldLog reports whether a progress record should be logged. A negative
// elapsed means the record carried no timestamp; status is trimmed before
// comparison.
func (s *ProgressSampler) ShouldLog(elapsed time.Duration, status string) bool {
	if s == nil {
		return true
	}
	status = strings.TrimSpace(status)
	emit := false
	if status != "" && status != s.lastStatus {
		s.lastStatus = status
		emit = true
	}
	if elapsed >= 0 {
		bucket := int64(elapsed / s.interval)
		if bucket > s.lastBucket {
			s.lastBucket = bucket
			emit = true
		}
	}
	return emit
}

// Reset clears the sampler state (e.g. when a new run starts).
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.lastStatus = ""
	s.lastBucket = -1
}
