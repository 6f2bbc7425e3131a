//go:build !windows

package progress

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ffpipe/internal/pipe"
)

func startMonitor(t *testing.T, opts ...Option) (*Monitor, *os.File) {
	t.Helper()
	ch, err := pipe.CreateAt(filepath.Join(t.TempDir(), "progress.pipe"))
	if err != nil {
		t.Fatalf("CreateAt: %v", err)
	}
	m := Start(ch, opts...)
	t.Cleanup(func() { _ = m.Close() })

	// ffmpeg opens the progress target write-only.
	w, err := os.OpenFile(m.Path(), os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("open writer: %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })
	return m, w
}

func collect(t *testing.T, m *Monitor) []Snapshot {
	t.Helper()
	var out []Snapshot
	timeout := time.After(10 * time.Second)
	for {
		select {
		case snap, ok := <-m.Updates():
			if !ok {
				return out
			}
			out = append(out, snap)
		case <-timeout:
			t.Fatalf("monitor did not finish, got %d snapshots", len(out))
		}
	}
}

func TestMonitorStopsAtEndRecord(t *testing.T) {
	m, w := startMonitor(t, WithChunkSize(7))

	input := "frame=1\nfps=25\nprogress=continue\nframe=2\nprogress=continue\nframe=3\nprogress=end\n"
	if _, err := w.WriteString(input); err != nil {
		t.Fatal(err)
	}

	snaps := collect(t, m)
	if len(snaps) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(snaps))
	}
	for i, snap := range snaps {
		if snap.Frame == nil || *snap.Frame != uint64(i+1) {
			t.Fatalf("snapshot %d out of order: %v", i, snap.Frame)
		}
	}
	if !snaps[2].Terminal() {
		t.Fatal("expected last snapshot to be terminal")
	}
	<-m.Done()
	if err := m.Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMonitorTreatsClosedChannelAsEnd(t *testing.T) {
	m, w := startMonitor(t)

	if _, err := w.WriteString("frame=1\nprogress=continue\nframe=2\n"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	_ = w.Close()

	snaps := collect(t, m)
	if len(snaps) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snaps))
	}
	if snaps[1].Frame == nil || *snaps[1].Frame != 2 || snaps[1].Terminal() {
		t.Fatalf("unexpected trailing snapshot %+v", snaps[1])
	}
	if err := m.Err(); err != nil {
		t.Fatalf("closed channel should not be an error, got %v", err)
	}
}

func TestMonitorDrainsPipeWhileConsumerIsIdle(t *testing.T) {
	m, w := startMonitor(t, WithCapacity(4))

	const records = 5000
	var b strings.Builder
	for i := range records {
		fmt.Fprintf(&b, "frame=%d\nout_time_us=%d\nprogress=continue\n", i, i*40000)
	}
	b.WriteString("progress=end\n")

	written := make(chan error, 1)
	go func() {
		_, err := w.WriteString(b.String())
		written <- err
	}()

	// The payload exceeds the pipe buffer; the write only finishes if the
	// reader keeps draining while nobody consumes Updates.
	select {
	case err := <-written:
		if err != nil {
			t.Fatalf("write: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("writer stalled behind an idle consumer")
	}

	snaps := collect(t, m)
	if len(snaps) != records+1 {
		t.Fatalf("expected %d snapshots, got %d", records+1, len(snaps))
	}
}

func TestMonitorCloseAbandonsDelivery(t *testing.T) {
	m, w := startMonitor(t)
	if _, err := w.WriteString("frame=1\nprogress=continue\n"); err != nil {
		t.Fatal(err)
	}
	_ = m.Close()

	select {
	case <-m.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not stop after Close")
	}
}

func TestMonitorReleaseWithoutWriter(t *testing.T) {
	ch, err := pipe.CreateAt(filepath.Join(t.TempDir(), "progress.pipe"))
	if err != nil {
		t.Fatalf("CreateAt: %v", err)
	}
	m := Start(ch)
	t.Cleanup(func() { _ = m.Close() })

	m.Release(50 * time.Millisecond)
	if snaps := collect(t, m); len(snaps) != 0 {
		t.Fatalf("expected no snapshots, got %d", len(snaps))
	}
	if err := m.Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMonitorReleaseKeepsBufferedRecords(t *testing.T) {
	m, w := startMonitor(t)
	if _, err := w.WriteString("frame=1\nprogress=continue\nframe=2\nprogress=continue\n"); err != nil {
		t.Fatal(err)
	}
	_ = w.Close()
	m.Release(2 * time.Second)

	snaps := collect(t, m)
	if len(snaps) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snaps))
	}
	if snaps[1].Frame == nil || *snaps[1].Frame != 2 {
		t.Fatalf("expected last frame 2, got %v", snaps[1].Frame)
	}
}
