package main

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"ffpipe/internal/faults"
	"ffpipe/internal/history"
)

func seedRuns(t *testing.T, path string, n int) []string {
	t.Helper()
	store, err := history.Open(path)
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	defer store.Close()

	ids := make([]string, 0, n)
	for i := range n {
		id, err := store.Begin(context.Background(), "ffmpeg", []string{"-i", fmt.Sprintf("in%d.mkv", i), "out.mkv"})
		if err != nil {
			t.Fatalf("begin: %v", err)
		}
		code := 0
		if err := store.Finish(context.Background(), id, history.Outcome{Status: history.StatusSucceeded, ExitCode: &code}); err != nil {
			t.Fatalf("finish: %v", err)
		}
		ids = append(ids, id)
		time.Sleep(2 * time.Millisecond)
	}
	return ids
}

func TestHistoryListTable(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"history", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("history list: %v", err)
	}
	requireContains(t, out, "No runs recorded")

	ids := seedRuns(t, env.historyPath, 2)
	out, _, err = runCLI(t, []string{"history", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("history list: %v", err)
	}
	requireContains(t, out, ids[0])
	requireContains(t, out, ids[1])
	requireContains(t, out, "Succeeded")
	requireContains(t, out, "-i in1.mkv out.mkv")
}

func TestHistoryPruneKeepsNewest(t *testing.T) {
	env := setupCLITestEnv(t)
	ids := seedRuns(t, env.historyPath, 3)

	out, _, err := runCLI(t, []string{"history", "prune", "--keep", "1"}, env.configPath)
	if err != nil {
		t.Fatalf("history prune: %v", err)
	}
	requireContains(t, out, "Removed 2 run(s)")

	if _, _, err := runCLI(t, []string{"history", "show", ids[2]}, env.configPath); err != nil {
		t.Fatalf("newest run should survive: %v", err)
	}
	_, _, err = runCLI(t, []string{"history", "show", ids[0]}, env.configPath)
	if !errors.Is(err, faults.ErrNotFound) {
		t.Fatalf("expected pruned run to be gone, got %v", err)
	}
}

func TestHistoryRejectsNegativeKeep(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, []string{"history", "prune", "--keep", "-1"}, env.configPath)
	if !errors.Is(err, faults.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestHistoryDisabled(t *testing.T) {
	env := setupCLITestEnv(t, withoutHistory())
	_, _, err := runCLI(t, []string{"history", "list"}, env.configPath)
	if !errors.Is(err, faults.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("unexpected %q", got)
	}
	if got := truncate("abcdefghij", 5); got != "abcd…" {
		t.Fatalf("unexpected %q", got)
	}
}
