package progress

import "testing"

func TestFramerSplitsAcrossChunks(t *testing.T) {
	var f framer
	input := "frame=1\nprogress=continue\nframe=2\nprogress=end\n"

	var records []string
	for i := 0; i < len(input); i += 5 {
		end := min(i+5, len(input))
		records = append(records, f.push([]byte(input[i:end]))...)
	}

	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d: %q", len(records), records)
	}
	if records[0] != "frame=1\nprogress=continue\n" {
		t.Fatalf("unexpected first record %q", records[0])
	}
	if records[1] != "frame=2\nprogress=end\n" {
		t.Fatalf("unexpected second record %q", records[1])
	}
	if rest := f.flush(); rest != "" {
		t.Fatalf("expected empty remainder, got %q", rest)
	}
}

func TestFramerAcceptsUnterminatedEndLine(t *testing.T) {
	var f framer
	records := f.push([]byte("frame=9\nprogress=end"))
	if len(records) != 1 || !Parse(records[0]).Terminal() {
		t.Fatalf("expected terminal record, got %q", records)
	}
}

func TestFramerKeepsPartialRecord(t *testing.T) {
	var f framer
	if records := f.push([]byte("frame=3\nfps=2")); len(records) != 0 {
		t.Fatalf("expected no complete records, got %q", records)
	}
	if rest := f.flush(); rest != "frame=3\nfps=2" {
		t.Fatalf("unexpected remainder %q", rest)
	}
}
