package pipe

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"ffpipe/internal/faults"
)

func TestCreateUsesRandomName(t *testing.T) {
	a, err := Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer a.Close()
	b, err := Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer b.Close()

	if a.Path() == b.Path() {
		t.Fatalf("expected distinct paths, both %q", a.Path())
	}
}

func TestPathForName(t *testing.T) {
	path := PathForName("abcDEF1234")
	if !strings.Contains(path, "abcDEF1234") {
		t.Fatalf("expected name in path, got %q", path)
	}
}

func TestListenConsumesChannel(t *testing.T) {
	ch, err := Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	client := connectAsync(ch.Path())

	stream, err := ch.Listen()
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer stream.Close()
	if res := <-client; res.err == nil {
		defer res.stream.Close()
	} else {
		t.Fatalf("Connect: %v", res.err)
	}

	if _, err := ch.Listen(); !errors.Is(err, faults.ErrStateViolation) {
		t.Fatalf("expected state violation on second listen, got %v", err)
	}
	if err := ch.Close(); err != nil {
		t.Fatalf("Close after listen should be a no-op, got %v", err)
	}
}

func TestRoundTripClientToListener(t *testing.T) {
	payload := bytes.Repeat([]byte("0123456789abcdef"), 1024)
	for _, size := range []int{1, 512, 4096, len(payload)} {
		ch, err := Create()
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		client := connectAsync(ch.Path())
		server, err := ch.Listen()
		if err != nil {
			t.Fatalf("Listen: %v", err)
		}
		res := <-client
		if res.err != nil {
			t.Fatalf("Connect: %v", res.err)
		}

		want := payload[:size]
		go func() {
			_, _ = res.stream.Write(want)
			_ = res.stream.Close()
		}()

		got, err := io.ReadAll(server)
		_ = server.Close()
		if err != nil {
			t.Fatalf("size %d: read: %v", size, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("size %d: got %d bytes, want %d", size, len(got), len(want))
		}
	}
}

func TestRoundTripListenerToClient(t *testing.T) {
	ch, err := Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	client := connectAsync(ch.Path())
	server, err := ch.Listen()
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	res := <-client
	if res.err != nil {
		t.Fatalf("Connect: %v", res.err)
	}
	defer res.stream.Close()

	want := []byte("progress=continue\n")
	go func() {
		_, _ = server.Write(want)
		_ = server.Close()
	}()

	got, err := io.ReadAll(res.stream)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

type dialResult struct {
	stream Stream
	err    error
}

func connectAsync(path string) <-chan dialResult {
	out := make(chan dialResult, 1)
	go func() {
		s, err := Connect(path)
		out <- dialResult{stream: s, err: err}
	}()
	return out
}
