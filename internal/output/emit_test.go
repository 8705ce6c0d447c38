package output

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"
)

func TestEmitSink_NDJSON(t *testing.T) {
	var buf bytes.Buffer
	s, err := NewEmitSink(&buf, "ndjson")
	if err != nil {
		t.Fatalf("NewEmitSink returned error: %v", err)
	}

	_ = s.Write(Event{Type: EventRunStarted, Targets: 3})
	for _, r := range sampleResults() {
		_ = s.Write(r)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 ndjson lines, got %d", len(lines))
	}
	for i, line := range lines[1:] {
		var e Event
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("invalid json line %q: %v", line, err)
		}
		if e.Type != EventTargetResult {
			t.Fatalf("expected event type target.result, got %q", e.Type)
		}
		if e.Result == nil {
			t.Fatalf("expected event to include result, got nil")
		}
		if e.Target != sampleResults()[i].Target {
			t.Fatalf("unexpected target %q", e.Target)
		}
	}
}

func TestEmitSink_NDJSON_FlushesPerWrite(t *testing.T) {
	pr, pw := io.Pipe()
	defer pr.Close()
	defer pw.Close()

	bw := bufio.NewWriterSize(pw, 64*1024)
	s, err := NewEmitSink(bw, "ndjson")
	if err != nil {
		t.Fatalf("NewEmitSink returned error: %v", err)
	}

	lineCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		line, err := bufio.NewReader(pr).ReadString('\n')
		if err != nil {
			errCh <- err
			return
		}
		lineCh <- line
	}()

	if err := s.Write(Event{Type: EventTargetStarted, Target: "eclipse-zenoh/zenoh-c"}); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}

	select {
	case line := <-lineCh:
		if !strings.Contains(line, `"type":"target.started"`) || !strings.Contains(line, `"target":"eclipse-zenoh/zenoh-c"`) {
			t.Fatalf("unexpected line %q", line)
		}
	case err := <-errCh:
		t.Fatalf("read error: %v", err)
	case <-time.After(250 * time.Millisecond):
		t.Fatalf("timed out waiting for ndjson line; writer likely not flushing")
	}
}

func TestEmitSink_InvalidInput(t *testing.T) {
	var buf bytes.Buffer
	if _, err := NewEmitSink(&buf, "text"); err == nil {
		t.Fatalf("expected error for text format")
	}
	if _, err := NewEmitSink(nil, "json"); err == nil {
		t.Fatalf("expected error for nil writer")
	}
}
