package netlog

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestLoggerPassAllByDefault(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, 16)
	l.SetColor(false)
	l.Log(SourceBGP, "hello %s", "world")
	l.Close()

	if got := buf.String(); !strings.Contains(got, "[BGP] hello world") {
		t.Fatalf("expected log line, got %q", got)
	}
}

func TestLoggerFilterExcludesUnlistedSources(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, 16)
	l.SetColor(false)
	l.SetFilter(SourceBGP)

	l.Log(SourceARP, "should be dropped")
	l.Log(SourceBGP, "should appear")
	l.Close()

	got := buf.String()
	if strings.Contains(got, "dropped") {
		t.Fatalf("ARP record leaked through filter: %q", got)
	}
	if !strings.Contains(got, "should appear") {
		t.Fatalf("BGP record missing: %q", got)
	}
}

func TestLoggerFilterClearedByEmptyCall(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, 16)
	l.SetColor(false)
	l.SetFilter(SourceBGP)
	l.SetFilter()

	l.Log(SourceARP, "now visible")
	l.Close()

	if !strings.Contains(buf.String(), "now visible") {
		t.Fatalf("expected ARP record after clearing filter")
	}
}

func TestLoggerDoesNotDeadlockOnClose(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, 1)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			l.Log(SourceDebug, "line %d", i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("logging goroutine appears stuck")
	}
	l.Close()
}
