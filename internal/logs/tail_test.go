package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"l2writer/internal/logs"
)

func TestTailLastLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "l2writer.log")
	if err := os.WriteFile(path, []byte("a\nb\nc\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	result, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: -1, Limit: 2})
	if err != nil {
		t.Fatalf("tail returned error: %v", err)
	}
	if len(result.Lines) != 2 || result.Lines[0] != "b" || result.Lines[1] != "c" {
		t.Fatalf("unexpected lines: %#v", result.Lines)
	}
	if result.Offset != 6 {
		t.Fatalf("expected offset 6, got %d", result.Offset)
	}
}

func TestTailMissingFile(t *testing.T) {
	result, err := logs.Tail(context.Background(), filepath.Join(t.TempDir(), "nope.log"), logs.TailOptions{Offset: -1, Limit: 5})
	if err != nil {
		t.Fatalf("tail returned error: %v", err)
	}
	if len(result.Lines) != 0 || result.Offset != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestTailFromOffset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "l2writer.log")
	if err := os.WriteFile(path, []byte("a\nb\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	result, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: 2})
	if err != nil {
		t.Fatalf("tail returned error: %v", err)
	}
	if len(result.Lines) != 1 || result.Lines[0] != "b" {
		t.Fatalf("unexpected lines: %#v", result.Lines)
	}
}

func TestTailFollowWaits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "l2writer.log")
	if err := os.WriteFile(path, []byte("start\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	initial, err := logs.Tail(ctx, path, logs.TailOptions{Offset: -1, Limit: 1})
	if err != nil {
		t.Fatalf("initial tail: %v", err)
	}

	type outcome struct {
		result logs.TailResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := logs.Tail(ctx, path, logs.TailOptions{Offset: initial.Offset, Follow: true, Wait: 5 * time.Second})
		done <- outcome{res, err}
	}()

	time.Sleep(200 * time.Millisecond)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	if _, err := f.WriteString("later\n"); err != nil {
		t.Fatalf("append log: %v", err)
	}
	_ = f.Close()

	select {
	case got := <-done:
		if got.err != nil {
			t.Fatalf("follow tail error: %v", got.err)
		}
		if len(got.result.Lines) != 1 || got.result.Lines[0] != "later" {
			t.Fatalf("unexpected follow lines: %#v", got.result.Lines)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("tail follow did not return")
	}
}

func TestFilterMatch(t *testing.T) {
	jsonLine := `{"time":"2024-03-01T12:30:00Z","level":"INFO","msg":"batch flushed","component":"workflow","event_type":"batch_flushed"}`
	consoleLine := `2024-03-01 12:30:00 WARN spool poll failed component=spool event_type=spool_poll_failed`

	tests := []struct {
		name   string
		filter logs.Filter
		line   string
		want   bool
	}{
		{"empty matches", logs.Filter{}, jsonLine, true},
		{"json level", logs.Filter{Level: "info"}, jsonLine, true},
		{"json component mismatch", logs.Filter{Component: "spool"}, jsonLine, false},
		{"json event", logs.Filter{EventType: "batch_flushed"}, jsonLine, true},
		{"console substring", logs.Filter{Component: "spool"}, consoleLine, true},
		{"console missing", logs.Filter{EventType: "batch_flushed"}, consoleLine, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Match(tt.line); got != tt.want {
				t.Fatalf("Match = %v, want %v", got, tt.want)
			}
		})
	}

	kept := logs.Filter{Component: "workflow"}.Apply([]string{jsonLine, consoleLine})
	if len(kept) != 1 || kept[0] != jsonLine {
		t.Fatalf("unexpected Apply result: %#v", kept)
	}
}
