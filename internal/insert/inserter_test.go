package insert

import (
	"bytes"
	"context"
	"errors"
	"runtime"
	"testing"
)

func TestWriterInserterAppendsText(t *testing.T) {
	var buf bytes.Buffer
	inserter := NewWriterInserter(&buf)

	for _, text := range []string{"hello ", "world ", ""} {
		if err := inserter.InsertText(context.Background(), text); err != nil {
			t.Fatalf("InsertText(%q) failed: %v", text, err)
		}
	}

	if got := buf.String(); got != "hello world " {
		t.Errorf("expected 'hello world ', got %q", got)
	}
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, errors.New("write refused")
}

func TestWriterInserterPropagatesWriteErrors(t *testing.T) {
	inserter := NewWriterInserter(failingWriter{})

	if err := inserter.InsertText(context.Background(), "text"); err == nil {
		t.Error("expected the writer error to surface")
	}
}

func TestNewToolInserterValidatesTool(t *testing.T) {
	if _, err := NewToolInserter("notepad"); err == nil {
		t.Error("expected an error for an unknown tool")
	}

	for _, tool := range []string{"wtype", "xdotool", "osascript"} {
		if _, err := NewToolInserter(tool); err != nil {
			t.Errorf("NewToolInserter(%q) failed: %v", tool, err)
		}
	}
}

func TestNewToolInserterAutoPicksPlatformDefault(t *testing.T) {
	inserter, err := NewToolInserter("auto")
	if err != nil {
		t.Fatalf("NewToolInserter(auto) failed: %v", err)
	}

	want := "wtype"
	if runtime.GOOS == "darwin" {
		want = "osascript"
	}
	if inserter.tool != want {
		t.Errorf("expected default tool %s on %s, got %s", want, runtime.GOOS, inserter.tool)
	}
}

func TestToolInserterSkipsEmptyText(t *testing.T) {
	inserter, err := NewToolInserter("wtype")
	if err != nil {
		t.Fatalf("NewToolInserter failed: %v", err)
	}

	// Empty text must not shell out at all, so this succeeds even when the
	// tool binary is absent.
	if err := inserter.InsertText(context.Background(), ""); err != nil {
		t.Errorf("expected no-op for empty text, got %v", err)
	}
}
