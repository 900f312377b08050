package insert

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"sync"
)

// Inserter types text at the current cursor position. Implementations are
// invoked from a single goroutine, so they need not be safe for concurrent
// use.
type Inserter interface {
	InsertText(ctx context.Context, text string) error
}

// ToolInserter shells out to a platform typing tool for each insertion.
type ToolInserter struct {
	tool string
}

// NewToolInserter creates an inserter for the named tool. "auto" picks a
// platform default: wtype on Linux, osascript on macOS.
func NewToolInserter(tool string) (*ToolInserter, error) {
	if tool == "" || tool == "auto" {
		switch runtime.GOOS {
		case "darwin":
			tool = "osascript"
		default:
			tool = "wtype"
		}
	}

	switch tool {
	case "wtype", "xdotool", "osascript":
	default:
		return nil, fmt.Errorf("unsupported insertion tool: %s", tool)
	}

	return &ToolInserter{tool: tool}, nil
}

func (t *ToolInserter) InsertText(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}

	var cmd *exec.Cmd
	switch t.tool {
	case "wtype":
		cmd = exec.CommandContext(ctx, "wtype", "--", text)
	case "xdotool":
		cmd = exec.CommandContext(ctx, "xdotool", "type", "--clearmodifiers", "--", text)
	case "osascript":
		script := fmt.Sprintf("tell application %q to keystroke %q", "System Events", text)
		cmd = exec.CommandContext(ctx, "osascript", "-e", script)
	}

	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s failed: %w: %s", t.tool, err, output)
	}

	return nil
}

// WriterInserter appends text to an io.Writer. Used for stdout mode and in
// tests.
type WriterInserter struct {
	w  io.Writer
	mu sync.Mutex
}

func NewWriterInserter(w io.Writer) *WriterInserter {
	return &WriterInserter{w: w}
}

func (wi *WriterInserter) InsertText(ctx context.Context, text string) error {
	wi.mu.Lock()
	defer wi.mu.Unlock()

	_, err := io.WriteString(wi.w, text)
	return err
}
