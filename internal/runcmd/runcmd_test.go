package runcmd

import (
	"io"
	"runtime"
	"strings"
	"testing"
	"time"

	"sweepq/internal/cfgtree"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell tests require a POSIX shell")
	}
}

func TestRunCapturesStdoutAsResult(t *testing.T) {
	skipOnWindows(t)

	r := New([]string{"sh", "-c", "cat"})
	result, err := r.Func()(cfgtree.Tree{"x": 1})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	out, ok := result.(string)
	if !ok {
		t.Fatalf("result type %T", result)
	}
	if !strings.Contains(out, "x: 1") {
		t.Fatalf("result = %q, want config echoed", out)
	}
}

func TestRunExportsConfigInEnv(t *testing.T) {
	skipOnWindows(t)

	r := New([]string{"sh", "-c", `printf '%s' "$SWEEPQ_TASK_CONFIG"`})
	result, err := r.Func()(cfgtree.Tree{"x": 1})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(result.(string), "x: 1") {
		t.Fatalf("env config = %q", result)
	}
}

func TestRunNonzeroExitIsTaskError(t *testing.T) {
	skipOnWindows(t)

	r := New([]string{"sh", "-c", "echo oops >&2; exit 3"})
	_, err := r.Func()(cfgtree.Tree{})
	if err == nil {
		t.Fatal("expected error for nonzero exit")
	}
	if !strings.Contains(err.Error(), "exited 3") || !strings.Contains(err.Error(), "oops") {
		t.Fatalf("error = %v", err)
	}
}

func TestRunMissingCommand(t *testing.T) {
	r := New([]string{"/no/such/binary-xyz"})
	if _, err := r.Func()(cfgtree.Tree{}); err == nil {
		t.Fatal("expected start failure")
	}
}

func TestRunNoCommandConfigured(t *testing.T) {
	r := New(nil)
	if _, err := r.Func()(cfgtree.Tree{}); err == nil {
		t.Fatal("expected error for empty argv")
	}
}

func TestRunTimeout(t *testing.T) {
	skipOnWindows(t)

	r := New([]string{"sleep", "10"})
	r.Timeout = 50 * time.Millisecond
	_, err := r.Func()(cfgtree.Tree{})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("error = %v", err)
	}
}

func TestRunOutputCapped(t *testing.T) {
	skipOnWindows(t)

	r := New([]string{"sh", "-c", "yes x | head -c 100000"})
	r.MaxOutputSize = 1024
	result, err := r.Func()(cfgtree.Tree{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(result.(string)) > 1024 {
		t.Fatalf("output not capped: %d bytes", len(result.(string)))
	}
}

func TestLimitedBufferCapsUnderCopy(t *testing.T) {
	// io.Copy must go through Write; a promoted bytes.Buffer.ReadFrom
	// would take precedence and ignore the cap.
	lb := &limitedBuffer{cap: 10}
	n, err := io.Copy(lb, strings.NewReader(strings.Repeat("x", 1000)))
	if err != nil {
		t.Fatalf("copy: %v", err)
	}
	if n != 1000 {
		t.Fatalf("copy consumed %d bytes, want 1000", n)
	}
	if got := len(lb.String()); got != 10 {
		t.Fatalf("buffer holds %d bytes, want 10", got)
	}
}

func TestMockEchoesConfig(t *testing.T) {
	fn := NewMock(0)
	result, err := fn(cfgtree.Tree{"a": 1})
	if err != nil {
		t.Fatalf("mock: %v", err)
	}
	tree, ok := result.(cfgtree.Tree)
	if !ok || tree["a"] != 1 {
		t.Fatalf("mock result = %v", result)
	}
}
