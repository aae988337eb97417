package config

import (
	"flag"
	"io"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SWEEPQ_SAVE_DIR", "")
	t.Setenv("SWEEPQ_WORKERS", "")
	t.Setenv("SWEEPQ_BACKOFF", "")

	cfg := Load()
	if cfg.Workers != 1 {
		t.Fatalf("expected 1 worker, got %d", cfg.Workers)
	}
	if cfg.Backoff != 5*time.Second {
		t.Fatalf("expected 5s backoff, got %v", cfg.Backoff)
	}
	if cfg.FuncName != "shell" {
		t.Fatalf("expected shell func, got %q", cfg.FuncName)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SWEEPQ_SAVE_DIR", "/tmp/sweep")
	t.Setenv("SWEEPQ_WORKERS", "8")
	t.Setenv("SWEEPQ_BACKOFF", "250ms")
	t.Setenv("SWEEPQ_BACKEND", "slurm")

	cfg := Load()
	if cfg.SaveDir != "/tmp/sweep" {
		t.Fatalf("expected save dir from env, got %q", cfg.SaveDir)
	}
	if cfg.Workers != 8 {
		t.Fatalf("expected 8 workers, got %d", cfg.Workers)
	}
	if cfg.Backoff != 250*time.Millisecond {
		t.Fatalf("expected 250ms backoff, got %v", cfg.Backoff)
	}
	if cfg.BackendName != "slurm" {
		t.Fatalf("expected slurm backend, got %q", cfg.BackendName)
	}
}

func TestLoadIgnoresUnparsableEnv(t *testing.T) {
	t.Setenv("SWEEPQ_WORKERS", "not-a-number")
	t.Setenv("SWEEPQ_BACKOFF", "bogus")

	cfg := Load()
	if cfg.Workers != 1 {
		t.Fatalf("expected fallback worker count, got %d", cfg.Workers)
	}
	if cfg.Backoff != 5*time.Second {
		t.Fatalf("expected fallback backoff, got %v", cfg.Backoff)
	}
}

func TestBindFlagsOverridesEnv(t *testing.T) {
	t.Setenv("SWEEPQ_WORKERS", "2")

	cfg := Load()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	cfg.BindFlags(fs)

	if err := fs.Parse([]string{"--workers", "6", "--task-to", "model.lr"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Workers != 6 {
		t.Fatalf("expected 6 workers, got %d", cfg.Workers)
	}
	if cfg.TaskTo != "model.lr" {
		t.Fatalf("expected task-to flag applied, got %q", cfg.TaskTo)
	}
}
