// Package backend maps "run this worker loop N times" onto a concrete
// execution substrate: in-process workers, or jobs submitted to a batch
// scheduler. The worker loop and the task store never know which.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"sweepq/internal/cfgtree"
	"sweepq/internal/store"
	"sweepq/internal/worker"
)

// JobHandle identifies one submitted job. The executor only logs it.
type JobHandle struct {
	ID string
}

// Environment reports a process's position inside a submitted job.
// Informational: the pull-based queue needs no rank to balance work.
type Environment struct {
	GlobalRank int
	WorldSize  int
}

// WorkerSpec carries the fixed worker-loop arguments across the
// submission boundary. It is serialized to a JSON blob next to the
// generated submission script; the remote process resolves the task
// function from the registry by name.
type WorkerSpec struct {
	StorePath      string `json:"store_path"`
	ConfigPath     string `json:"config_path,omitempty"`
	TaskTo         string `json:"task_to,omitempty"`
	FuncName       string `json:"func_name"`
	Workers        int    `json:"workers"`
	BackoffSeconds int    `json:"backoff_seconds,omitempty"`
}

// Backend submits worker loops for execution.
type Backend interface {
	// Submit launches one job running the worker loop described by spec.
	Submit(ctx context.Context, spec WorkerSpec) (JobHandle, error)
	// SubmitArray launches len(specs) jobs, as a single array submission
	// when the scheduler supports it.
	SubmitArray(ctx context.Context, specs []WorkerSpec) ([]JobHandle, error)
	// Environment reports this process's rank when running inside a job
	// submitted by this backend.
	Environment() Environment
}

// LoadWorkerSpec reads a spec blob written by a backend.
func LoadWorkerSpec(path string) (WorkerSpec, error) {
	var spec WorkerSpec
	data, err := os.ReadFile(path)
	if err != nil {
		return spec, fmt.Errorf("read worker spec: %w", err)
	}
	if err := json.Unmarshal(data, &spec); err != nil {
		return spec, fmt.Errorf("parse worker spec: %w", err)
	}
	return spec, nil
}

func writeWorkerSpec(path string, spec WorkerSpec) error {
	data, err := json.Marshal(spec)
	if err != nil {
		return fmt.Errorf("marshal worker spec: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write worker spec: %w", err)
	}
	return nil
}

// RunWorkerSpec opens the store named by the spec, resolves the task
// function and base config, and runs the requested number of worker
// loops to completion. This is what a submitted job executes.
func RunWorkerSpec(ctx context.Context, spec WorkerSpec, logger *slog.Logger) error {
	fn, err := worker.Resolve(spec.FuncName)
	if err != nil {
		return err
	}

	var base cfgtree.Tree
	if spec.ConfigPath != "" {
		base, err = cfgtree.Load(spec.ConfigPath)
		if err != nil {
			return err
		}
	}

	return runSpecLoops(ctx, spec, fn, base, "", logger)
}

// runSpecLoops runs spec.Workers concurrent worker loops against the
// spec's store and returns the first loop error, after all loops exit.
func runSpecLoops(ctx context.Context, spec WorkerSpec, fn worker.Func, base cfgtree.Tree, ownerPrefix string, logger *slog.Logger) error {
	st, err := store.Open(spec.StorePath)
	if err != nil {
		return err
	}
	defer st.Close()

	workers := spec.Workers
	if workers <= 0 {
		workers = 1
	}
	var backoff time.Duration
	if spec.BackoffSeconds > 0 {
		backoff = time.Duration(spec.BackoffSeconds) * time.Second
	}

	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		i := i
		go func() {
			owner := ""
			if ownerPrefix != "" {
				owner = fmt.Sprintf("%s-%d", ownerPrefix, i)
			}
			errs <- worker.Loop(ctx, worker.Options{
				Store:      st,
				Func:       fn,
				BaseConfig: base,
				TaskTo:     spec.TaskTo,
				Owner:      owner,
				Backoff:    backoff,
				Logger:     logger,
			})
		}()
	}

	var firstErr error
	for i := 0; i < workers; i++ {
		if err := <-errs; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func shortID() string {
	return uuid.NewString()[:8]
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create submit log dir: %w", err)
	}
	return nil
}

func writeScript(dir, name, content string) (string, error) {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
		return "", fmt.Errorf("write submission script: %w", err)
	}
	return path, nil
}
