// Package runcmd provides the built-in "shell" task function: each
// claimed task's merged configuration is fed to an external command,
// whose stdout becomes the task result.
package runcmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"sweepq/internal/cfgtree"
	"sweepq/internal/worker"
)

// limitedBuffer caps captured process output; overflow is dropped
// silently so a chatty task cannot balloon the store. The buffer is a
// named field, not embedded: embedding would promote bytes.Buffer's
// ReadFrom, which io.Copy inside os/exec prefers over Write, bypassing
// the cap. Write always reports full consumption so the pipe keeps
// draining and the child never blocks on a full pipe.
type limitedBuffer struct {
	buf bytes.Buffer
	cap int
}

func (l *limitedBuffer) Write(p []byte) (int, error) {
	if left := l.cap - l.buf.Len(); left > 0 {
		if len(p) > left {
			l.buf.Write(p[:left])
		} else {
			l.buf.Write(p)
		}
	}
	return len(p), nil
}

func (l *limitedBuffer) String() string {
	return l.buf.String()
}

// Runner executes one external command per task.
type Runner struct {
	// Argv is the command and fixed arguments, e.g.
	// ["python", "-m", "train"]. The per-task config arrives on stdin
	// as YAML.
	Argv []string
	// MaxOutputSize caps captured stdout/stderr bytes.
	MaxOutputSize int
	// Timeout bounds one command run; zero means no limit.
	Timeout time.Duration
}

func New(argv []string) *Runner {
	return &Runner{
		Argv:          argv,
		MaxOutputSize: 1024 * 1024,
	}
}

// Func adapts the runner to the worker-loop contract. A nonzero exit
// or start failure is a task-level failure: it is recorded against the
// task and never stops the worker.
func (r *Runner) Func() worker.Func {
	return func(cfg cfgtree.Tree) (any, error) {
		return r.run(context.Background(), cfg)
	}
}

func (r *Runner) run(ctx context.Context, cfg cfgtree.Tree) (any, error) {
	if len(r.Argv) == 0 {
		return nil, fmt.Errorf("runcmd: no command configured")
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	input, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("runcmd: marshal config: %w", err)
	}

	cmd := exec.CommandContext(ctx, r.Argv[0], r.Argv[1:]...)
	cmd.Stdin = bytes.NewReader(input)
	// The config also arrives in the environment for commands that
	// cannot read stdin (wrapper scripts that exec something else).
	cmd.Env = append(os.Environ(), "SWEEPQ_TASK_CONFIG="+strings.TrimSpace(string(input)))

	stdout := &limitedBuffer{cap: r.MaxOutputSize}
	stderr := &limitedBuffer{cap: r.MaxOutputSize}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("command timed out after %s", r.Timeout)
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("command exited %d: %s",
				exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("command failed to start: %w", err)
	}

	return strings.TrimSpace(stdout.String()), nil
}

// NewMock returns a task function that sleeps for the given duration
// and echoes the config back as its result. Useful for load tests and
// wiring checks without a real payload.
func NewMock(sleep time.Duration) worker.Func {
	return func(cfg cfgtree.Tree) (any, error) {
		if sleep > 0 {
			time.Sleep(sleep)
		}
		return cfg, nil
	}
}
