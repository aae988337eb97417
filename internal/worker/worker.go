// Package worker implements the claim/execute/finish loop that drains
// the task store. Many loops may run against the same store, in one
// process or spread across machines; the store's atomic claim is the
// only coordination between them.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"sweepq/internal/cfgtree"
	"sweepq/internal/store"
)

// Func is the user function invoked once per claimed task with the
// per-task configuration.
type Func func(cfg cfgtree.Tree) (any, error)

const defaultBackoff = 5 * time.Second

// Options configures one worker loop.
type Options struct {
	Store      *store.Store
	Func       Func
	BaseConfig cfgtree.Tree
	TaskTo     string        // dot path where the task is merged into the config
	Owner      string        // defaults to hostname plus a random suffix
	Backoff    time.Duration // sleep between claim misses while tasks are still pending
	Logger     *slog.Logger
}

// DefaultOwner returns an owner string stable for the lifetime of the
// process: the hostname plus a short random suffix so concurrent
// workers on one host stay distinguishable. Informational only.
func DefaultOwner() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "local"
	}
	return fmt.Sprintf("%s-%s", hostname, uuid.NewString()[:8])
}

// Loop claims and executes tasks until the store is drained. A task
// function error or panic marks that task failed and the loop moves on;
// only store access errors or context cancellation stop the loop.
func Loop(ctx context.Context, opts Options) error {
	if opts.Store == nil {
		return fmt.Errorf("worker: no store configured")
	}
	if opts.Func == nil {
		return fmt.Errorf("worker: no task function configured")
	}
	owner := opts.Owner
	if owner == "" {
		owner = DefaultOwner()
	}
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("owner", owner)

	for {
		startClaim := time.Now()
		taskValue, ok, err := opts.Store.ClaimNext(ctx, owner)
		if err != nil {
			return fmt.Errorf("worker %s: %w", owner, err)
		}
		claimDuration.Observe(time.Since(startClaim).Seconds())

		if !ok {
			pending, err := opts.Store.PendingCount(ctx)
			if err != nil {
				return fmt.Errorf("worker %s: %w", owner, err)
			}
			if pending == 0 {
				logger.Info("All tasks finished")
				return nil
			}
			logger.Debug("No task available, backing off", "pending", pending, "backoff", backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			continue
		}

		tasksClaimed.Inc()
		logger.Info("Running task", "task", taskValue)

		startExec := time.Now()
		result, taskErr := runTask(opts.Func, opts.BaseConfig, taskValue, opts.TaskTo)
		execDuration.Observe(time.Since(startExec).Seconds())

		if taskErr != nil {
			logger.Error("Task failed", "task", taskValue, "error", taskErr)
			tasksCompleted.WithLabelValues(string(store.StatusFailed)).Inc()
			if err := opts.Store.Finish(ctx, taskValue, taskErr.Error(), nil); err != nil {
				return fmt.Errorf("worker %s: %w", owner, err)
			}
			continue
		}

		logger.Info("Task finished", "task", taskValue)
		tasksCompleted.WithLabelValues(string(store.StatusDone)).Inc()
		if err := opts.Store.Finish(ctx, taskValue, "", result); err != nil {
			return fmt.Errorf("worker %s: %w", owner, err)
		}
	}
}

// runTask merges the task into the base config and invokes the user
// function, converting panics into ordinary task failures so one bad
// task cannot take the loop down.
func runTask(fn Func, base cfgtree.Tree, taskValue any, taskTo string) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()

	cfg, err := cfgtree.MergeTask(base, taskValue, taskTo)
	if err != nil {
		return nil, err
	}
	return fn(cfg)
}
