// Package executor orchestrates one full run: seed the task store,
// launch workers locally or submit them to a scheduler, and export the
// completed results.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"sweepq/internal/backend"
	"sweepq/internal/cfgtree"
	"sweepq/internal/store"
	"sweepq/internal/worker"
)

const (
	// StoreFileName is the task database under the save dir. Repeated
	// runs against the same save dir share the same queue.
	StoreFileName = "tasks.db"
	// ResultFileName is the exported flat result file.
	ResultFileName = "results.yaml"
	// SubmitLogDirName holds generated submission scripts and blobs.
	SubmitLogDirName = "submit_logs"
	// exportTimeout bounds the final export so it completes even when
	// the run context is already cancelled.
	exportTimeout = 30 * time.Second
)

// Session binds everything one run needs. It is ephemeral: safe to
// discard once Run returns.
type Session struct {
	// Func runs tasks in this process. Required for local runs; for
	// remote submission FuncName is used instead, since only a
	// registered name can cross the process boundary.
	Func     worker.Func
	FuncName string

	Tasks      []any
	SaveDir    string
	TaskTo     string
	BaseConfig cfgtree.Tree

	// Backend, when non-nil, receives the worker submissions. Nil means
	// run worker loops in this process.
	Backend backend.Backend

	// Workers is the worker-loop count per job (or in-process for local
	// runs). ArrayParallelism > 1 submits that many identical jobs as
	// an array.
	Workers          int
	ArrayParallelism int
	Backoff          time.Duration

	Logger *slog.Logger
}

// StorePath returns the task database location for a save dir.
func StorePath(saveDir string) string {
	return filepath.Join(saveDir, StoreFileName)
}

// ResultPath returns the exported result file location for a save dir.
func ResultPath(saveDir string) string {
	return filepath.Join(saveDir, ResultFileName)
}

func (s *Session) validate() error {
	if s.SaveDir == "" {
		return errors.New("executor: no save dir configured")
	}
	if s.Func == nil && s.FuncName == "" {
		return errors.New("executor: no task function configured")
	}
	if s.TaskTo == "" {
		// Whole-tree replacement only works for mapping tasks; anything
		// else has nowhere to go without a merge key.
		for _, t := range s.Tasks {
			if _, ok := t.(map[string]any); !ok {
				return fmt.Errorf("executor: task-to key required for non-mapping task %v", t)
			}
		}
	}
	return nil
}

// Run executes one full session. Per-task failures are recorded in the
// store and never surface here; Run returns an error only for store,
// submission or configuration failures. Completed results are exported
// to the save dir in every path, including error paths, so partial
// progress is always visible on disk.
func Run(ctx context.Context, session Session) (err error) {
	logger := session.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if verr := session.validate(); verr != nil {
		return verr
	}

	if mkerr := os.MkdirAll(session.SaveDir, 0o755); mkerr != nil {
		return fmt.Errorf("create save dir: %w", mkerr)
	}

	st, err := store.Open(StorePath(session.SaveDir))
	if err != nil {
		return err
	}
	defer st.Close()

	// Export runs even when launching workers failed, on a fresh
	// context so cancellation cannot suppress it.
	defer func() {
		exportCtx, cancel := context.WithTimeout(context.Background(), exportTimeout)
		defer cancel()
		resultPath := ResultPath(session.SaveDir)
		if exportErr := st.ExportCompleted(exportCtx, resultPath); exportErr != nil {
			logger.Error("Result export failed", "path", resultPath, "error", exportErr)
			if err == nil {
				err = exportErr
			}
			return
		}
		logger.Info("Exported results", "path", resultPath)
	}()

	if err := st.Enqueue(ctx, session.Tasks); err != nil {
		return err
	}

	pending, err := st.PendingCount(ctx)
	if err != nil {
		return err
	}
	if pending == 0 {
		logger.Info("No pending tasks, skipping workers")
		return nil
	}
	logger.Info("Seeded task store", "pending", pending, "store", st.Path())

	if session.Backend == nil {
		return runLocal(ctx, st, session, logger)
	}
	return submitRemote(ctx, session, logger)
}

func runLocal(ctx context.Context, st *store.Store, session Session, logger *slog.Logger) error {
	if session.Func == nil {
		fn, err := worker.Resolve(session.FuncName)
		if err != nil {
			return err
		}
		session.Func = fn
	}

	workers := session.Workers
	if workers <= 0 {
		workers = 1
	}
	logger.Info("Starting local workers", "workers", workers)

	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		go func() {
			errs <- worker.Loop(ctx, worker.Options{
				Store:      st,
				Func:       session.Func,
				BaseConfig: session.BaseConfig,
				TaskTo:     session.TaskTo,
				Backoff:    session.Backoff,
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

func submitRemote(ctx context.Context, session Session, logger *slog.Logger) error {
	if session.FuncName == "" {
		return errors.New("executor: remote submission requires a registered function name")
	}

	storePath, err := filepath.Abs(StorePath(session.SaveDir))
	if err != nil {
		return fmt.Errorf("resolve store path: %w", err)
	}

	configPath := ""
	if session.BaseConfig != nil {
		configPath = filepath.Join(session.SaveDir, "config.yaml")
		if err := cfgtree.Save(session.BaseConfig, configPath); err != nil {
			return err
		}
		if configPath, err = filepath.Abs(configPath); err != nil {
			return fmt.Errorf("resolve config path: %w", err)
		}
	}

	spec := backend.WorkerSpec{
		StorePath:      storePath,
		ConfigPath:     configPath,
		TaskTo:         session.TaskTo,
		FuncName:       session.FuncName,
		Workers:        session.Workers,
		BackoffSeconds: int(session.Backoff / time.Second),
	}

	if session.ArrayParallelism > 1 {
		specs := make([]backend.WorkerSpec, session.ArrayParallelism)
		for i := range specs {
			specs[i] = spec
		}
		handles, err := session.Backend.SubmitArray(ctx, specs)
		if err != nil {
			return fmt.Errorf("submit worker array: %w", err)
		}
		ids := make([]string, len(handles))
		for i, h := range handles {
			ids[i] = h.ID
		}
		logger.Info("Submitted worker array", "jobs", ids)
	} else {
		handle, err := session.Backend.Submit(ctx, spec)
		if err != nil {
			return fmt.Errorf("submit worker: %w", err)
		}
		logger.Info("Submitted worker job", "job", handle.ID)
	}

	// Remote completion is not awaited: the export below reflects
	// whatever has finished by now and may undercount.
	logger.Warn("Not waiting for remote jobs; exported results may be partial")
	return nil
}
