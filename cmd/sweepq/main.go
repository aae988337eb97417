package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"sweepq/internal/backend"
	"sweepq/internal/cfgtree"
	"sweepq/internal/config"
	"sweepq/internal/executor"
	"sweepq/internal/logging"
	"sweepq/internal/metrics"
	"sweepq/internal/runcmd"
	"sweepq/internal/store"
	"sweepq/internal/worker"
)

func main() {
	// 1. Config: env, then file, then flags.
	cfg := config.Load()

	configPath, err := config.ResolveConfigPath(os.Args[1:])
	if err != nil {
		log.Fatalf("Failed to resolve config file: %v", err)
	}
	fileCfg, err := config.LoadFileConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config file: %v", err)
	}
	if err := config.ApplyFileConfig(cfg, fileCfg); err != nil {
		log.Fatalf("Failed to apply config file: %v", err)
	}

	fs := flag.NewFlagSet("sweepq", flag.ExitOnError)
	cfg.BindFlags(fs)
	// Consumed by ResolveConfigPath above; declared so parsing accepts it.
	fs.String("config", "", "Path to a sweepq config file")
	workerSpec := fs.String("worker-spec", "", "Run worker loops from a spec file (used by generated submission scripts)")
	if err := fs.Parse(os.Args[1:]); err != nil {
		log.Fatalf("Failed to parse flags: %v", err)
	}

	// 2. Logging
	owner := worker.DefaultOwner()
	logger := logging.Init(owner)

	// 3. Task functions. Remaining non-flag args become the shell
	// command, overriding the config file.
	command := cfg.Command
	if args := fs.Args(); len(args) > 0 {
		command = args
	}
	worker.Register("shell", runcmd.New(command).Func())
	worker.Register("mock", runcmd.NewMock(cfg.ExecSleep))

	funcName := cfg.FuncName
	if cfg.ExecMode == "mock" {
		funcName = "mock"
	}

	// 4. Signal handling (graceful shutdown)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("Received signal, shutting down...", "signal", sig)
		cancel()
	}()

	metrics.Serve(cfg.MetricsAddr, logger)

	// 5. Worker mode: a scheduler job started us to drain a store.
	if *workerSpec != "" {
		runWorker(ctx, *workerSpec, logger)
		return
	}

	// 6. Executor mode: seed the store, run or submit workers, export.
	runExecutor(ctx, cfg, funcName, logger)
}

func runWorker(ctx context.Context, specPath string, logger *slog.Logger) {
	spec, err := backend.LoadWorkerSpec(specPath)
	if err != nil {
		logger.Error("Failed to load worker spec", "path", specPath, "error", err)
		os.Exit(1)
	}

	st, err := store.Open(spec.StorePath)
	if err != nil {
		logger.Error("Failed to open task store", "error", err)
		os.Exit(1)
	}
	defer st.Close()
	metrics.StartCollector(ctx, st, 0, logger)

	if err := backend.RunWorkerSpec(ctx, spec, logger); err != nil {
		logger.Error("Worker exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker stopped cleanly")
}

func runExecutor(ctx context.Context, cfg *config.Config, funcName string, logger *slog.Logger) {
	var base cfgtree.Tree
	if cfg.BaseConfigPath != "" {
		var err error
		base, err = cfgtree.Load(cfg.BaseConfigPath)
		if err != nil {
			logger.Error("Failed to load base config", "path", cfg.BaseConfigPath, "error", err)
			os.Exit(1)
		}
	}

	tasks, err := cfgtree.LoadTasks(cfg.TasksFile, cfg.TasksKey, base)
	if err != nil {
		logger.Error("Failed to load tasks", "error", err)
		os.Exit(1)
	}

	be, err := buildBackend(cfg)
	if err != nil {
		logger.Error("Failed to build backend", "backend", cfg.BackendName, "error", err)
		os.Exit(1)
	}

	err = executor.Run(ctx, executor.Session{
		FuncName:         funcName,
		Tasks:            tasks,
		SaveDir:          cfg.SaveDir,
		TaskTo:           cfg.TaskTo,
		BaseConfig:       base,
		Backend:          be,
		Workers:          cfg.Workers,
		ArrayParallelism: cfg.ArrayParallelism,
		Backoff:          cfg.Backoff,
		Logger:           logger,
	})
	if err != nil {
		logger.Error("Run failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Run complete", "save_dir", cfg.SaveDir)
}

// buildBackend maps the configured backend name to an implementation.
// Empty and "local" both mean in-process worker loops; the executor
// treats a nil backend as local.
func buildBackend(cfg *config.Config) (backend.Backend, error) {
	switch cfg.BackendName {
	case "", "local":
		return nil, nil
	case "slurm":
		argv, err := selfArgv()
		if err != nil {
			return nil, err
		}
		return backend.NewSlurm(backend.SlurmOptions{
			Folder:           filepath.Join(cfg.SaveDir, executor.SubmitLogDirName),
			WorkerArgv:       argv,
			StartupLines:     cfg.StartupLines,
			ConfigureLogging: true,
		}), nil
	case "pbs":
		argv, err := selfArgv()
		if err != nil {
			return nil, err
		}
		return backend.NewPBS(backend.PBSOptions{
			Folder:           filepath.Join(cfg.SaveDir, executor.SubmitLogDirName),
			WorkerArgv:       argv,
			StartupLines:     cfg.StartupLines,
			ConfigureLogging: true,
			Containerization: cfg.Containerization,
			ContainerImage:   cfg.ContainerImage,
			BindMounts:       cfg.BindMounts,
		}), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.BackendName)
	}
}

// selfArgv is the command generated submission scripts use to start a
// worker: this binary, re-invoked in worker mode by the spec flag the
// script appends.
func selfArgv() ([]string, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve executable: %w", err)
	}
	return []string{exe}, nil
}
