// Package config resolves the tool configuration from environment
// variables, an optional config file and command-line flags, in that
// order of precedence (flags win).
package config

import (
	"flag"
	"os"
	"strconv"
	"time"
)

type Config struct {
	SaveDir   string
	BaseConfigPath string // path to the base experiment config tree (YAML)

	TasksFile string
	TasksKey  string
	TaskTo    string

	FuncName string

	BackendName      string // "", "local", "slurm" or "pbs"
	ArrayParallelism int
	StartupLines     []string
	Containerization string
	ContainerImage   string
	BindMounts       []string

	Workers   int
	Backoff   time.Duration
	ExecMode  string // "shell" or "mock"
	ExecSleep time.Duration
	Command   []string

	MetricsAddr string
}

func (c *Config) BindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.SaveDir, "save-dir", c.SaveDir, "Run output directory (store, results, submit logs)")
	fs.StringVar(&c.BaseConfigPath, "base-config", c.BaseConfigPath, "Path to the base experiment config YAML")
	fs.StringVar(&c.TasksFile, "tasks", c.TasksFile, "Path to a task list (.txt or .yaml)")
	fs.StringVar(&c.TasksKey, "tasks-key", c.TasksKey, "Dot key selecting the task list from the base config")
	fs.StringVar(&c.TaskTo, "task-to", c.TaskTo, "Dot key where each task is merged into the config")
	fs.StringVar(&c.FuncName, "func", c.FuncName, "Registered task function name")
	fs.StringVar(&c.BackendName, "backend", c.BackendName, "Execution backend (local|slurm|pbs)")
	fs.IntVar(&c.ArrayParallelism, "array-parallelism", c.ArrayParallelism, "Number of identical jobs to submit as an array")
	fs.IntVar(&c.Workers, "workers", c.Workers, "Worker loops per job")
	fs.DurationVar(&c.Backoff, "backoff", c.Backoff, "Sleep between claim misses while tasks are pending")
	fs.StringVar(&c.ExecMode, "exec-mode", c.ExecMode, "Task execution mode (shell|mock)")
	fs.DurationVar(&c.ExecSleep, "exec-sleep", c.ExecSleep, "Sleep duration for mock mode")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "HTTP address for Prometheus metrics (empty disables)")
}

// Load builds the baseline configuration from the environment.
func Load() *Config {
	cfg := &Config{
		SaveDir:     os.Getenv("SWEEPQ_SAVE_DIR"),
		TaskTo:      os.Getenv("SWEEPQ_TASK_TO"),
		FuncName:    envOr("SWEEPQ_FUNC", "shell"),
		BackendName: os.Getenv("SWEEPQ_BACKEND"),
		Workers:     envInt("SWEEPQ_WORKERS", 1),
		Backoff:     envDuration("SWEEPQ_BACKOFF", 5*time.Second),
		ExecMode:    envOr("SWEEPQ_EXEC_MODE", "shell"),
		ExecSleep:   envDuration("SWEEPQ_EXEC_SLEEP", 100*time.Millisecond),
		MetricsAddr: os.Getenv("SWEEPQ_METRICS_ADDR"),
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
