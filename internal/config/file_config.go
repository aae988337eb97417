package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

var defaultConfigFilenames = []string{
	"sweepq.yaml",
	"sweepq.yml",
	"sweepq.toml",
	".sweepq.yaml",
	".sweepq.yml",
	".sweepq.toml",
}

type FileConfig struct {
	SaveDir    string            `yaml:"save_dir" toml:"save_dir"`
	BaseConfig string            `yaml:"base_config" toml:"base_config"`
	TasksFile  string            `yaml:"tasks_file" toml:"tasks_file"`
	TasksKey   string            `yaml:"tasks_key" toml:"tasks_key"`
	TaskTo     string            `yaml:"task_to" toml:"task_to"`
	Func       string            `yaml:"func" toml:"func"`
	Backend    BackendFileConfig `yaml:"backend" toml:"backend"`
	Worker     WorkerFileConfig  `yaml:"worker" toml:"worker"`
	Metrics    MetricsFileConfig `yaml:"metrics" toml:"metrics"`
}

type BackendFileConfig struct {
	Name             string   `yaml:"name" toml:"name"`
	ArrayParallelism *int     `yaml:"array_parallelism" toml:"array_parallelism"`
	StartupLines     []string `yaml:"startup_lines" toml:"startup_lines"`
	Containerization string   `yaml:"containerization" toml:"containerization"`
	ContainerImage   string   `yaml:"container_image" toml:"container_image"`
	BindMounts       []string `yaml:"bind_mounts" toml:"bind_mounts"`
}

type WorkerFileConfig struct {
	Count     *int     `yaml:"count" toml:"count"`
	Backoff   string   `yaml:"backoff" toml:"backoff"`
	ExecMode  string   `yaml:"exec_mode" toml:"exec_mode"`
	ExecSleep string   `yaml:"exec_sleep" toml:"exec_sleep"`
	Command   []string `yaml:"command" toml:"command"`
}

type MetricsFileConfig struct {
	Addr string `yaml:"addr" toml:"addr"`
}

// ResolveConfigPath finds the config file: --config flag, then the
// SWEEPQ_CONFIG environment variable, then well-known filenames in the
// working directory. An empty return means no config file.
func ResolveConfigPath(args []string) (string, error) {
	path, ok, err := parseConfigFlag(args)
	if err != nil {
		return "", err
	}
	if ok {
		return path, nil
	}
	if env := os.Getenv("SWEEPQ_CONFIG"); env != "" {
		return env, nil
	}
	for _, name := range defaultConfigFilenames {
		if fileExists(name) {
			return name, nil
		}
	}
	return "", nil
}

func LoadFileConfig(path string) (*FileConfig, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg FileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse yaml config: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse toml config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config extension: %s", filepath.Ext(path))
	}

	return &cfg, nil
}

// ApplyFileConfig overlays a parsed file config onto cfg. Zero values
// in the file leave the existing setting untouched.
func ApplyFileConfig(cfg *Config, fileCfg *FileConfig) error {
	if fileCfg == nil {
		return nil
	}

	if fileCfg.SaveDir != "" {
		cfg.SaveDir = fileCfg.SaveDir
	}
	if fileCfg.BaseConfig != "" {
		cfg.BaseConfigPath = fileCfg.BaseConfig
	}
	if fileCfg.TasksFile != "" {
		cfg.TasksFile = fileCfg.TasksFile
	}
	if fileCfg.TasksKey != "" {
		cfg.TasksKey = fileCfg.TasksKey
	}
	if fileCfg.TaskTo != "" {
		cfg.TaskTo = fileCfg.TaskTo
	}
	if fileCfg.Func != "" {
		cfg.FuncName = fileCfg.Func
	}

	if fileCfg.Backend.Name != "" {
		cfg.BackendName = fileCfg.Backend.Name
	}
	if fileCfg.Backend.ArrayParallelism != nil {
		cfg.ArrayParallelism = *fileCfg.Backend.ArrayParallelism
	}
	if len(fileCfg.Backend.StartupLines) > 0 {
		cfg.StartupLines = append([]string{}, fileCfg.Backend.StartupLines...)
	}
	if fileCfg.Backend.Containerization != "" {
		cfg.Containerization = fileCfg.Backend.Containerization
	}
	if fileCfg.Backend.ContainerImage != "" {
		cfg.ContainerImage = fileCfg.Backend.ContainerImage
	}
	if len(fileCfg.Backend.BindMounts) > 0 {
		cfg.BindMounts = append([]string{}, fileCfg.Backend.BindMounts...)
	}

	if fileCfg.Worker.Count != nil {
		cfg.Workers = *fileCfg.Worker.Count
	}
	if fileCfg.Worker.Backoff != "" {
		parsed, err := parseDurationField("worker.backoff", fileCfg.Worker.Backoff)
		if err != nil {
			return err
		}
		cfg.Backoff = parsed
	}
	if fileCfg.Worker.ExecMode != "" {
		cfg.ExecMode = fileCfg.Worker.ExecMode
	}
	if fileCfg.Worker.ExecSleep != "" {
		parsed, err := parseDurationField("worker.exec_sleep", fileCfg.Worker.ExecSleep)
		if err != nil {
			return err
		}
		cfg.ExecSleep = parsed
	}
	if len(fileCfg.Worker.Command) > 0 {
		cfg.Command = append([]string{}, fileCfg.Worker.Command...)
	}

	if fileCfg.Metrics.Addr != "" {
		cfg.MetricsAddr = fileCfg.Metrics.Addr
	}

	return nil
}

func parseConfigFlag(args []string) (string, bool, error) {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--config" || arg == "-config" {
			if i+1 >= len(args) || args[i+1] == "" {
				return "", true, fmt.Errorf("missing value for --config")
			}
			return args[i+1], true, nil
		}
		if strings.HasPrefix(arg, "--config=") {
			value := strings.TrimPrefix(arg, "--config=")
			if value == "" {
				return "", true, fmt.Errorf("missing value for --config")
			}
			return value, true, nil
		}
	}
	return "", false, nil
}

func parseDurationField(field, value string) (time.Duration, error) {
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", field, err)
	}
	return parsed, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
