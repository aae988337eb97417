package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Slurm submits worker loops as Slurm jobs via sbatch. Array
// submissions use a native job array so N workers cost one scheduler
// call.
type Slurm struct {
	folder           string
	startupLines     []string
	configureLogging bool
	workerArgv       []string
	submit           submitFunc
}

// SlurmOptions configures a Slurm backend. Folder receives generated
// scripts, spec blobs and (when ConfigureLogging is set) job output.
// WorkerArgv is the command prefix that runs the worker loop, typically
// the current binary.
type SlurmOptions struct {
	Folder           string
	WorkerArgv       []string
	StartupLines     []string
	ConfigureLogging bool
}

func NewSlurm(opts SlurmOptions) *Slurm {
	return &Slurm{
		folder:           opts.Folder,
		startupLines:     opts.StartupLines,
		configureLogging: opts.ConfigureLogging,
		workerArgv:       opts.WorkerArgv,
		submit:           runSubmitCommand,
	}
}

func (s *Slurm) directives() []string {
	if !s.configureLogging {
		return nil
	}
	abs, err := filepath.Abs(s.folder)
	if err != nil {
		abs = s.folder
	}
	return []string{
		fmt.Sprintf("#SBATCH --output=%s", filepath.Join(abs, "slurm.out")),
		fmt.Sprintf("#SBATCH --error=%s", filepath.Join(abs, "slurm.err")),
	}
}

func (s *Slurm) Submit(ctx context.Context, spec WorkerSpec) (JobHandle, error) {
	if err := ensureDir(s.folder); err != nil {
		return JobHandle{}, err
	}

	specPath := filepath.Join(s.folder, fmt.Sprintf("task_%s.json", shortID()))
	if err := writeWorkerSpec(specPath, spec); err != nil {
		return JobHandle{}, err
	}

	script := renderScript(s.startupLines, s.directives(), workerCommand(s.workerArgv, specPath))
	scriptPath, err := writeScript(s.folder, fmt.Sprintf("job_%s.slurm", shortID()), script)
	if err != nil {
		return JobHandle{}, err
	}

	out, err := s.submit(ctx, "sbatch", scriptPath)
	if err != nil {
		return JobHandle{}, fmt.Errorf("slurm submission failed: %w", err)
	}
	id, err := parseSbatchOutput(out)
	if err != nil {
		return JobHandle{}, err
	}
	return JobHandle{ID: id}, nil
}

// SubmitArray writes one spec blob per array element and a single
// script whose worker command selects its blob via SLURM_ARRAY_TASK_ID.
func (s *Slurm) SubmitArray(ctx context.Context, specs []WorkerSpec) ([]JobHandle, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	if err := ensureDir(s.folder); err != nil {
		return nil, err
	}

	base := shortID()
	for i, spec := range specs {
		specPath := filepath.Join(s.folder, fmt.Sprintf("task_%s_%d.json", base, i))
		if err := writeWorkerSpec(specPath, spec); err != nil {
			return nil, err
		}
	}

	specPattern := filepath.Join(s.folder, fmt.Sprintf("task_%s_${SLURM_ARRAY_TASK_ID}.json", base))
	directives := append(s.directives(), fmt.Sprintf("#SBATCH --array=0-%d", len(specs)-1))
	script := renderScript(s.startupLines, directives, workerCommand(s.workerArgv, specPattern))
	scriptPath, err := writeScript(s.folder, fmt.Sprintf("job_%s.slurm", base), script)
	if err != nil {
		return nil, err
	}

	out, err := s.submit(ctx, "sbatch", scriptPath)
	if err != nil {
		return nil, fmt.Errorf("slurm array submission failed: %w", err)
	}
	id, err := parseSbatchOutput(out)
	if err != nil {
		return nil, err
	}

	handles := make([]JobHandle, len(specs))
	for i := range specs {
		handles[i] = JobHandle{ID: fmt.Sprintf("%s_%d", id, i)}
	}
	return handles, nil
}

func (s *Slurm) Environment() Environment {
	return Environment{
		GlobalRank: envInt("SLURM_PROCID", 0),
		WorldSize:  envInt("SLURM_NTASKS", 1),
	}
}

// sbatch reports "Submitted batch job <id>"; the id is the last field.
func parseSbatchOutput(out string) (string, error) {
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return "", fmt.Errorf("unparsable sbatch output: %q", out)
	}
	return fields[len(fields)-1], nil
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
