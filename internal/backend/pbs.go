package backend

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// PBS submits worker loops via qsub. The worker command can optionally
// be wrapped in a singularity or docker invocation for clusters that
// run payloads containerized.
type PBS struct {
	folder           string
	startupLines     []string
	configureLogging bool
	workerArgv       []string
	containerization string // "", "singularity" or "docker"
	containerImage   string
	bindMounts       []string
	submit           submitFunc
}

type PBSOptions struct {
	Folder           string
	WorkerArgv       []string
	StartupLines     []string
	ConfigureLogging bool
	Containerization string
	ContainerImage   string
	BindMounts       []string
}

func NewPBS(opts PBSOptions) *PBS {
	return &PBS{
		folder:           opts.Folder,
		startupLines:     opts.StartupLines,
		configureLogging: opts.ConfigureLogging,
		workerArgv:       opts.WorkerArgv,
		containerization: opts.Containerization,
		containerImage:   opts.ContainerImage,
		bindMounts:       opts.BindMounts,
		submit:           runSubmitCommand,
	}
}

func (p *PBS) directives() []string {
	if !p.configureLogging {
		return nil
	}
	abs, err := filepath.Abs(p.folder)
	if err != nil {
		abs = p.folder
	}
	return []string{
		fmt.Sprintf("#PBS -o %s", filepath.Join(abs, "pbs.out")),
		fmt.Sprintf("#PBS -e %s", filepath.Join(abs, "pbs.err")),
	}
}

// allBindMounts is the user-supplied mounts plus the submit folder
// itself, which always has to be visible inside the container for the
// spec blob to be readable.
func (p *PBS) allBindMounts() []string {
	abs, err := filepath.Abs(p.folder)
	if err != nil {
		abs = p.folder
	}
	seen := map[string]bool{abs: true}
	mounts := []string{abs}
	for _, m := range p.bindMounts {
		if !seen[m] {
			seen[m] = true
			mounts = append(mounts, m)
		}
	}
	sort.Strings(mounts)
	return mounts
}

func (p *PBS) command(specPath string) string {
	inner := workerCommand(p.workerArgv, specPath)
	switch p.containerization {
	case "singularity":
		binds := make([]string, 0)
		for _, m := range p.allBindMounts() {
			binds = append(binds, "--bind "+m)
		}
		return fmt.Sprintf("singularity exec %s %s %s", strings.Join(binds, " "), p.containerImage, inner)
	case "docker":
		binds := make([]string, 0)
		for _, m := range p.allBindMounts() {
			binds = append(binds, fmt.Sprintf("-v %s:%s", m, m))
		}
		return fmt.Sprintf("docker exec %s %s %s", strings.Join(binds, " "), p.containerImage, inner)
	default:
		return inner
	}
}

func (p *PBS) Submit(ctx context.Context, spec WorkerSpec) (JobHandle, error) {
	if err := ensureDir(p.folder); err != nil {
		return JobHandle{}, err
	}

	specPath := filepath.Join(p.folder, fmt.Sprintf("task_%s.json", shortID()))
	if err := writeWorkerSpec(specPath, spec); err != nil {
		return JobHandle{}, err
	}

	script := renderScript(p.startupLines, p.directives(), p.command(specPath))
	scriptPath, err := writeScript(p.folder, fmt.Sprintf("job_%s.pbs", shortID()), script)
	if err != nil {
		return JobHandle{}, err
	}

	out, err := p.submit(ctx, "qsub", scriptPath)
	if err != nil {
		return JobHandle{}, fmt.Errorf("pbs submission failed: %w", err)
	}
	// qsub prints the bare job id.
	id := strings.TrimSpace(out)
	if id == "" {
		return JobHandle{}, fmt.Errorf("unparsable qsub output: %q", out)
	}
	return JobHandle{ID: id}, nil
}

// SubmitArray degrades to individual submissions; PBS array syntax
// varies too much across deployments to generate blindly.
func (p *PBS) SubmitArray(ctx context.Context, specs []WorkerSpec) ([]JobHandle, error) {
	handles := make([]JobHandle, 0, len(specs))
	for _, spec := range specs {
		h, err := p.Submit(ctx, spec)
		if err != nil {
			return handles, err
		}
		handles = append(handles, h)
	}
	return handles, nil
}

func (p *PBS) Environment() Environment {
	return Environment{
		GlobalRank: envInt("OMPI_COMM_WORLD_RANK", 0),
		WorldSize:  envInt("OMPI_COMM_WORLD_SIZE", 1),
	}
}
