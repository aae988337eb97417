package backend

import (
	"context"
	"log/slog"

	"sweepq/internal/cfgtree"
	"sweepq/internal/worker"
)

// Local runs worker loops in-process. Submit blocks until the loops
// drain the store; the shared database file stays the only coordination
// point, exactly as with remote workers.
type Local struct {
	// Func, when set, is used directly instead of resolving the spec's
	// registered name. Lets library callers pass closures.
	Func worker.Func
	// BaseConfig, when set, overrides loading the spec's config path.
	BaseConfig cfgtree.Tree
	Logger     *slog.Logger
}

func (l *Local) Submit(ctx context.Context, spec WorkerSpec) (JobHandle, error) {
	handle := JobHandle{ID: "local-" + shortID()}

	fn := l.Func
	if fn == nil {
		var err error
		fn, err = worker.Resolve(spec.FuncName)
		if err != nil {
			return handle, err
		}
	}

	base := l.BaseConfig
	if base == nil && spec.ConfigPath != "" {
		var err error
		base, err = cfgtree.Load(spec.ConfigPath)
		if err != nil {
			return handle, err
		}
	}

	return handle, runSpecLoops(ctx, spec, fn, base, handle.ID, l.Logger)
}

// SubmitArray runs the specs one after another; local workers within a
// spec already provide the parallelism.
func (l *Local) SubmitArray(ctx context.Context, specs []WorkerSpec) ([]JobHandle, error) {
	handles := make([]JobHandle, 0, len(specs))
	for _, spec := range specs {
		h, err := l.Submit(ctx, spec)
		if err != nil {
			return handles, err
		}
		handles = append(handles, h)
	}
	return handles, nil
}

func (l *Local) Environment() Environment {
	return Environment{GlobalRank: 0, WorldSize: 1}
}
