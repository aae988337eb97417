package worker

import (
	"fmt"
	"sort"
	"sync"
)

// Functions cannot travel to remote jobs, so submissions reference them
// by registered name and the worker process resolves the name at
// startup. Both sides of a remote run must register the same names.
var (
	regMu    sync.RWMutex
	registry = map[string]Func{}
)

// Register makes a task function resolvable by name. Registering the
// same name twice panics; that is always a programming error.
func Register(name string, fn Func) {
	if name == "" || fn == nil {
		panic("worker: Register requires a name and a function")
	}
	regMu.Lock()
	defer regMu.Unlock()
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("worker: task function %q registered twice", name))
	}
	registry[name] = fn
}

// Resolve looks up a registered task function.
func Resolve(name string) (Func, error) {
	regMu.RLock()
	defer regMu.RUnlock()
	fn, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("worker: no task function registered as %q (registered: %v)", name, registeredNames())
	}
	return fn, nil
}

func registeredNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
