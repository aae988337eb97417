package cfgtree

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestSetPathCreatesIntermediateMaps(t *testing.T) {
	tree, err := SetPath(Tree{}, "model.optim.lr", 0.01)
	if err != nil {
		t.Fatalf("SetPath: %v", err)
	}
	got, ok := Select(tree, "model.optim.lr")
	if !ok || got != 0.01 {
		t.Fatalf("Select(model.optim.lr) = %v, %v", got, ok)
	}
}

func TestSetPathEmptyPathReplacesRoot(t *testing.T) {
	tree, err := SetPath(Tree{"a": 1}, "", map[string]any{"b": 2})
	if err != nil {
		t.Fatalf("SetPath: %v", err)
	}
	if _, ok := tree["a"]; ok {
		t.Fatal("root replacement kept old keys")
	}
	if tree["b"] != 2 {
		t.Fatalf("tree[b] = %v", tree["b"])
	}
}

func TestSetPathEmptyPathNonMapping(t *testing.T) {
	if _, err := SetPath(Tree{}, "", 42); err == nil {
		t.Fatal("expected error replacing root with scalar")
	}
}

func TestMergeRecursesAndOverlayWins(t *testing.T) {
	base := Tree{
		"model": map[string]any{"lr": 0.1, "depth": 3},
		"seed":  7,
	}
	overlay := Tree{
		"model": map[string]any{"lr": 0.5},
	}
	out := Merge(base, overlay)

	want := Tree{
		"model": map[string]any{"lr": 0.5, "depth": 3},
		"seed":  7,
	}
	if !reflect.DeepEqual(out, want) {
		t.Fatalf("Merge = %v, want %v", out, want)
	}
	if base["model"].(map[string]any)["lr"] != 0.1 {
		t.Fatal("Merge mutated base")
	}
}

func TestMergeTaskAtKey(t *testing.T) {
	base := Tree{"x": 0, "save_dir": "/tmp/run"}
	out, err := MergeTask(base, 5, "x")
	if err != nil {
		t.Fatalf("MergeTask: %v", err)
	}
	if out["x"] != 5 {
		t.Fatalf("out[x] = %v", out["x"])
	}
	if out["save_dir"] != "/tmp/run" {
		t.Fatal("MergeTask dropped base keys")
	}
}

func TestMergeTaskWholeReplacement(t *testing.T) {
	base := Tree{"x": 1, "y": 2}
	out, err := MergeTask(base, map[string]any{"x": 9}, "")
	if err != nil {
		t.Fatalf("MergeTask: %v", err)
	}
	if out["x"] != 9 || out["y"] != 2 {
		t.Fatalf("out = %v", out)
	}
}

func TestLoadTasksTxt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.txt")
	if err := os.WriteFile(path, []byte("a\nb\n\nc\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	tasks, err := LoadTasks(path, "", nil)
	if err != nil {
		t.Fatalf("LoadTasks: %v", err)
	}
	want := []any{"a", "b", "c"}
	if !reflect.DeepEqual(tasks, want) {
		t.Fatalf("tasks = %v, want %v", tasks, want)
	}
}

func TestLoadTasksYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.yaml")
	if err := os.WriteFile(path, []byte("- x: 1\n- x: 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	tasks, err := LoadTasks(path, "", nil)
	if err != nil {
		t.Fatalf("LoadTasks: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("len(tasks) = %d", len(tasks))
	}
	first, ok := tasks[0].(map[string]any)
	if !ok || first["x"] != 1 {
		t.Fatalf("tasks[0] = %v", tasks[0])
	}
}

func TestLoadTasksFromKey(t *testing.T) {
	tree := Tree{"sweep": map[string]any{"lrs": []any{0.1, 0.2}}}
	tasks, err := LoadTasks("", "sweep.lrs", tree)
	if err != nil {
		t.Fatalf("LoadTasks: %v", err)
	}
	if len(tasks) != 2 || tasks[0] != 0.1 {
		t.Fatalf("tasks = %v", tasks)
	}
}

func TestLoadTasksMissingKey(t *testing.T) {
	if _, err := LoadTasks("", "nope", Tree{}); err == nil {
		t.Fatal("expected error for missing key")
	}
}

func TestLoadTasksUnsupportedExt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.json")
	if err := os.WriteFile(path, []byte("[]"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTasks(path, "", nil); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

func TestLoadSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	tree := Tree{"model": map[string]any{"lr": 0.1}}
	if err := Save(tree, path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	v, ok := Select(got, "model.lr")
	if !ok || v != 0.1 {
		t.Fatalf("Select(model.lr) = %v, %v", v, ok)
	}
}

func TestMergeTaskConfigsAreIndependent(t *testing.T) {
	base := Tree{
		"model": map[string]any{"depth": 3},
		"data":  map[string]any{"split": "train", "folds": []any{1, 2, 3}},
	}

	cfg1, err := MergeTask(base, 0.5, "model.lr")
	if err != nil {
		t.Fatalf("merge: %v", err)
	}

	// A task function mutating branches of its config, including ones
	// the merge never touched, must not leak into the base.
	cfg1["data"].(map[string]any)["split"] = "corrupted"
	cfg1["data"].(map[string]any)["folds"].([]any)[0] = 99
	cfg1["model"].(map[string]any)["depth"] = -1

	cfg2, err := MergeTask(base, 0.9, "model.lr")
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if got := cfg2["data"].(map[string]any)["split"]; got != "train" {
		t.Fatalf("second config saw mutated base: data.split = %v", got)
	}
	if got := cfg2["data"].(map[string]any)["folds"].([]any)[0]; got != 1 {
		t.Fatalf("second config saw mutated base: folds[0] = %v", got)
	}
	if got := cfg2["model"].(map[string]any)["depth"]; got != 3 {
		t.Fatalf("second config saw mutated base: model.depth = %v", got)
	}
	if got := base["data"].(map[string]any)["split"]; got != "train" {
		t.Fatalf("base itself was mutated: data.split = %v", got)
	}
}
