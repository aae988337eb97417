// Package cfgtree implements the small slice of configuration handling
// the queue needs: dot-path insertion, recursive merge, dot-path
// selection and task-list loading. Trees are plain map[string]any values
// as produced by yaml.Unmarshal.
package cfgtree

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Tree is a nested string-keyed configuration value.
type Tree = map[string]any

// SetPath inserts value at the dot-separated path, creating intermediate
// maps as needed. An empty path replaces the whole tree, in which case
// value must itself be a mapping.
func SetPath(tree Tree, path string, value any) (Tree, error) {
	if path == "" {
		m, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("cannot replace config root with non-mapping value %T", value)
		}
		return m, nil
	}
	if tree == nil {
		tree = Tree{}
	}
	keys := strings.Split(path, ".")
	node := tree
	for _, k := range keys[:len(keys)-1] {
		child, ok := node[k].(map[string]any)
		if !ok {
			child = map[string]any{}
			node[k] = child
		}
		node = child
	}
	node[keys[len(keys)-1]] = value
	return tree, nil
}

// Merge returns base overlaid with overlay. Maps merge recursively,
// everything else is replaced by the overlay value. The result shares
// no maps or slices with either input: task functions may freely
// mutate their config without corrupting the base other workers merge
// against.
func Merge(base, overlay Tree) Tree {
	out := Tree{}
	for k, v := range base {
		out[k] = deepCopy(v)
	}
	for k, v := range overlay {
		bm, bok := out[k].(map[string]any)
		om, ook := v.(map[string]any)
		if bok && ook {
			out[k] = Merge(bm, om)
			continue
		}
		out[k] = deepCopy(v)
	}
	return out
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = deepCopy(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = deepCopy(item)
		}
		return out
	default:
		return v
	}
}

// Select returns the value at the dot-separated path, or false if any
// segment is missing.
func Select(tree Tree, path string) (any, bool) {
	if path == "" {
		return tree, true
	}
	var cur any = tree
	for _, k := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[k]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// MergeTask produces the per-task configuration handed to the task
// function: the task value inserted into a copy of base at taskTo.
func MergeTask(base Tree, taskValue any, taskTo string) (Tree, error) {
	if taskTo == "" {
		m, ok := taskValue.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("task-to is empty but task %v is not a mapping", taskValue)
		}
		return Merge(base, m), nil
	}
	branch, err := SetPath(Tree{}, taskTo, taskValue)
	if err != nil {
		return nil, err
	}
	return Merge(base, branch), nil
}

// LoadTasks resolves a task list from a file (.txt: one task per line,
// .yaml/.yml: a YAML list) or, when path is empty, from the dot key of
// the given tree.
func LoadTasks(path, key string, tree Tree) ([]any, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read tasks file: %w", err)
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".txt":
			var tasks []any
			for _, line := range strings.Split(string(data), "\n") {
				line = strings.TrimSpace(line)
				if line == "" {
					continue
				}
				tasks = append(tasks, line)
			}
			return tasks, nil
		case ".yaml", ".yml":
			var tasks []any
			if err := yaml.Unmarshal(data, &tasks); err != nil {
				return nil, fmt.Errorf("parse tasks file: %w", err)
			}
			return tasks, nil
		default:
			return nil, fmt.Errorf("unsupported tasks file format: %s", filepath.Ext(path))
		}
	}
	if key != "" {
		v, ok := Select(tree, key)
		if !ok {
			return nil, fmt.Errorf("tasks key %q not found in config", key)
		}
		list, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("tasks key %q does not hold a list", key)
		}
		return list, nil
	}
	return nil, nil
}

// Load reads a YAML config tree from disk.
func Load(path string) (Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var tree Tree
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return tree, nil
}

// Save writes a config tree to disk as YAML.
func Save(tree Tree, path string) error {
	data, err := yaml.Marshal(tree)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
