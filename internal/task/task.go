// Package task defines task identity: a task is any YAML-serializable
// value, identified by the hash of its canonical serialization.
package task

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Marshal renders a task value in its canonical form. Two values with
// the same canonical form are the same task.
func Marshal(v any) (string, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal task: %w", err)
	}
	return string(data), nil
}

// Unmarshal is the inverse of Marshal.
func Unmarshal(s string) (any, error) {
	var v any
	if err := yaml.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("unmarshal task: %w", err)
	}
	return v, nil
}

// Hash returns the content hash of a task value. It is stable across
// processes and re-runs of the same task list.
func Hash(v any) (string, error) {
	s, err := Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:]), nil
}
