package backend

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// submitFunc runs a scheduler submission command and returns its
// trimmed stdout. Swapped out in tests.
type submitFunc func(ctx context.Context, name string, args ...string) (string, error)

func runSubmitCommand(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s %s: %w (stderr: %s)",
			name, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// renderScript assembles a submission script: shebang, user startup
// lines (which may themselves carry scheduler directives), generated
// directives, then the worker command.
func renderScript(startupLines, directives []string, command string) string {
	lines := []string{"#!/bin/bash"}
	lines = append(lines, startupLines...)
	lines = append(lines, directives...)
	lines = append(lines, command)
	return strings.Join(lines, "\n") + "\n"
}

func workerCommand(argv []string, specPath string) string {
	parts := append(append([]string{}, argv...), "-worker-spec", specPath)
	return strings.Join(parts, " ")
}
