// Package cdo invokes the Climate Data Operators to generate grid cell areas
// and interpolation weights.
package cdo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
)

// Command is one external process invocation. Env holds overrides applied on
// top of the current process environment.
type Command struct {
	Name string
	Args []string
	Env  map[string]string
}

// Result is what a finished process produced.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// Runner executes commands. A non-zero exit code is reported through Result,
// not as an error; the error is reserved for processes that could not start.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run blocks until the process exits. A started process is not cancelled
// when ctx is done.
func (ExecRunner) Run(ctx context.Context, c Command) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	cmd := exec.Command(c.Name, c.Args...) //nolint:gosec // Arguments come from validated configuration.
	cmd.Env = mergeEnv(os.Environ(), c.Env)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, fmt.Errorf("failed to start %s: %w", c.Name, err)
	}
	return res, nil
}

func mergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		skip := false
		for _, k := range keys {
			if len(kv) > len(k) && kv[:len(k)+1] == k+"=" {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, kv)
		}
	}
	for _, k := range keys {
		out = append(out, k+"="+overrides[k])
	}
	return out
}
