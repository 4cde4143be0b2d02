package domain

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

// Sentinel errors for the regridding error taxonomy.
var (
	// ErrConfiguration covers unknown grid names and malformed grid definitions.
	ErrConfiguration = errors.New("grid configuration error")
	// ErrMissingArtifact is returned when a referenced grid file is absent or empty.
	ErrMissingArtifact = errors.New("missing grid artifact")
	// ErrGeneration is returned when the external generator exits non-zero.
	ErrGeneration = errors.New("grid generation failed")
)

// ConfigurationError describes a grid configuration problem.
type ConfigurationError struct {
	Grid        string
	Reason      string
	Suggestions []string // Close registry names, when the grid was not found.
}

func (e *ConfigurationError) Error() string {
	msg := e.Reason
	if e.Grid != "" {
		msg = fmt.Sprintf("grid %q: %s", e.Grid, e.Reason)
	}
	if len(e.Suggestions) > 0 {
		msg += fmt.Sprintf(" (did you mean: %s?)", strings.Join(e.Suggestions, ", "))
	}
	return msg
}

// Is matches ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// MissingArtifactError reports a grid file that does not exist or has zero size.
type MissingArtifactError struct {
	Path string
	Dim  string
}

func (e *MissingArtifactError) Error() string {
	if e.Dim != "" {
		return fmt.Sprintf("grid file for %s not found or empty: %s", e.Dim, e.Path)
	}
	return fmt.Sprintf("grid file not found or empty: %s", e.Path)
}

// Is matches ErrMissingArtifact and fs.ErrNotExist.
func (e *MissingArtifactError) Is(target error) bool {
	return target == ErrMissingArtifact || target == fs.ErrNotExist
}

// GenerationError carries the diagnostics of a failed generator invocation.
type GenerationError struct {
	Command  string
	Args     []string
	ExitCode int
	Stderr   string
	Target   string // File that was being generated.
	Err      error  // Start failure, if the process never ran.
}

func (e *GenerationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "generating %s: %s %s", e.Target, e.Command, strings.Join(e.Args, " "))
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	} else {
		fmt.Fprintf(&b, ": exit code %d", e.ExitCode)
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		fmt.Fprintf(&b, ": %s", s)
	}
	return b.String()
}

// Is matches ErrGeneration.
func (e *GenerationError) Is(target error) bool {
	return target == ErrGeneration
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}
