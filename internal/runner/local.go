package runner

import (
	"context"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
)

// Local runs stage commands on the host through `sh -c`.
type Local struct {
	// Stdout and Stderr receive the live command output. Nil writers
	// default to the process's own streams.
	Stdout io.Writer
	Stderr io.Writer
}

// NewLocal creates a Local runner streaming to the process streams.
func NewLocal() *Local {
	return &Local{Stdout: os.Stdout, Stderr: os.Stderr}
}

// Run executes the command via the shell in spec.Dir. Output is
// streamed and simultaneously captured; the capture is returned even
// when the command fails so the report can include the failure output.
func (l *Local) Run(ctx context.Context, spec Spec) (string, error) {
	var capture strings.Builder

	stdout := l.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := l.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	// #nosec G204 — the command line comes from the user's own pipeline file
	cmd := exec.CommandContext(ctx, "sh", "-c", spec.Command)
	cmd.Dir = spec.Dir
	// spec.Env carries only the pipeline and stage entries; layer them
	// over the host environment, which host commands need.
	cmd.Env = append(os.Environ(), spec.Env...)
	cmd.Stdout = io.MultiWriter(stdout, &capture)
	cmd.Stderr = io.MultiWriter(stderr, &capture)

	if err := cmd.Run(); err != nil {
		// Prefer the context error so cancellation reads as such
		// instead of "signal: killed".
		if ctx.Err() != nil {
			return capture.String(), errors.Wrapf(ctx.Err(), "command %q interrupted", spec.Command)
		}
		return capture.String(), errors.Wrapf(err, "command %q failed", spec.Command)
	}

	return capture.String(), nil
}
