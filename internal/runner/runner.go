package runner

import "context"

// Spec describes one stage command to execute.
type Spec struct {
	// Stage is the owning stage name, used for labels and log prefixes.
	Stage string

	// Command is a shell command line. Runners execute it via `sh -c`
	// (or the container's shell) so pipes and redirects behave as they
	// did in the original pipeline scripts.
	Command string

	// Dir is the host working directory (the repository root).
	Dir string

	// Env holds additional "K=V" entries layered over the base
	// environment.
	Env []string

	// Image selects the container image for runners that support one.
	// The local runner ignores it.
	Image string
}

// Runner executes a single command and returns its combined output.
// A non-nil error means the command could not run or exited non-zero;
// the captured output is still returned for reporting.
type Runner interface {
	Run(ctx context.Context, spec Spec) (output string, err error)
}
