// Package git wraps the git CLI (via os/exec) for the operations the
// pipeline driver needs: porcelain status, diff summaries, staging,
// committing, and pushing.
//
// We shell out to `git` rather than using a Go git library because the
// driver only needs plumbing-level commands, and the git CLI is the
// interface the original pipeline was written against. All errors are
// wrapped in model.CLIError with ExitGitError so the CLI layer maps
// them to the right exit code.
package git
