package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// StageStatus represents the outcome of a single pipeline stage.
type StageStatus string

const (
	// StageOK indicates every command in the stage exited zero.
	StageOK StageStatus = "ok"

	// StageFailed indicates a command failed and the stage halted the run.
	StageFailed StageStatus = "failed"

	// StageSoftFailed indicates a command failed in a stage marked
	// continue_on_error. The failure is recorded but the run continues.
	StageSoftFailed StageStatus = "soft-failed"

	// StageSkipped indicates the stage's "when" guard did not fire
	// (e.g. when: changes on a clean worktree) or the stage was excluded
	// via --only/--skip.
	StageSkipped StageStatus = "skipped"
)

// String returns the string representation of StageStatus.
func (s StageStatus) String() string {
	return string(s)
}

// IsValid checks whether the StageStatus value is one of the
// predefined outcomes.
func (s StageStatus) IsValid() bool {
	switch s {
	case StageOK, StageFailed, StageSoftFailed, StageSkipped:
		return true
	default:
		return false
	}
}

// RunStatus represents the overall outcome of a pipeline run.
// The lifecycle is:
//
//	stages → [failed] | clean | changes → [declined] | [error] | committed
//
// "changes" is a terminal status only for report-only runs (check,
// --dry-run); a full run always resolves it to committed, declined, or
// error.
type RunStatus string

const (
	// RunFailed indicates a stage halted the run.
	RunFailed RunStatus = "failed"

	// RunError indicates a post-stage phase failed: the diff inspection,
	// the approval prompt infrastructure, or a git commit/push operation.
	// Distinct from RunDeclined, which records a human decision.
	RunError RunStatus = "error"

	// RunClean indicates all stages completed and the worktree has no
	// uncommitted changes, so the approval and commit phases were skipped.
	RunClean RunStatus = "clean"

	// RunChanges indicates the worktree is dirty but nothing was
	// committed (report-only mode).
	RunChanges RunStatus = "changes"

	// RunDeclined indicates the approval gate rejected the changes.
	RunDeclined RunStatus = "declined"

	// RunCommitted indicates the changes were committed (and pushed,
	// unless pushing was disabled).
	RunCommitted RunStatus = "committed"
)

// String returns the string representation of RunStatus.
func (s RunStatus) String() string {
	return string(s)
}

// IsValid checks whether the RunStatus value is one of the
// predefined outcomes.
func (s RunStatus) IsValid() bool {
	switch s {
	case RunFailed, RunError, RunClean, RunChanges, RunDeclined, RunCommitted:
		return true
	default:
		return false
	}
}

// ParseRunStatus converts a string to a RunStatus.
// Returns an error if the string does not match any valid status.
func ParseRunStatus(s string) (RunStatus, error) {
	status := RunStatus(strings.ToLower(s))
	if !status.IsValid() {
		return "", fmt.Errorf("invalid run status: %q (valid: failed, error, clean, changes, declined, committed)", s)
	}
	return status, nil
}

// StageResult records the outcome of one executed (or skipped) stage.
// Results are collected in declaration order into the RunReport.
type StageResult struct {
	// Name is the stage's unique name from the pipeline file.
	Name string `json:"name"`

	// Status is the stage outcome.
	Status StageStatus `json:"status"`

	// Duration is the wall-clock time spent running the stage's commands.
	// Zero for skipped stages.
	Duration time.Duration `json:"duration"`

	// Output is the tail of the stage's combined stdout/stderr, kept for
	// the run report. Full output is streamed to the terminal as the
	// stage runs.
	Output string `json:"output,omitempty"`

	// Error is the failure message for failed and soft-failed stages.
	Error string `json:"error,omitempty"`
}

// RunReport is the aggregate record of a pipeline run. It is rendered
// as the CLI summary and posted as JSON to the notification webhook,
// so its shape is part of the tool's external interface.
type RunReport struct {
	// Pipeline is the name of the pipeline file that was executed.
	Pipeline string `json:"pipeline"`

	// Status is the overall run outcome.
	Status RunStatus `json:"status"`

	// Stages holds per-stage results in execution order.
	Stages []StageResult `json:"stages"`

	// ChangedFiles lists paths reported dirty by git after the stages
	// ran. Empty when Status is "clean" or "failed".
	ChangedFiles []string `json:"changedFiles,omitempty"`

	// Commit is the short SHA of the created commit, if any.
	Commit string `json:"commit,omitempty"`

	// Branch is the branch the commit was pushed to, if any.
	Branch string `json:"branch,omitempty"`

	// Pushed reports whether the commit was pushed to the remote.
	Pushed bool `json:"pushed"`

	// StartedAt and FinishedAt bound the run.
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Failed reports whether any stage hard-failed.
func (r *RunReport) Failed() bool {
	for _, s := range r.Stages {
		if s.Status == StageFailed {
			return true
		}
	}
	return false
}

// stageNameRegex validates stage names: alphanumeric plus hyphens and
// underscores, starting and ending with an alphanumeric character.
var stageNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*[a-zA-Z0-9]$|^[a-zA-Z0-9]$`)

// ValidateStageName checks if the given name is a valid stage name.
func ValidateStageName(name string) error {
	if name == "" {
		return fmt.Errorf("stage name must not be empty")
	}
	if !stageNameRegex.MatchString(name) {
		return fmt.Errorf("invalid stage name %q: must contain only alphanumeric characters, hyphens and underscores, and start/end with alphanumeric", name)
	}
	return nil
}

// ExitCode defines the CLI exit codes. These codes allow scripts and CI
// systems to programmatically determine the outcome of a command.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitConfigError indicates the pipeline file is missing or invalid.
	ExitConfigError ExitCode = 2

	// ExitDockerNotRunning indicates the Docker daemon is not accessible
	// while a container-backed stage runner was requested.
	ExitDockerNotRunning ExitCode = 3

	// ExitStageFailed indicates a pipeline stage halted the run.
	ExitStageFailed ExitCode = 4

	// ExitGitError indicates a git operation (status/commit/push) failed.
	ExitGitError ExitCode = 5

	// ExitApprovalRequired indicates the approval gate declined the
	// changes, or approval was needed but no interactive terminal was
	// available and --yes was not given.
	ExitApprovalRequired ExitCode = 6
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
