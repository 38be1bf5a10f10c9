package config

import (
	"fmt"
	"os"
	"time"

	"github.com/refinery-cli/refinery/internal/model"
)

// CurrentVersion is the only pipeline file schema version this binary
// understands.
const CurrentVersion = 1

// Stage "when" guard values. A stage with WhenChanges only runs if the
// worktree is dirty at the time the stage is reached.
const (
	WhenAlways  = "always"
	WhenChanges = "changes"
)

// DefaultCommitMessage is used when neither the pipeline file nor the
// --message flag provides one.
const DefaultCommitMessage = "Automated code optimization and formatting"

// Config is the root of the pipeline file.
type Config struct {
	// Version is the schema version. Must equal CurrentVersion.
	Version int `yaml:"version" json:"version"`

	// Env holds variables expanded into every stage command and merged
	// into the stage process environment. Stage-level Env overrides
	// these; both override the process environment.
	Env map[string]string `yaml:"env,omitempty" json:"env,omitempty"`

	// Container, when set, makes stages run inside a Docker container
	// with the working tree bind-mounted. Individual stages may override it.
	Container *ContainerSpec `yaml:"container,omitempty" json:"container,omitempty"`

	// Parallel opts into running stages of the same dependency level
	// concurrently. Off by default: the pipeline is sequential unless
	// asked otherwise.
	Parallel bool `yaml:"parallel,omitempty" json:"parallel,omitempty"`

	// Stages is the ordered list of pipeline stages. Declaration order
	// breaks ties when the dependency graph allows multiple orders.
	Stages []Stage `yaml:"stages" json:"stages"`

	// Commit configures the conditional commit/push phase.
	Commit CommitSpec `yaml:"commit,omitempty" json:"commit,omitempty"`

	// Approval configures the manual approval gate.
	Approval ApprovalSpec `yaml:"approval,omitempty" json:"approval,omitempty"`

	// Notify configures run-report notifications.
	Notify NotifySpec `yaml:"notify,omitempty" json:"notify,omitempty"`
}

// Stage is a single named step of the pipeline.
type Stage struct {
	// Name uniquely identifies the stage. Validated by
	// model.ValidateStageName.
	Name string `yaml:"name" json:"name"`

	// Run is the list of shell commands executed in order.
	Run []string `yaml:"run" json:"run"`

	// Needs lists stages that must complete before this one starts.
	Needs []string `yaml:"needs,omitempty" json:"needs,omitempty"`

	// When guards execution: "always" (default) or "changes".
	When string `yaml:"when,omitempty" json:"when,omitempty"`

	// ContinueOnError records command failures as soft failures instead
	// of halting the run. This mirrors stages whose failures are
	// deliberately swallowed (formatters that may not be installed).
	ContinueOnError bool `yaml:"continue_on_error,omitempty" json:"continue_on_error,omitempty"`

	// Env holds stage-local variable overrides.
	Env map[string]string `yaml:"env,omitempty" json:"env,omitempty"`

	// Container overrides the pipeline-level container for this stage.
	Container *ContainerSpec `yaml:"container,omitempty" json:"container,omitempty"`
}

// ContainerSpec names the Docker image stages run in.
type ContainerSpec struct {
	Image string `yaml:"image" json:"image"`
}

// CommitSpec configures the commit/push phase, which only runs when the
// worktree is dirty after the stages.
type CommitSpec struct {
	// Message is the commit message. Empty means DefaultCommitMessage.
	Message string `yaml:"message,omitempty" json:"message,omitempty"`

	// Branch is the push target. Empty means "main".
	Branch string `yaml:"branch,omitempty" json:"branch,omitempty"`

	// Push controls whether the commit is pushed. Nil means true.
	Push *bool `yaml:"push,omitempty" json:"push,omitempty"`

	// Add lists the paths staged before committing. Empty means ["."].
	Add []string `yaml:"add,omitempty" json:"add,omitempty"`
}

// MessageOrDefault returns the configured commit message, falling back
// to DefaultCommitMessage.
func (c CommitSpec) MessageOrDefault() string {
	if c.Message != "" {
		return c.Message
	}
	return DefaultCommitMessage
}

// BranchOrDefault returns the configured push branch, falling back to "main".
func (c CommitSpec) BranchOrDefault() string {
	if c.Branch != "" {
		return c.Branch
	}
	return "main"
}

// ShouldPush reports whether the commit phase pushes to the remote.
func (c CommitSpec) ShouldPush() bool {
	return c.Push == nil || *c.Push
}

// AddPaths returns the paths to stage, defaulting to the whole tree.
func (c CommitSpec) AddPaths() []string {
	if len(c.Add) > 0 {
		return c.Add
	}
	return []string{"."}
}

// ApprovalSpec configures the manual approval gate.
type ApprovalSpec struct {
	// Required controls whether dirty runs need approval before
	// committing. Nil means true.
	Required *bool `yaml:"required,omitempty" json:"required,omitempty"`

	// Timeout bounds how long the interactive prompt waits, as a Go
	// duration string ("10m"). Empty or "0" waits forever, matching the
	// unbounded block of the original manual gate.
	Timeout string `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// IsRequired reports whether the approval gate is active.
func (a ApprovalSpec) IsRequired() bool {
	return a.Required == nil || *a.Required
}

// TimeoutDuration parses the Timeout field. Zero means no timeout.
func (a ApprovalSpec) TimeoutDuration() (time.Duration, error) {
	if a.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(a.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid approval timeout %q: %w", a.Timeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("approval timeout must not be negative: %q", a.Timeout)
	}
	return d, nil
}

// NotifySpec configures where run reports are delivered.
type NotifySpec struct {
	// Webhook is a URL that receives the RunReport as a JSON POST.
	Webhook string `yaml:"webhook,omitempty" json:"webhook,omitempty"`
}

// Validate checks the static invariants of a pipeline file: the schema
// version, stage name uniqueness and shape, non-empty command lists,
// known "needs" targets, valid "when" guards, and a parseable approval
// timeout. Dependency cycles are detected later when the execution
// order is resolved.
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return fmt.Errorf("unsupported pipeline version %d (expected %d)", c.Version, CurrentVersion)
	}
	if len(c.Stages) == 0 {
		return fmt.Errorf("pipeline defines no stages")
	}

	names := make(map[string]bool, len(c.Stages))
	for i := range c.Stages {
		s := &c.Stages[i]
		if err := model.ValidateStageName(s.Name); err != nil {
			return err
		}
		if names[s.Name] {
			return fmt.Errorf("duplicate stage name %q", s.Name)
		}
		names[s.Name] = true

		if len(s.Run) == 0 {
			return fmt.Errorf("stage %q has no run commands", s.Name)
		}
		for _, cmd := range s.Run {
			if cmd == "" {
				return fmt.Errorf("stage %q has an empty run command", s.Name)
			}
		}

		switch s.When {
		case "", WhenAlways, WhenChanges:
		default:
			return fmt.Errorf("stage %q has invalid when guard %q (valid: always, changes)", s.Name, s.When)
		}

		if s.Container != nil && s.Container.Image == "" {
			return fmt.Errorf("stage %q declares a container without an image", s.Name)
		}
	}

	// Needs targets are checked in a second pass so forward references
	// to later stages are allowed.
	for _, s := range c.Stages {
		for _, dep := range s.Needs {
			if !names[dep] {
				return fmt.Errorf("stage %q needs unknown stage %q", s.Name, dep)
			}
			if dep == s.Name {
				return fmt.Errorf("stage %q cannot need itself", s.Name)
			}
		}
	}

	if c.Container != nil && c.Container.Image == "" {
		return fmt.Errorf("pipeline declares a container without an image")
	}

	if _, err := c.Approval.TimeoutDuration(); err != nil {
		return err
	}

	return nil
}

// StageEnv merges the pipeline env and the stage env (in increasing
// precedence) into "K=V" entries layered over a runner's base
// environment. The host environment is deliberately not included: the
// local runner adds it itself, and containers keep their image-defined
// variables instead of inheriting (and leaking) the host's.
func (c *Config) StageEnv(s *Stage) []string {
	env := make([]string, 0, len(c.Env)+len(s.Env))
	for k, v := range c.Env {
		env = append(env, k+"="+v)
	}
	for k, v := range s.Env {
		env = append(env, k+"="+v)
	}
	return env
}

// ExpandCommand expands ${VAR} references in a stage command using the
// stage env first, then the pipeline env, then the process environment.
// Unknown variables expand to the empty string, matching shell behavior.
func (c *Config) ExpandCommand(s *Stage, command string) string {
	return os.Expand(command, func(key string) string {
		if s != nil {
			if v, ok := s.Env[key]; ok {
				return v
			}
		}
		if v, ok := c.Env[key]; ok {
			return v
		}
		return os.Getenv(key)
	})
}

// StageContainer resolves the effective container for a stage: the
// stage-level override if present, otherwise the pipeline-level one.
// Nil means the stage runs on the host.
func (c *Config) StageContainer(s *Stage) *ContainerSpec {
	if s.Container != nil {
		return s.Container
	}
	return c.Container
}

// Default returns the pipeline that mirrors the original CI setup:
// a virtualenv bootstrap, an optimizer detection pass, the three
// formatters (failures tolerated), and an optimizer fix pass. The
// commit phase pushes to main with the stock message.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Env: map[string]string{
			"PYTHON_VERSION": "3.11",
			"VENV_DIR":       ".venv",
		},
		Stages: []Stage{
			{
				Name: "setup",
				Run: []string{
					"python3 -m venv ${VENV_DIR}",
					"${VENV_DIR}/bin/pip install --upgrade pip",
					"${VENV_DIR}/bin/pip install black autopep8 isort",
				},
			},
			{
				Name:  "detect",
				Needs: []string{"setup"},
				Run:   []string{"python code_optimizer.py ."},
			},
			{
				Name:            "format",
				Needs:           []string{"detect"},
				ContinueOnError: true,
				Run: []string{
					"black .",
					"autopep8 --in-place --recursive .",
					"isort .",
				},
			},
			{
				Name:  "optimize",
				Needs: []string{"format"},
				Run:   []string{"python code_optimizer.py ."},
			},
		},
		Commit: CommitSpec{
			Message: DefaultCommitMessage,
			Branch:  "main",
		},
	}
}
