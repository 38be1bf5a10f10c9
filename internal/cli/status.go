package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/refinery-cli/refinery/internal/git"
	"github.com/refinery-cli/refinery/internal/model"
	"github.com/refinery-cli/refinery/internal/ui"
)

// statusReport is the JSON shape of the status command output.
type statusReport struct {
	Branch  string        `json:"branch"`
	Head    string        `json:"head"`
	Clean   bool          `json:"clean"`
	Changes []statusEntry `json:"changes,omitempty"`
}

type statusEntry struct {
	State string `json:"state"`
	Path  string `json:"path"`
}

// NewStatusCommand creates the "status" command, which shows the
// repository state the diff gate would see.
func NewStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the repository state the diff gate sees",
		Long: `Status prints the current branch, HEAD, and the uncommitted changes
in the worktree. A dirty worktree here means "run" would reach the
approval and commit phases.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}

	return cmd
}

func runStatus() error {
	if !git.IsInstalled() {
		return model.NewCLIError(model.ExitGitError, "git is not installed or not on PATH")
	}

	cwd, err := os.Getwd()
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to determine working directory", err)
	}

	root, err := git.New(cwd).Root()
	if err != nil {
		return model.WrapCLIError(model.ExitGitError, "not inside a Git repository", err)
	}
	repo := git.New(root)

	branch, err := repo.CurrentBranch()
	if err != nil {
		return err
	}
	head, err := repo.Head()
	if err != nil {
		return err
	}
	entries, err := repo.Status()
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		report := statusReport{Branch: branch, Head: head, Clean: len(entries) == 0}
		for _, e := range entries {
			report.Changes = append(report.Changes, statusEntry{State: e.Code, Path: e.Path})
		}
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return model.WrapCLIError(model.ExitGeneralError, "failed to serialize status", err)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("%s %s @ %s\n", ui.Header("Branch:"), branch, head)
	if len(entries) == 0 {
		fmt.Println("Worktree is clean.")
		return nil
	}

	fmt.Println()
	t := ui.NewTable(os.Stdout, "STATE", "PATH")
	for _, e := range entries {
		t.Row(e.Code, e.Path)
	}
	if err := t.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d file(s) changed\n", len(entries))
	return nil
}
