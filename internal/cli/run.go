package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/refinery-cli/refinery/internal/approve"
	"github.com/refinery-cli/refinery/internal/config"
	"github.com/refinery-cli/refinery/internal/git"
	"github.com/refinery-cli/refinery/internal/model"
	"github.com/refinery-cli/refinery/internal/notify"
	"github.com/refinery-cli/refinery/internal/pipeline"
	"github.com/refinery-cli/refinery/internal/runner"
	"github.com/refinery-cli/refinery/internal/ui"
)

// runFlags holds the flag values for the run and check commands.
type runFlags struct {
	config  string
	yes     bool
	dryRun  bool
	noPush  bool
	message string
	only    []string
	skip    []string
}

// NewRunCommand creates the "run" command: the full pipeline including
// the diff gate, the approval gate, and the commit/push phase.
func NewRunCommand() *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline and commit the resulting changes",
		Long: `Run executes the pipeline stages in dependency order, then checks
the worktree. If the stages changed any files, the changes are shown
for approval and committed (and pushed, unless disabled).

A clean worktree after the stages means there is nothing to do; the
approval and commit phases are skipped entirely.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd.Context(), flags, false)
		},
	}

	cmd.Flags().StringVarP(&flags.config, "config", "c", "", "Path to the pipeline file (default: auto-detect)")
	cmd.Flags().BoolVarP(&flags.yes, "yes", "y", false, "Skip the approval prompt and commit without asking")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Run the stages and report changes without committing")
	cmd.Flags().BoolVar(&flags.noPush, "no-push", false, "Commit but do not push")
	cmd.Flags().StringVarP(&flags.message, "message", "m", "", "Commit message (overrides the pipeline file)")
	cmd.Flags().StringSliceVar(&flags.only, "only", nil, "Run only the named stages")
	cmd.Flags().StringSliceVar(&flags.skip, "skip", nil, "Skip the named stages")

	return cmd
}

// runPipeline is the shared driver behind run and check. reportOnly
// stops after the diff gate: stages run and the report is produced, but
// nothing is committed.
func runPipeline(ctx context.Context, flags *runFlags, reportOnly bool) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	cfgPath := flags.config
	if cfgPath == "" {
		if cfgPath, err = config.Find(root); err != nil {
			return err
		}
	}
	VerboseLog("Using pipeline file %s", cfgPath)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	cfg, err = filterStages(cfg, flags.only, flags.skip)
	if err != nil {
		return err
	}

	plan, err := pipeline.Resolve(cfg)
	if err != nil {
		return model.WrapCLIError(model.ExitConfigError, "failed to resolve stage order", err)
	}

	run, cleanup, err := selectRunner(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	report := &model.RunReport{
		Pipeline:  filepath.Base(cfgPath),
		StartedAt: time.Now(),
	}

	dirty := func(context.Context) (bool, error) { return repo.IsDirty() }
	engine := pipeline.New(cfg, run, root, dirty, VerboseLog)

	results, runErr := engine.Run(ctx, plan)
	report.Stages = results

	if runErr != nil {
		report.Status = model.RunFailed
		finishRun(ctx, cfg, report)
		return model.WrapCLIError(model.ExitStageFailed, "pipeline halted", runErr)
	}

	entries, err := repo.Status()
	if err != nil {
		return failRun(ctx, cfg, report, err)
	}
	report.ChangedFiles = git.Paths(entries)

	if len(entries) == 0 {
		report.Status = model.RunClean
		finishRun(ctx, cfg, report)
		return nil
	}
	VerboseLog("Worktree has %d changed file(s)", len(entries))

	if reportOnly || flags.dryRun {
		report.Status = model.RunChanges
		finishRun(ctx, cfg, report)
		return nil
	}

	if cfg.Approval.IsRequired() && !flags.yes {
		approved, err := askApproval(ctx, cfg, repo, entries)
		if err != nil {
			report.Status = approvalFailureStatus(err)
			finishRun(ctx, cfg, report)
			return err
		}
		if !approved {
			report.Status = model.RunDeclined
			finishRun(ctx, cfg, report)
			return model.NewCLIError(model.ExitApprovalRequired, "changes declined")
		}
	}

	message, err := resolveMessage(ctx, flags, cfg)
	if err != nil {
		report.Status = approvalFailureStatus(err)
		finishRun(ctx, cfg, report)
		return err
	}

	if err := repo.Add(cfg.Commit.AddPaths()...); err != nil {
		return failRun(ctx, cfg, report, err)
	}
	if err := repo.Commit(message); err != nil {
		return failRun(ctx, cfg, report, err)
	}
	if report.Commit, err = repo.Head(); err != nil {
		return failRun(ctx, cfg, report, err)
	}
	report.Branch = cfg.Commit.BranchOrDefault()

	if cfg.Commit.ShouldPush() && !flags.noPush {
		if err := repo.Push("origin", report.Branch); err != nil {
			return failRun(ctx, cfg, report, err)
		}
		report.Pushed = true
	}

	report.Status = model.RunCommitted
	finishRun(ctx, cfg, report)
	return nil
}

// selectRunner chooses the stage runner: Docker when any stage resolves
// to a container, the local shell otherwise. The returned cleanup
// releases the Docker client and is a no-op for the local runner.
func selectRunner(ctx context.Context, cfg *config.Config) (runner.Runner, func(), error) {
	usesContainer := false
	for i := range cfg.Stages {
		if cfg.StageContainer(&cfg.Stages[i]) != nil {
			usesContainer = true
			break
		}
	}
	if !usesContainer {
		return runner.NewLocal(), func() {}, nil
	}

	cli, err := runner.NewClient()
	if err != nil {
		return nil, nil, err
	}
	if err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, nil, err
	}
	VerboseLog("Docker daemon is reachable; stages run in containers")
	return runner.NewDocker(cli), func() { cli.Close() }, nil
}

// failRun marks the report as errored, delivers it, and passes the
// error through. Post-stage failures (diff inspection, commit, push)
// still notify the webhook, like any other terminal outcome.
func failRun(ctx context.Context, cfg *config.Config, report *model.RunReport, err error) error {
	report.Status = model.RunError
	finishRun(ctx, cfg, report)
	return err
}

// approvalFailureStatus distinguishes a human decline (and its
// non-interactive equivalents: no terminal, abort, timeout) from prompt
// infrastructure failures, which are errors rather than decisions.
func approvalFailureStatus(err error) model.RunStatus {
	var cliErr *model.CLIError
	if errors.As(err, &cliErr) && cliErr.Code == model.ExitApprovalRequired {
		return model.RunDeclined
	}
	return model.RunError
}

// askApproval shows the interactive approval gate: the per-stage diff
// summary followed by a yes/no prompt. Prompt failures (no terminal,
// abort, timeout) all map to ExitApprovalRequired.
func askApproval(ctx context.Context, cfg *config.Config, repo *git.Client, entries []git.StatusEntry) (bool, error) {
	timeout, err := cfg.Approval.TimeoutDuration()
	if err != nil {
		// Validate already checked this; a failure here is a programming error.
		return false, model.WrapCLIError(model.ExitConfigError, "invalid approval timeout", err)
	}

	detail, _ := repo.DiffStat()
	if detail != "" {
		detail += "\n"
	}
	detail += fmt.Sprintf("%d file(s) changed", len(entries))

	approved, err := approve.Confirm(ctx, "Commit these changes?", detail, timeout)
	if err != nil {
		switch {
		case errors.Is(err, approve.ErrNotInteractive):
			return false, model.WrapCLIError(model.ExitApprovalRequired, "approval required", err)
		case errors.Is(err, approve.ErrAborted):
			return false, model.NewCLIError(model.ExitApprovalRequired, "approval aborted")
		case errors.Is(err, approve.ErrTimedOut):
			return false, model.NewCLIError(model.ExitApprovalRequired, "approval timed out")
		default:
			return false, model.WrapCLIError(model.ExitGeneralError, "approval prompt failed", err)
		}
	}
	return approved, nil
}

// resolveMessage picks the commit message: the --message flag wins,
// then the pipeline file, then an interactive edit with the stock
// message prefilled. Off-terminal the stock message is used directly.
func resolveMessage(ctx context.Context, flags *runFlags, cfg *config.Config) (string, error) {
	if flags.message != "" {
		return flags.message, nil
	}
	if cfg.Commit.Message != "" {
		return cfg.Commit.Message, nil
	}
	if approve.IsInteractive() && !flags.yes {
		msg, err := approve.Input(ctx, "Commit message:", config.DefaultCommitMessage)
		if err != nil {
			if errors.Is(err, approve.ErrAborted) {
				return "", model.NewCLIError(model.ExitApprovalRequired, "commit message prompt aborted")
			}
			return "", model.WrapCLIError(model.ExitGeneralError, "commit message prompt failed", err)
		}
		return msg, nil
	}
	return config.DefaultCommitMessage, nil
}

// filterStages applies --only/--skip. The result keeps declaration
// order; needs edges into excluded stages are dropped so the remaining
// graph still resolves. Excluded stages do not appear in the report.
func filterStages(cfg *config.Config, only, skip []string) (*config.Config, error) {
	if len(only) == 0 && len(skip) == 0 {
		return cfg, nil
	}

	known := make(map[string]bool, len(cfg.Stages))
	for _, s := range cfg.Stages {
		known[s.Name] = true
	}
	for _, name := range append(append([]string{}, only...), skip...) {
		if !known[name] {
			return nil, model.NewCLIError(model.ExitConfigError,
				fmt.Sprintf("unknown stage %q in --only/--skip", name))
		}
	}

	onlySet := make(map[string]bool, len(only))
	for _, name := range only {
		onlySet[name] = true
	}
	skipSet := make(map[string]bool, len(skip))
	for _, name := range skip {
		skipSet[name] = true
	}
	selected := func(name string) bool {
		if len(only) > 0 && !onlySet[name] {
			return false
		}
		return !skipSet[name]
	}

	filtered := *cfg
	filtered.Stages = nil
	for _, s := range cfg.Stages {
		if !selected(s.Name) {
			continue
		}
		var needs []string
		for _, dep := range s.Needs {
			if selected(dep) {
				needs = append(needs, dep)
			}
		}
		s.Needs = needs
		filtered.Stages = append(filtered.Stages, s)
	}

	if len(filtered.Stages) == 0 {
		return nil, model.NewCLIError(model.ExitConfigError, "stage selection excludes every stage")
	}
	return &filtered, nil
}

// finishRun stamps the report, delivers the webhook notification, and
// prints the summary. Notification failures are reported but never fail
// the run; the commit is already made by the time we get here.
func finishRun(ctx context.Context, cfg *config.Config, report *model.RunReport) {
	report.FinishedAt = time.Now()

	if cfg.Notify.Webhook != "" {
		// Use a fresh context so a Ctrl-C that stopped the stages does not
		// also swallow the notification.
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := notify.NewWebhook(cfg.Notify.Webhook).Notify(nctx, report); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: webhook notification failed: %v\n", err)
		} else {
			VerboseLog("Run report delivered to %s", cfg.Notify.Webhook)
		}
	}

	if IsJSONOutput() {
		data, err := json.MarshalIndent(report, "", "  ")
		if err == nil {
			fmt.Println(string(data))
		}
		return
	}
	_ = ui.Summary(os.Stdout, report)
}
