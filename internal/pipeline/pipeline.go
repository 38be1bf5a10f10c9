package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/refinery-cli/refinery/internal/config"
	"github.com/refinery-cli/refinery/internal/model"
	"github.com/refinery-cli/refinery/internal/runner"
)

// outputTail limits how much stage output is kept in the run report.
// The full output streams to the terminal; the report only carries the
// tail, which is where failures show up.
const outputTail = 2048

// ErrHalted marks a run stopped by a hard stage failure. The per-stage
// cause is wrapped around it.
var ErrHalted = errors.New("pipeline halted")

// DirtyFunc reports whether the worktree currently has uncommitted
// changes. It backs the "when: changes" stage guard and is queried
// lazily, each time a guarded stage is reached.
type DirtyFunc func(ctx context.Context) (bool, error)

// Logger receives verbose progress lines. It matches the CLI's
// VerboseLog signature so the engine stays free of output policy.
type Logger func(format string, args ...interface{})

// Engine executes a resolved pipeline.
type Engine struct {
	cfg   *config.Config
	run   runner.Runner
	dir   string
	dirty DirtyFunc
	logf  Logger
	nowFn func() time.Time
}

// New creates an Engine. run executes stage commands in dir (the
// repository root); dirty backs the changes guard; logf may be nil.
func New(cfg *config.Config, run runner.Runner, dir string, dirty DirtyFunc, logf Logger) *Engine {
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	return &Engine{cfg: cfg, run: run, dir: dir, dirty: dirty, logf: logf, nowFn: time.Now}
}

// Run executes the stages in plan order and returns their results in
// execution order. A hard failure stops the run and returns an error
// wrapping ErrHalted; results collected so far (including the failed
// stage) are still returned. Soft failures and skips never produce an
// error.
func (e *Engine) Run(ctx context.Context, plan *Plan) ([]model.StageResult, error) {
	if e.cfg.Parallel {
		return e.runLevels(ctx, plan)
	}
	return e.runSequential(ctx, plan)
}

func (e *Engine) runSequential(ctx context.Context, plan *Plan) ([]model.StageResult, error) {
	results := make([]model.StageResult, 0, len(plan.Ordered))
	for _, stage := range plan.Ordered {
		if err := ctx.Err(); err != nil {
			return results, errors.Wrap(err, "run interrupted")
		}

		res := e.runStage(ctx, stage)
		results = append(results, res)

		if res.Status == model.StageFailed {
			return results, errors.Wrapf(ErrHalted, "stage %q failed: %s", stage.Name, res.Error)
		}
	}
	return results, nil
}

// runLevels executes one dependency level at a time, stages within a
// level concurrently. A hard failure finishes the current level (its
// siblings are already running) and then stops.
func (e *Engine) runLevels(ctx context.Context, plan *Plan) ([]model.StageResult, error) {
	var results []model.StageResult

	for _, level := range plan.Levels {
		if err := ctx.Err(); err != nil {
			return results, errors.Wrap(err, "run interrupted")
		}

		levelResults := make([]model.StageResult, len(level))
		var mu sync.Mutex

		grp, grpCtx := errgroup.WithContext(ctx)
		for i, stage := range level {
			grp.Go(func() error {
				res := e.runStage(grpCtx, stage)
				mu.Lock()
				levelResults[i] = res
				mu.Unlock()
				return nil
			})
		}
		// runStage never returns an error to the group; failures are
		// carried in the results so every stage of the level completes.
		_ = grp.Wait()

		var failed *model.StageResult
		for i := range levelResults {
			results = append(results, levelResults[i])
			if levelResults[i].Status == model.StageFailed && failed == nil {
				failed = &levelResults[i]
			}
		}
		if failed != nil {
			return results, errors.Wrapf(ErrHalted, "stage %q failed: %s", failed.Name, failed.Error)
		}
	}
	return results, nil
}

// runStage evaluates the stage guard and runs its commands in order,
// stopping the stage at the first failing command.
func (e *Engine) runStage(ctx context.Context, stage *config.Stage) model.StageResult {
	res := model.StageResult{Name: stage.Name, Status: model.StageOK}

	if stage.When == config.WhenChanges {
		dirty, err := e.dirty(ctx)
		if err != nil {
			res.Status = model.StageFailed
			res.Error = err.Error()
			return res
		}
		if !dirty {
			e.logf("Stage %q skipped: worktree is clean", stage.Name)
			res.Status = model.StageSkipped
			return res
		}
	}

	env := e.cfg.StageEnv(stage)
	container := e.cfg.StageContainer(stage)

	start := e.nowFn()
	var output string
	for _, raw := range stage.Run {
		command := e.cfg.ExpandCommand(stage, raw)
		e.logf("Stage %q: running %q", stage.Name, command)

		spec := runner.Spec{
			Stage:   stage.Name,
			Command: command,
			Dir:     e.dir,
			Env:     env,
		}
		if container != nil {
			spec.Image = container.Image
		}

		out, err := e.run.Run(ctx, spec)
		output += out

		if err != nil {
			res.Error = err.Error()
			if stage.ContinueOnError {
				e.logf("Stage %q: command failed, continuing: %v", stage.Name, err)
				res.Status = model.StageSoftFailed
				// Remaining commands of a soft-failing stage still run,
				// matching the original behavior where each formatter
				// ran regardless of the previous one's failure.
				continue
			}
			res.Status = model.StageFailed
			break
		}
	}
	res.Duration = e.nowFn().Sub(start)
	res.Output = tail(output, outputTail)

	return res
}

// tail returns at most n trailing bytes of s.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
