package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refinery-cli/refinery/internal/config"
	"github.com/refinery-cli/refinery/internal/model"
	"github.com/refinery-cli/refinery/internal/testutil"
)

func testConfig(names ...string) *config.Config {
	cfg := &config.Config{Version: config.CurrentVersion}
	for i, name := range names {
		s := config.Stage{Name: name, Run: []string{"true"}}
		if i > 0 {
			s.Needs = []string{names[i-1]}
		}
		cfg.Stages = append(cfg.Stages, s)
	}
	return cfg
}

func TestFilterStagesPassthrough(t *testing.T) {
	cfg := testConfig("a", "b")
	got, err := filterStages(cfg, nil, nil)
	require.NoError(t, err)
	assert.Same(t, cfg, got)
}

func TestFilterStagesOnly(t *testing.T) {
	cfg := testConfig("a", "b", "c")

	got, err := filterStages(cfg, []string{"b"}, nil)
	require.NoError(t, err)

	require.Len(t, got.Stages, 1)
	assert.Equal(t, "b", got.Stages[0].Name)
	// The need on the excluded "a" is pruned so the graph still resolves.
	assert.Empty(t, got.Stages[0].Needs)
}

func TestFilterStagesSkip(t *testing.T) {
	cfg := testConfig("a", "b", "c")

	got, err := filterStages(cfg, nil, []string{"b"})
	require.NoError(t, err)

	require.Len(t, got.Stages, 2)
	assert.Equal(t, "a", got.Stages[0].Name)
	assert.Equal(t, "c", got.Stages[1].Name)
	assert.Empty(t, got.Stages[1].Needs)
}

func TestFilterStagesUnknownName(t *testing.T) {
	cfg := testConfig("a")

	_, err := filterStages(cfg, []string{"nope"}, nil)
	require.Error(t, err)

	cliErr, ok := err.(*model.CLIError)
	require.True(t, ok)
	assert.Equal(t, model.ExitConfigError, cliErr.Code)
	assert.Contains(t, cliErr.Message, "nope")
}

func TestFilterStagesExcludesEverything(t *testing.T) {
	cfg := testConfig("a")

	_, err := filterStages(cfg, nil, []string{"a"})
	require.Error(t, err)
}

func TestFilterStagesDoesNotMutateOriginal(t *testing.T) {
	cfg := testConfig("a", "b")

	_, err := filterStages(cfg, []string{"b"}, nil)
	require.NoError(t, err)

	require.Len(t, cfg.Stages, 2)
	assert.Equal(t, []string{"a"}, cfg.Stages[1].Needs)
}

func TestResolveMessagePrecedence(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{Commit: config.CommitSpec{Message: "from config"}}

	// Flag wins over everything.
	msg, err := resolveMessage(ctx, &runFlags{message: "from flag"}, cfg)
	require.NoError(t, err)
	assert.Equal(t, "from flag", msg)

	// Then the pipeline file.
	msg, err = resolveMessage(ctx, &runFlags{}, cfg)
	require.NoError(t, err)
	assert.Equal(t, "from config", msg)

	// With neither, and no terminal attached under test, the stock
	// message is used.
	msg, err = resolveMessage(ctx, &runFlags{}, &config.Config{})
	require.NoError(t, err)
	assert.Equal(t, config.DefaultCommitMessage, msg)
}

func writePipeline(t *testing.T, dir, body string) {
	t.Helper()
	testutil.WriteFile(t, dir, "refinery.yaml", body)
	testutil.Git(t, dir, "add", ".")
	testutil.Git(t, dir, "commit", "-m", "add pipeline")
}

func TestRunPipelineCheckLeavesChangesUncommitted(t *testing.T) {
	repo := testutil.InitRepo(t)
	writePipeline(t, repo, `
version: 1
stages:
  - name: generate
    run:
      - echo change > generated.txt
`)
	t.Chdir(repo)

	err := runPipeline(context.Background(), &runFlags{}, true)
	require.NoError(t, err)

	// The stage ran and its output file exists, but nothing was committed.
	_, statErr := os.Stat(filepath.Join(repo, "generated.txt"))
	assert.NoError(t, statErr)
	status := testutil.Git(t, repo, "status", "--porcelain")
	assert.Contains(t, status, "generated.txt")
}

func TestRunPipelineCleanWorktree(t *testing.T) {
	repo := testutil.InitRepo(t)
	writePipeline(t, repo, `
version: 1
stages:
  - name: noop
    run:
      - "true"
`)
	t.Chdir(repo)

	before := testutil.Git(t, repo, "rev-parse", "HEAD")
	err := runPipeline(context.Background(), &runFlags{}, false)
	require.NoError(t, err)

	// Clean worktree: no approval, no commit.
	after := testutil.Git(t, repo, "rev-parse", "HEAD")
	assert.Equal(t, before, after)
}

func TestRunPipelineStageFailure(t *testing.T) {
	repo := testutil.InitRepo(t)
	writePipeline(t, repo, `
version: 1
stages:
  - name: boom
    run:
      - "false"
`)
	t.Chdir(repo)

	err := runPipeline(context.Background(), &runFlags{}, false)
	require.Error(t, err)

	cliErr, ok := err.(*model.CLIError)
	require.True(t, ok)
	assert.Equal(t, model.ExitStageFailed, cliErr.Code)
}

func TestRunPipelineCommitsAndPushes(t *testing.T) {
	repo, bare := testutil.InitRepoWithRemote(t)
	writePipeline(t, repo, `
version: 1
stages:
  - name: generate
    run:
      - echo change > generated.txt
commit:
  message: automated cleanup
  branch: main
`)
	t.Chdir(repo)

	err := runPipeline(context.Background(), &runFlags{yes: true}, false)
	require.NoError(t, err)

	// Commit created with the configured message.
	log := testutil.Git(t, repo, "log", "-1", "--format=%s")
	assert.Equal(t, "automated cleanup", strings.TrimSpace(log))
	status := testutil.Git(t, repo, "status", "--porcelain")
	assert.Empty(t, strings.TrimSpace(status))

	// And pushed to the bare remote.
	remoteLog := testutil.Git(t, bare, "log", "-1", "--format=%s", "main")
	assert.Equal(t, "automated cleanup", strings.TrimSpace(remoteLog))
}

func TestRunPipelineNoPush(t *testing.T) {
	repo, bare := testutil.InitRepoWithRemote(t)
	writePipeline(t, repo, `
version: 1
stages:
  - name: generate
    run:
      - echo change > generated.txt
`)
	t.Chdir(repo)

	err := runPipeline(context.Background(), &runFlags{yes: true, noPush: true}, false)
	require.NoError(t, err)

	localLog := testutil.Git(t, repo, "log", "-1", "--format=%s")
	assert.Equal(t, config.DefaultCommitMessage, strings.TrimSpace(localLog))
	remoteLog := testutil.Git(t, bare, "log", "-1", "--format=%s", "main")
	assert.NotEqual(t, config.DefaultCommitMessage, strings.TrimSpace(remoteLog))
}

func TestRunPipelineDryRun(t *testing.T) {
	repo := testutil.InitRepo(t)
	writePipeline(t, repo, `
version: 1
stages:
  - name: generate
    run:
      - echo change > generated.txt
`)
	t.Chdir(repo)

	before := testutil.Git(t, repo, "rev-parse", "HEAD")
	err := runPipeline(context.Background(), &runFlags{dryRun: true}, false)
	require.NoError(t, err)

	after := testutil.Git(t, repo, "rev-parse", "HEAD")
	assert.Equal(t, before, after)
}

func TestRunPipelineApprovalRequiredWithoutTerminal(t *testing.T) {
	repo := testutil.InitRepo(t)
	writePipeline(t, repo, `
version: 1
stages:
  - name: generate
    run:
      - echo change > generated.txt
`)
	t.Chdir(repo)

	// Under `go test` stdin is not a terminal, so a dirty run without
	// --yes must fail closed instead of committing.
	err := runPipeline(context.Background(), &runFlags{}, false)
	require.Error(t, err)

	cliErr, ok := err.(*model.CLIError)
	require.True(t, ok)
	assert.Equal(t, model.ExitApprovalRequired, cliErr.Code)

	status := testutil.Git(t, repo, "status", "--porcelain")
	assert.Contains(t, status, "generated.txt")
}

func TestRunPipelineMissingConfig(t *testing.T) {
	repo := testutil.InitRepo(t)
	t.Chdir(repo)

	err := runPipeline(context.Background(), &runFlags{}, true)
	require.Error(t, err)

	cliErr, ok := err.(*model.CLIError)
	require.True(t, ok)
	assert.Equal(t, model.ExitConfigError, cliErr.Code)
}

func TestRunPipelineNotifiesWebhook(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	repo := testutil.InitRepo(t)
	writePipeline(t, repo, `
version: 1
stages:
  - name: generate
    run:
      - echo change > generated.txt
notify:
  webhook: `+srv.URL+`
`)
	t.Chdir(repo)

	err := runPipeline(context.Background(), &runFlags{}, true)
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, "refinery.yaml", got["pipeline"])
	assert.Equal(t, "changes", got["status"])
	files, ok := got["changedFiles"].([]interface{})
	require.True(t, ok)
	assert.Contains(t, files, "generated.txt")
}

func TestRunPipelineNotifiesOnPushFailure(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	// No "origin" remote, so the push at the end of the run must fail.
	repo := testutil.InitRepo(t)
	writePipeline(t, repo, `
version: 1
stages:
  - name: generate
    run:
      - echo change > generated.txt
notify:
  webhook: `+srv.URL+`
`)
	t.Chdir(repo)

	err := runPipeline(context.Background(), &runFlags{yes: true}, false)
	require.Error(t, err)

	cliErr, ok := err.(*model.CLIError)
	require.True(t, ok)
	assert.Equal(t, model.ExitGitError, cliErr.Code)

	// The failure still produced a report delivery.
	require.NotNil(t, got)
	assert.Equal(t, "error", got["status"])
	files, ok := got["changedFiles"].([]interface{})
	require.True(t, ok)
	assert.Contains(t, files, "generated.txt")
}

func TestApprovalFailureStatus(t *testing.T) {
	declined := model.NewCLIError(model.ExitApprovalRequired, "approval aborted")
	assert.Equal(t, model.RunDeclined, approvalFailureStatus(declined))

	broken := model.WrapCLIError(model.ExitGeneralError, "approval prompt failed", assert.AnError)
	assert.Equal(t, model.RunError, approvalFailureStatus(broken))
}

func TestRunPipelineOnlyFilter(t *testing.T) {
	repo := testutil.InitRepo(t)
	writePipeline(t, repo, `
version: 1
stages:
  - name: first
    run:
      - echo one > first.txt
  - name: second
    needs: [first]
    run:
      - echo two > second.txt
`)
	t.Chdir(repo)

	err := runPipeline(context.Background(), &runFlags{only: []string{"second"}}, true)
	require.NoError(t, err)

	_, firstErr := os.Stat(filepath.Join(repo, "first.txt"))
	assert.True(t, os.IsNotExist(firstErr))
	_, secondErr := os.Stat(filepath.Join(repo, "second.txt"))
	assert.NoError(t, secondErr)
}
