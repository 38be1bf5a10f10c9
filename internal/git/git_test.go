package git

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refinery-cli/refinery/internal/model"
	"github.com/refinery-cli/refinery/internal/testutil"
)

func TestRootAndCurrentBranch(t *testing.T) {
	repo := testutil.InitRepo(t)
	c := New(repo)

	root, err := c.Root()
	require.NoError(t, err)
	// git resolves symlinks in the path (t.TempDir is a symlink target
	// on macOS), so compare resolved paths.
	resolved, err := filepath.EvalSymlinks(repo)
	require.NoError(t, err)
	assert.Equal(t, resolved, root)

	branch, err := c.CurrentBranch()
	require.NoError(t, err)
	assert.Equal(t, "main", branch)
}

func TestStatusCleanAndDirty(t *testing.T) {
	repo := testutil.InitRepo(t)
	c := New(repo)

	entries, err := c.Status()
	require.NoError(t, err)
	assert.Empty(t, entries)

	dirty, err := c.IsDirty()
	require.NoError(t, err)
	assert.False(t, dirty)

	testutil.WriteFile(t, repo, "simple_example.py", "print('hello')\n")
	testutil.WriteFile(t, repo, "README.md", "# changed\n")

	entries, err = c.Status()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	byPath := map[string]StatusEntry{}
	for _, e := range entries {
		byPath[e.Path] = e
	}
	assert.Equal(t, " M", byPath["README.md"].Code)
	assert.True(t, byPath["simple_example.py"].Untracked())

	dirty, err = c.IsDirty()
	require.NoError(t, err)
	assert.True(t, dirty)
}

func TestAddCommitHead(t *testing.T) {
	repo := testutil.InitRepo(t)
	c := New(repo)

	before, err := c.Head()
	require.NoError(t, err)

	testutil.WriteFile(t, repo, "optimized.py", "x = set()\n")
	require.NoError(t, c.Add("."))
	require.NoError(t, c.Commit("Automated code optimization and formatting"))

	after, err := c.Head()
	require.NoError(t, err)
	assert.NotEqual(t, before, after)

	dirty, err := c.IsDirty()
	require.NoError(t, err)
	assert.False(t, dirty, "worktree should be clean after commit")
}

func TestCommitFallbackIdentity(t *testing.T) {
	repo := testutil.InitRepo(t)
	// Drop the configured identity and isolate from any global config.
	testutil.Git(t, repo, "config", "--unset", "user.email")
	testutil.Git(t, repo, "config", "--unset", "user.name")
	t.Setenv("GIT_CONFIG_GLOBAL", "/dev/null")
	t.Setenv("GIT_CONFIG_SYSTEM", "/dev/null")

	c := New(repo)
	testutil.WriteFile(t, repo, "a.py", "pass\n")
	require.NoError(t, c.Add("."))
	require.NoError(t, c.Commit("fallback identity"))

	out := testutil.Git(t, repo, "log", "-1", "--format=%ae")
	assert.Equal(t, "refinery@localhost", strings.TrimSpace(out))
}

func TestPushToRemote(t *testing.T) {
	work, bare := testutil.InitRepoWithRemote(t)
	c := New(work)

	testutil.WriteFile(t, work, "b.py", "pass\n")
	require.NoError(t, c.Add("."))
	require.NoError(t, c.Commit("push me"))
	require.NoError(t, c.Push("origin", "main"))

	localHead := strings.TrimSpace(testutil.Git(t, work, "rev-parse", "HEAD"))
	remoteHead := strings.TrimSpace(testutil.Git(t, bare, "rev-parse", "refs/heads/main"))
	assert.Equal(t, localHead, remoteHead)
}

func TestDiffStat(t *testing.T) {
	repo := testutil.InitRepo(t)
	c := New(repo)

	testutil.WriteFile(t, repo, "README.md", "# changed\nmore\n")

	stat, err := c.DiffStat()
	require.NoError(t, err)
	assert.Contains(t, stat, "README.md")
}

func TestRunErrorCarriesGitExitCode(t *testing.T) {
	c := New(t.TempDir()) // not a repository
	_, err := c.Status()
	require.Error(t, err)

	var cliErr *model.CLIError
	require.ErrorAs(t, err, &cliErr)
	assert.Equal(t, model.ExitGitError, cliErr.Code)
	assert.Contains(t, cliErr.Message, "git status --porcelain failed")
}

func TestParsePorcelain(t *testing.T) {
	out := " M src/app.py\n?? new_file.py\nR  old.py -> new.py\n"
	entries := parsePorcelain(out)
	require.Len(t, entries, 3)

	assert.Equal(t, StatusEntry{Code: " M", Path: "src/app.py"}, entries[0])
	assert.Equal(t, StatusEntry{Code: "??", Path: "new_file.py"}, entries[1])
	assert.Equal(t, "R ", entries[2].Code)
	assert.Equal(t, "old.py", entries[2].OrigPath)
	assert.Equal(t, "new.py", entries[2].Path)
	assert.Equal(t, "R  old.py -> new.py", entries[2].String())

	assert.Equal(t, []string{"src/app.py", "new_file.py", "new.py"}, Paths(entries))
}

func TestParsePorcelainEmpty(t *testing.T) {
	assert.Empty(t, parsePorcelain(""))
	assert.Empty(t, parsePorcelain("\n"))
}
