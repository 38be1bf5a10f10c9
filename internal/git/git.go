package git

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/refinery-cli/refinery/internal/model"
)

// StatusEntry is a single line of `git status --porcelain` output:
// a two-character XY state code and the affected path. For renames the
// Path holds the new name and OrigPath the old one.
type StatusEntry struct {
	// Code is the two-character porcelain state (e.g. " M", "??", "A ").
	Code string

	// Path is the file path relative to the repository root.
	Path string

	// OrigPath is the pre-rename path for rename/copy entries, empty
	// otherwise.
	OrigPath string
}

// String renders the entry in the familiar porcelain form.
func (e StatusEntry) String() string {
	if e.OrigPath != "" {
		return fmt.Sprintf("%s %s -> %s", e.Code, e.OrigPath, e.Path)
	}
	return fmt.Sprintf("%s %s", e.Code, e.Path)
}

// Untracked reports whether the entry is an untracked file.
func (e StatusEntry) Untracked() bool {
	return e.Code == "??"
}

// Client provides git operations against a single working directory.
// It is stateless beyond the directory; every method shells out to the
// git binary with -C so the process working directory never changes.
type Client struct {
	// Dir is the directory git commands operate in. It does not need to
	// be the repository root; git resolves it.
	Dir string
}

// New creates a git Client for the given directory.
func New(dir string) *Client {
	return &Client{Dir: dir}
}

// IsInstalled reports whether a git binary is available on PATH.
func IsInstalled() bool {
	_, err := exec.LookPath("git")
	return err == nil
}

// Root returns the absolute path of the repository's top-level
// directory, via `git rev-parse --show-toplevel`.
func (c *Client) Root() (string, error) {
	out, err := c.run("rev-parse", "--show-toplevel")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// CurrentBranch returns the short name of the checked-out branch, or
// "HEAD" when detached.
func (c *Client) CurrentBranch() (string, error) {
	out, err := c.run("rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Head returns the short SHA of HEAD.
func (c *Client) Head() (string, error) {
	out, err := c.run("rev-parse", "--short", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Status returns the parsed `git status --porcelain` entries.
// An empty slice means the worktree is clean.
func (c *Client) Status() ([]StatusEntry, error) {
	out, err := c.run("status", "--porcelain")
	if err != nil {
		return nil, err
	}
	return parsePorcelain(out), nil
}

// IsDirty reports whether the worktree has uncommitted changes,
// including untracked files. This is the guard the conditional
// approval and commit phases key off.
func (c *Client) IsDirty() (bool, error) {
	entries, err := c.Status()
	if err != nil {
		return false, err
	}
	return len(entries) > 0, nil
}

// DiffStat returns `git diff --stat` output for tracked changes.
// Untracked files do not appear here; callers pair this with Status
// for the full picture.
func (c *Client) DiffStat() (string, error) {
	out, err := c.run("diff", "--stat")
	if err != nil {
		return "", err
	}
	return strings.TrimRight(out, "\n"), nil
}

// Add stages the given paths.
func (c *Client) Add(paths ...string) error {
	args := append([]string{"add", "--"}, paths...)
	_, err := c.run(args...)
	return err
}

// Commit creates a commit with the given message. If user.name or
// user.email is not configured, repo-local fallback values are set
// first so commits work on hosts without a global git identity.
func (c *Client) Commit(message string) error {
	if err := c.ensureIdentity(); err != nil {
		return err
	}
	_, err := c.run("commit", "-m", message)
	return err
}

// Push pushes the given branch to the named remote.
func (c *Client) Push(remote, branch string) error {
	_, err := c.run("push", remote, branch)
	return err
}

// ensureIdentity configures a repo-local commit identity when none is
// available, mirroring what CI hosts usually lack.
func (c *Client) ensureIdentity() error {
	if _, err := c.run("config", "user.email"); err == nil {
		return nil
	}
	if _, err := c.run("config", "user.email", "refinery@localhost"); err != nil {
		return err
	}
	if _, err := c.run("config", "user.name", "refinery"); err != nil {
		return err
	}
	return nil
}

// run executes a git command in the client directory. It captures
// stdout and stderr separately; on failure the stderr tail is folded
// into the returned CLIError so the user sees git's own diagnostics.
//
// The directory is passed via the -C flag, which git handles itself,
// rather than exec.Cmd.Dir. This keeps behavior identical for every
// subcommand including aliases and hooks.
func (c *Client) run(args ...string) (string, error) {
	fullArgs := append([]string{"-C", c.Dir}, args...)

	// #nosec G204 — args are constructed internally, not from user input
	cmd := exec.Command("git", fullArgs...)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		message := fmt.Sprintf("git %s failed", strings.Join(args, " "))
		if s := strings.TrimSpace(stderr.String()); s != "" {
			message = fmt.Sprintf("%s: %s", message, s)
		}
		return "", model.WrapCLIError(model.ExitGitError, message, err)
	}

	return stdout.String(), nil
}

// parsePorcelain parses `git status --porcelain` output. Each line is
// a two-character code, a space, and the path; rename entries carry
// "orig -> new". Paths with special characters arrive quoted by git;
// the quotes are kept as-is since the driver only displays and counts
// entries.
func parsePorcelain(out string) []StatusEntry {
	var entries []StatusEntry
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 4 {
			continue
		}
		entry := StatusEntry{Code: line[:2], Path: line[3:]}
		if orig, renamed, ok := strings.Cut(entry.Path, " -> "); ok {
			entry.OrigPath = orig
			entry.Path = renamed
		}
		entries = append(entries, entry)
	}
	return entries
}

// Paths extracts the file paths from a set of status entries, in order.
func Paths(entries []StatusEntry) []string {
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		paths = append(paths, e.Path)
	}
	return paths
}
