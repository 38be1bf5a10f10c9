// Package testutil provides git repository fixtures for tests.
// All helpers shell out to the real git binary and create their
// fixtures under t.TempDir(), so cleanup is automatic.
package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// InitRepo creates a git repository on branch "main" with a configured
// commit identity and a single initial commit. Returns the repo path.
func InitRepo(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	Git(t, dir, "init", "-b", "main")
	Git(t, dir, "config", "user.email", "test@example.com")
	Git(t, dir, "config", "user.name", "Test User")

	WriteFile(t, dir, "README.md", "# test repo\n")
	Git(t, dir, "add", ".")
	Git(t, dir, "commit", "-m", "initial commit")

	return dir
}

// InitRepoWithRemote creates a working repository plus a bare "origin"
// remote it can push to. Returns the work tree path and the bare repo path.
func InitRepoWithRemote(t *testing.T) (work, bare string) {
	t.Helper()

	work = InitRepo(t)
	bare = filepath.Join(t.TempDir(), "origin.git")
	Git(t, work, "clone", "--bare", work, bare)
	Git(t, work, "remote", "add", "origin", bare)

	return work, bare
}

// WriteFile writes a file inside the repository, creating parent
// directories as needed.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", name, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// Git runs a git command in dir and fails the test on a non-zero exit.
// Returns combined output for assertions.
func Git(t *testing.T, dir string, args ...string) string {
	t.Helper()

	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v failed: %v\n%s", args, err, out)
	}
	return string(out)
}
