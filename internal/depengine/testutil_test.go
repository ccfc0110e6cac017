package depengine

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aspiers/git-deps/internal/gitcore"
)

// setupTestRepo initializes a throwaway git repository on disk via the git
// binary and returns it opened through gitcore. Fixture construction uses
// the real git plumbing so the commits it produces are bit-for-bit what a
// user's repository would contain; the engine under test never shells out
// itself.
func setupTestRepo(t *testing.T) (*gitcore.Repository, string) {
	t.Helper()

	dir := t.TempDir()
	git(t, dir, "init", "-b", "main")
	git(t, dir, "config", "user.name", "Test User")
	git(t, dir, "config", "user.email", "test@example.com")

	repo, err := gitcore.NewRepository(dir)
	if err != nil {
		t.Fatalf("gitcore.NewRepository: %v", err)
	}
	return repo, dir
}

// reopenRepo opens dir through gitcore again. A Repository loads its commits
// once when opened, so scenarios reopen it after building their fixtures.
func reopenRepo(t *testing.T, dir string) *gitcore.Repository {
	t.Helper()
	repo, err := gitcore.NewRepository(dir)
	if err != nil {
		t.Fatalf("gitcore.NewRepository: %v", err)
	}
	return repo
}

// commitFile writes content to filename and commits it with a fixed
// timestamp (commit ordering comes from parent links, not clock time).
func commitFile(t *testing.T, dir string, filename, content, message string) gitcore.Hash {
	t.Helper()

	path := filepath.Join(dir, filename)
	if parent := filepath.Dir(path); parent != dir {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", parent, err)
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", filename, err)
	}

	git(t, dir, "add", filename)
	gitWithEnv(t, dir, []string{
		"GIT_AUTHOR_DATE=2024-01-01T00:00:00",
		"GIT_COMMITTER_DATE=2024-01-01T00:00:00",
	}, "commit", "-m", message)

	return headHash(t, dir)
}

// writeFile overwrites filename's content without staging or committing,
// for building up a commit in multiple steps (e.g. amending a merge).
func writeFile(t *testing.T, dir, filename, content string) {
	t.Helper()
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", filename, err)
	}
}

func headHash(t *testing.T, dir string) gitcore.Hash {
	t.Helper()
	return gitcore.Hash(strings.TrimSpace(git(t, dir, "rev-parse", "HEAD")))
}

// checkoutNewBranch creates and switches to a new branch rooted at the
// current HEAD, for building merge-commit fixtures.
func checkoutNewBranch(t *testing.T, dir, name string) {
	t.Helper()
	git(t, dir, "checkout", "-b", name)
}

// checkoutBranch switches to an already-existing branch.
func checkoutBranch(t *testing.T, dir, name string) {
	t.Helper()
	git(t, dir, "checkout", name)
}

// mergeBranch merges name into the current branch with a real merge commit
// (never fast-forward), so the result always has two parents.
func mergeBranch(t *testing.T, dir, name, message string) gitcore.Hash {
	t.Helper()
	gitWithEnv(t, dir, []string{
		"GIT_AUTHOR_DATE=2024-01-01T00:00:00",
		"GIT_COMMITTER_DATE=2024-01-01T00:00:00",
	}, "merge", "--no-ff", "-m", message, name)
	return headHash(t, dir)
}

func git(t *testing.T, dir string, args ...string) string {
	t.Helper()
	return gitWithEnv(t, dir, nil, args...)
}

func gitWithEnv(t *testing.T, dir string, env []string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), env...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		t.Fatalf("git %s failed: %v\nstderr: %s", strings.Join(args, " "), err, stderr.String())
	}
	return stdout.String()
}

// recordingListener accumulates every event it receives, for assertions
// against the scenarios in scenarios_test.go.
type recordingListener struct {
	NoopListener

	commits       []gitcore.Hash
	dependents    []gitcore.Hash
	dependencies  []Edge
	paths         []string
	lines         []int
	dependentDone []gitcore.Hash
	allDone       bool
}

func (r *recordingListener) NewCommit(c *gitcore.Commit) {
	r.commits = append(r.commits, c.ID)
}

func (r *recordingListener) NewDependent(d *gitcore.Commit) {
	r.dependents = append(r.dependents, d.ID)
}

func (r *recordingListener) NewDependency(d, dep *gitcore.Commit, path string, line int) {
	r.dependencies = append(r.dependencies, Edge{Dependent: d.ID, Dependency: dep.ID})
}

func (r *recordingListener) NewLine(d, dep *gitcore.Commit, path string, line int) {
	r.paths = append(r.paths, path)
	r.lines = append(r.lines, line)
}

func (r *recordingListener) DependentDone(d *gitcore.Commit, _ DependencyEdges) {
	r.dependentDone = append(r.dependentDone, d.ID)
}

func (r *recordingListener) AllDone() {
	r.allDone = true
}

func (r *recordingListener) hasEdge(dependent, dependency gitcore.Hash) bool {
	for _, e := range r.dependencies {
		if e.Dependent == dependent && e.Dependency == dependency {
			return true
		}
	}
	return false
}
