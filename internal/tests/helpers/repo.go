package helpers

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// CreateTestRepo creates a temporary git repository on branch main with a
// single committed README.md. The returned path has symlinks resolved.
func CreateTestRepo(t *testing.T) string {
	t.Helper()
	isolateGitEnv(t)

	// Keep the repository outside any enclosing git checkout
	tmpDir, err := os.MkdirTemp(os.TempDir(), "synectic-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(tmpDir) })

	tmpDir, err = filepath.EvalSymlinks(tmpDir)
	if err != nil {
		t.Fatalf("Failed to resolve temp dir: %v", err)
	}

	repo := filepath.Join(tmpDir, "repo")
	if err := os.Mkdir(repo, 0o755); err != nil {
		t.Fatalf("Failed to create repo dir: %v", err)
	}

	if _, err := runGit(repo, "init", "--initial-branch=main"); err != nil {
		// Fallback for older git versions
		if out, err := runGit(repo, "init"); err != nil {
			t.Fatalf("Failed to init git repo: %v, output: %s", err, out)
		}
		_, _ = runGit(repo, "symbolic-ref", "HEAD", "refs/heads/main")
	}
	configureUser(t, repo)

	// Templates might install hooks that interfere
	_, _ = runGit(repo, "config", "init.templateDir", "")

	CommitFile(t, repo, "README.md", "# Test Repository\n", "Initial commit")
	return repo
}

// CloneTestRepo clones src next to it and returns the clone's path
func CloneTestRepo(t *testing.T, src, name string) string {
	t.Helper()
	dst := filepath.Join(filepath.Dir(src), name)
	RunGit(t, filepath.Dir(src), "clone", "--quiet", src, dst)
	configureUser(t, dst)
	return dst
}

// RunGit runs git in dir and fails the test on error
func RunGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	out, err := runGit(dir, args...)
	if err != nil {
		t.Fatalf("git %s failed: %v, output: %s", strings.Join(args, " "), err, out)
	}
	return strings.TrimSpace(out)
}

// WriteFile writes content to a path relative to dir, creating parents
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("Failed to create parent of %s: %v", name, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

// CommitFile writes, stages and commits a single file
func CommitFile(t *testing.T, dir, name, content, message string) string {
	t.Helper()
	path := WriteFile(t, dir, name, content)
	RunGit(t, dir, "add", "--", name)
	RunGit(t, dir, "commit", "--quiet", "--no-verify", "-m", message)
	return path
}

// CreateBranch creates branch at the current HEAD without switching to it
func CreateBranch(t *testing.T, dir, branch string) {
	t.Helper()
	RunGit(t, dir, "branch", branch)
}

// Checkout switches the worktree at dir to branch
func Checkout(t *testing.T, dir, branch string) {
	t.Helper()
	RunGit(t, dir, "checkout", "--quiet", branch)
}

func configureUser(t *testing.T, dir string) {
	t.Helper()
	RunGit(t, dir, "config", "user.email", "test@example.com")
	RunGit(t, dir, "config", "user.name", "Test User")
	RunGit(t, dir, "config", "commit.gpgsign", "false")
}

func runGit(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// isolateGitEnv clears variables that would redirect git away from the
// test repository
func isolateGitEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"GIT_DIR", "GIT_WORK_TREE", "GIT_INDEX_FILE"} {
		if _, ok := os.LookupEnv(key); ok {
			t.Setenv(key, "")
			_ = os.Unsetenv(key)
		}
	}
}
