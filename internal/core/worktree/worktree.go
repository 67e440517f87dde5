// Package worktree resolves which git repository and worktree own a path.
// Results always reflect the current disk layout; nothing is cached.
package worktree

import (
	"os"
	"path/filepath"
	"strings"
)

// Worktree locates the main repository and, for linked worktrees, the
// linked checkout containing a path. The zero value means the path is not
// inside any repository.
type Worktree struct {
	// Dir is the root of the main worktree
	Dir string
	// GitDir is the main repository's .git directory
	GitDir string
	// WorktreeDir is the root of the linked worktree, if any
	WorktreeDir string
	// WorktreeGitDir is <GitDir>/worktrees/<name> for linked worktrees
	WorktreeGitDir string
}

// Found reports whether the path belongs to a repository
func (w Worktree) Found() bool {
	return w.Dir != ""
}

// IsLinked reports whether the path lies in a linked worktree
func (w Worktree) IsLinked() bool {
	return w.WorktreeDir != ""
}

// Root returns the checkout root containing the path
func (w Worktree) Root() string {
	if w.IsLinked() {
		return w.WorktreeDir
	}
	return w.Dir
}

// ActiveGitDir returns the git directory holding HEAD and merge state for
// the checkout containing the path
func (w Worktree) ActiveGitDir() string {
	if w.IsLinked() {
		return w.WorktreeGitDir
	}
	return w.GitDir
}

// Resolve walks up from path until it finds a .git entry. The path itself
// does not need to exist.
func Resolve(path string) Worktree {
	if path == "" {
		return Worktree{}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return Worktree{}
	}

	for dir := abs; ; dir = filepath.Dir(dir) {
		if wt, ok := inspect(dir); ok {
			return wt
		}
		if parent := filepath.Dir(dir); parent == dir {
			return Worktree{}
		}
	}
}

func inspect(dir string) (Worktree, bool) {
	dotGit := filepath.Join(dir, ".git")
	info, err := os.Stat(dotGit)
	if err != nil {
		return Worktree{}, false
	}
	if info.IsDir() {
		return Worktree{Dir: dir, GitDir: dotGit}, true
	}

	gitDir, ok := readGitFile(dotGit)
	if !ok {
		return Worktree{}, false
	}

	common, ok := readCommonDir(gitDir)
	if !ok {
		// A gitfile without commondir, e.g. a submodule checkout
		return Worktree{Dir: dir, GitDir: gitDir}, true
	}
	return Worktree{
		Dir:            filepath.Dir(common),
		GitDir:         common,
		WorktreeDir:    dir,
		WorktreeGitDir: gitDir,
	}, true
}

// readGitFile parses a "gitdir: <path>" file
func readGitFile(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	line := strings.TrimSpace(string(data))
	target, ok := strings.CutPrefix(line, "gitdir:")
	if !ok {
		return "", false
	}
	target = strings.TrimSpace(target)
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(path), target)
	}
	return filepath.Clean(target), true
}

func readCommonDir(gitDir string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(gitDir, "commondir"))
	if err != nil {
		return "", false
	}
	common := strings.TrimSpace(string(data))
	if common == "" {
		return "", false
	}
	if !filepath.IsAbs(common) {
		common = filepath.Join(gitDir, common)
	}
	return filepath.Clean(common), true
}

// LinkedPath returns where the linked worktree for ref is placed:
// <parent of repoRoot>/<dir>/<repo name>/<ref>
func LinkedPath(dir, repoRoot, ref string) string {
	repoRoot = filepath.Clean(repoRoot)
	return filepath.Join(filepath.Dir(repoRoot), dir, filepath.Base(repoRoot), filepath.FromSlash(ref))
}

// Contains reports whether path equals root or lies beneath it
func Contains(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
