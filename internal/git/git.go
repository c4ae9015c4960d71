// Package git provides the VCS collaborator used to commit produced artifacts.
package git

import (
	"fmt"
	"os/exec"
	"strings"
)

// Committer records produced artifacts in version control.
type Committer interface {
	// Commit stages the given files and creates a commit.
	// Returns the new commit SHA.
	Commit(message string, files []string) (string, error)
}

// Runner executes git commands in a repository.
type Runner struct {
	repoPath string
}

// NewRunner creates a Runner for the given repository path.
func NewRunner(repoPath string) *Runner {
	return &Runner{repoPath: repoPath}
}

// run executes a git command and returns trimmed output.
func (r *Runner) run(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = r.repoPath
	out, err := cmd.CombinedOutput()
	output := strings.TrimSpace(string(out))
	if err != nil {
		return output, fmt.Errorf("git %s: %w: %s", args[0], err, output)
	}
	return output, nil
}

// Commit stages the given files and commits them.
func (r *Runner) Commit(message string, files []string) (string, error) {
	addArgs := append([]string{"add", "--"}, files...)
	if len(files) == 0 {
		addArgs = []string{"add", "-A"}
	}
	if _, err := r.run(addArgs...); err != nil {
		return "", err
	}

	if _, err := r.run("commit", "-m", message); err != nil {
		return "", err
	}

	sha, err := r.run("rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return sha, nil
}

// HasChanges returns true if there are uncommitted changes.
func (r *Runner) HasChanges() (bool, error) {
	out, err := r.run("status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out != "", nil
}

// CurrentBranch returns the name of the current branch.
func (r *Runner) CurrentBranch() (string, error) {
	return r.run("rev-parse", "--abbrev-ref", "HEAD")
}
