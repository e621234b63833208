package git

import (
	"fmt"
	"os/exec"
	"strings"
)

// Unknown is reported when git information is unavailable
const Unknown = "unknown"

// IsGitRepo checks if dir is inside a git repository
func IsGitRepo(dir string) bool {
	cmd := exec.Command("git", "rev-parse", "--git-dir")
	cmd.Dir = dir
	return cmd.Run() == nil
}

// GetCurrentCommit returns the current commit hash
func GetCurrentCommit(dir string) (string, error) {
	cmd := exec.Command("git", "rev-parse", "HEAD")
	cmd.Dir = dir
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("failed to get current commit: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

// GetAuthor returns the configured git user name
func GetAuthor(dir string) (string, error) {
	cmd := exec.Command("git", "config", "user.name")
	cmd.Dir = dir
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("failed to get author: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

// HasUncommittedChanges checks if there are uncommitted changes
func HasUncommittedChanges(dir string) (bool, error) {
	cmd := exec.Command("git", "status", "--porcelain")
	cmd.Dir = dir
	output, err := cmd.Output()
	if err != nil {
		return false, fmt.Errorf("failed to check git status: %w", err)
	}
	return len(strings.TrimSpace(string(output))) > 0, nil
}

// Identity returns the short commit ref and author of dir, falling back to
// Unknown for either when git cannot answer
func Identity(dir string) (commitRef, author string) {
	commitRef, author = Unknown, Unknown
	if commit, err := GetCurrentCommit(dir); err == nil && commit != "" {
		commitRef = commit
		if len(commitRef) > 8 {
			commitRef = commitRef[:8]
		}
	}
	if name, err := GetAuthor(dir); err == nil && name != "" {
		author = name
	}
	return commitRef, author
}
