package testutil

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// PayloadSize is large enough for a project tree to pass the default
// minimum snapshot size check
const PayloadSize = (1 << 20) + 4096

// TempGitRepo creates a temporary git repository for testing
type TempGitRepo struct {
	Path string
	T    *testing.T
}

// NewTempGitRepo creates a new temporary git repository
func NewTempGitRepo(t *testing.T) *TempGitRepo {
	t.Helper()

	// Create temp directory
	tmpDir, err := os.MkdirTemp("", "rollguard-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}

	// Initialize git repo
	cmd := exec.Command("git", "init")
	cmd.Dir = tmpDir
	if err := cmd.Run(); err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("failed to init git repo: %v", err)
	}

	// Configure git user (required for commits)
	configCmds := [][]string{
		{"config", "user.name", "Test User"},
		{"config", "user.email", "test@example.com"},
	}

	for _, args := range configCmds {
		cmd := exec.Command("git", args...)
		cmd.Dir = tmpDir
		if err := cmd.Run(); err != nil {
			os.RemoveAll(tmpDir)
			t.Fatalf("failed to configure git: %v", err)
		}
	}

	// Create initial commit
	testFile := filepath.Join(tmpDir, "README.md")
	if err := os.WriteFile(testFile, []byte("# Test Repository\n"), 0644); err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("failed to create test file: %v", err)
	}

	cmd = exec.Command("git", "add", ".")
	cmd.Dir = tmpDir
	if err := cmd.Run(); err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("failed to add files: %v", err)
	}

	cmd = exec.Command("git", "commit", "-m", "Initial commit")
	cmd.Dir = tmpDir
	if err := cmd.Run(); err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("failed to create initial commit: %v", err)
	}

	return &TempGitRepo{
		Path: tmpDir,
		T:    t,
	}
}

// Cleanup removes the temporary git repository
func (r *TempGitRepo) Cleanup() {
	r.T.Helper()
	if err := os.RemoveAll(r.Path); err != nil {
		r.T.Errorf("failed to cleanup temp repo: %v", err)
	}
}

// CreateFile creates a file in the repository
func (r *TempGitRepo) CreateFile(name, content string) {
	r.T.Helper()
	writeFile(r.T, r.Path, name, []byte(content))
}

// TempProject is a throwaway project tree guarded by rollguard in tests
type TempProject struct {
	Root string
	T    *testing.T
}

// NewTempProject creates a project tree with a README.md and a payload file
// big enough to produce a verifiable snapshot
func NewTempProject(t *testing.T) *TempProject {
	t.Helper()

	p := &TempProject{Root: t.TempDir(), T: t}
	p.CreateFile("README.md", "# Test Project\n")
	p.WriteBytes("data/payload.bin", bytes.Repeat([]byte{'x'}, PayloadSize))
	return p
}

// CreateFile creates a file relative to the project root
func (p *TempProject) CreateFile(name, content string) {
	p.T.Helper()
	writeFile(p.T, p.Root, name, []byte(content))
}

// WriteBytes writes raw content relative to the project root
func (p *TempProject) WriteBytes(name string, content []byte) {
	p.T.Helper()
	writeFile(p.T, p.Root, name, content)
}

// ReadFile returns the content of a project file, failing the test if absent
func (p *TempProject) ReadFile(name string) string {
	p.T.Helper()
	content, err := os.ReadFile(filepath.Join(p.Root, name))
	if err != nil {
		p.T.Fatalf("failed to read %s: %v", name, err)
	}
	return string(content)
}

// Exists reports whether a path exists relative to the project root
func (p *TempProject) Exists(name string) bool {
	_, err := os.Stat(filepath.Join(p.Root, name))
	return err == nil
}

// Remove deletes a path relative to the project root
func (p *TempProject) Remove(name string) {
	p.T.Helper()
	if err := os.RemoveAll(filepath.Join(p.Root, name)); err != nil {
		p.T.Fatalf("failed to remove %s: %v", name, err)
	}
}

func writeFile(t *testing.T, root, name string, content []byte) {
	t.Helper()
	path := filepath.Join(root, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("failed to create file: %v", err)
	}
}
