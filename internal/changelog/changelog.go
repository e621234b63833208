package changelog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pders01/rollguard/internal/models"
)

const title = "# Changelog\n\n"

// Writer maintains a markdown changelog with the newest entry first
type Writer struct {
	path string
}

// NewWriter creates a writer for the changelog at path
func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// Path returns the changelog location
func (w *Writer) Path() string { return w.path }

// Append adds an entry for v above all existing entries
func (w *Writer) Append(v *models.Version) error {
	existing, err := os.ReadFile(w.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to read changelog: %w", err)
	}
	body := strings.TrimPrefix(string(existing), title)

	var b strings.Builder
	b.WriteString(title)
	b.WriteString(Entry(v))
	b.WriteString(body)

	if err := os.MkdirAll(filepath.Dir(w.path), 0755); err != nil {
		return fmt.Errorf("failed to create changelog directory: %w", err)
	}
	tmp := w.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write changelog: %w", err)
	}
	if err := os.Rename(tmp, w.path); err != nil {
		return fmt.Errorf("failed to replace changelog: %w", err)
	}
	return nil
}

// Entry renders the markdown section for one version
func Entry(v *models.Version) string {
	status := "testing"
	if v.IsStable {
		status = "stable"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## [%s] - %s\n\n", v.ID, v.CreatedAt.Format("2006-01-02"))
	fmt.Fprintf(&b, "**Author:** %s  \n", v.Author)
	fmt.Fprintf(&b, "**Commit:** %s  \n", v.CommitRef)
	fmt.Fprintf(&b, "**Stability:** %.1f/100  \n", v.StabilityScore)
	fmt.Fprintf(&b, "**Status:** %s\n\n", status)
	if v.Description != "" {
		fmt.Fprintf(&b, "### Description\n%s\n\n", v.Description)
	}
	if len(v.ChangeNotes) > 0 {
		b.WriteString("### Changes\n")
		for _, note := range v.ChangeNotes {
			fmt.Fprintf(&b, "- %s\n", note)
		}
		b.WriteString("\n")
	}
	b.WriteString("---\n\n")
	return b.String()
}
