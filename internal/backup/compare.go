package backup

import (
	"bytes"
	"context"
	"crypto/sha256"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"

	"github.com/pders01/rollguard/internal/models"
)

// TreeDiff lists the files that differ between two snapshots. Paths are
// relative to the snapshot root and sorted.
type TreeDiff struct {
	Added    []string `json:"added"`
	Removed  []string `json:"removed"`
	Modified []string `json:"modified"`
	Same     int      `json:"unchanged"`
}

// Empty reports whether the snapshots hold identical files
func (d *TreeDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Modified) == 0
}

// Compare reports which regular files were added, removed or modified
// going from snapshot a to snapshot b
func (e *Engine) Compare(ctx context.Context, a, b *models.Snapshot) (*TreeDiff, error) {
	if !e.Exists(a) || !e.Exists(b) {
		return nil, ErrSnapshotMissing
	}

	left, err := e.fileIndex(ctx, a.Path)
	if err != nil {
		return nil, err
	}
	right, err := e.fileIndex(ctx, b.Path)
	if err != nil {
		return nil, err
	}

	diff := &TreeDiff{}
	for rel, lsize := range left {
		rsize, ok := right[rel]
		switch {
		case !ok:
			diff.Removed = append(diff.Removed, rel)
		case lsize != rsize:
			diff.Modified = append(diff.Modified, rel)
		default:
			same, err := e.sameContent(filepath.Join(a.Path, filepath.FromSlash(rel)), filepath.Join(b.Path, filepath.FromSlash(rel)))
			if err != nil {
				return nil, err
			}
			if same {
				diff.Same++
			} else {
				diff.Modified = append(diff.Modified, rel)
			}
		}
	}
	for rel := range right {
		if _, ok := left[rel]; !ok {
			diff.Added = append(diff.Added, rel)
		}
	}

	sort.Strings(diff.Added)
	sort.Strings(diff.Removed)
	sort.Strings(diff.Modified)
	return diff, nil
}

// fileIndex maps every regular file under root to its size
func (e *Engine) fileIndex(ctx context.Context, root string) (map[string]int64, error) {
	index := make(map[string]int64)
	err := afero.Walk(e.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		index[filepath.ToSlash(rel)] = info.Size()
		return nil
	})
	return index, err
}

func (e *Engine) sameContent(a, b string) (bool, error) {
	ha, err := e.checksum(a)
	if err != nil {
		return false, err
	}
	hb, err := e.checksum(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ha, hb), nil
}

func (e *Engine) checksum(path string) ([]byte, error) {
	f, err := e.fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}
