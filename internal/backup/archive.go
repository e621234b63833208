package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/pders01/rollguard/internal/models"
)

// Export writes snap as a gzipped tarball to w, with every entry placed
// under prefix. It returns the number of regular files written.
func (e *Engine) Export(ctx context.Context, snap *models.Snapshot, w io.Writer, prefix string) (int, error) {
	if !e.Exists(snap) {
		return 0, ErrSnapshotMissing
	}

	gzWriter := gzip.NewWriter(w)
	tarWriter := tar.NewWriter(gzWriter)

	files := 0
	err := afero.Walk(e.fs, snap.Path, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		relPath, err := filepath.Rel(snap.Path, path)
		if err != nil {
			return err
		}
		if relPath == "." {
			return nil
		}

		link := ""
		if info.Mode()&os.ModeSymlink != 0 {
			if reader, ok := e.fs.(afero.LinkReader); ok {
				if link, err = reader.ReadlinkIfPossible(path); err != nil {
					return err
				}
			}
		} else if !info.IsDir() && !info.Mode().IsRegular() {
			return nil
		}

		header, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(filepath.Join(prefix, relPath))
		if err := tarWriter.WriteHeader(header); err != nil {
			return err
		}

		if !info.Mode().IsRegular() {
			return nil
		}
		file, err := e.fs.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()

		if _, err := io.Copy(tarWriter, file); err != nil {
			return err
		}
		files++
		return nil
	})
	if err != nil {
		return files, fmt.Errorf("failed to export %s: %w", snap.Path, err)
	}

	if err := tarWriter.Close(); err != nil {
		return files, err
	}
	return files, gzWriter.Close()
}
