package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export <version>",
	Short: "Bundle a version's snapshot for external storage",
	Long: `Create a tar.gz archive of a version's snapshot for backup or transfer.

Examples:
  rollguard export 1.0.0                    # writes rollguard-1.0.0.tar.gz
  rollguard export 1.0.0 --output /mnt/offsite/release.tar.gz`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file path (default: rollguard-<version>.tar.gz)")
}

func runExport(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	v, err := a.store.Get(args[0])
	if err != nil {
		return fmt.Errorf("version %s: %w", args[0], err)
	}
	if !v.HasBackup() {
		return fmt.Errorf("version %s has no usable snapshot", v.ID)
	}

	prefix := filepath.Base(v.BackupRef.Path)
	outputFile := exportOutput
	if outputFile == "" {
		outputFile = fmt.Sprintf("rollguard-%s.tar.gz", strings.ReplaceAll(v.ID, "/", "-"))
	}

	fmt.Printf("Exporting %s to: %s\n", v.BackupRef.Path, outputFile)

	outFile, err := os.Create(outputFile)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	files, err := a.engine.Export(context.Background(), v.BackupRef, outFile, prefix)
	if cerr := outFile.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(outputFile)
		return fmt.Errorf("failed to create archive: %w", err)
	}

	if info, err := os.Stat(outputFile); err == nil {
		fmt.Printf("\n✓ Archive created: %s (%d files, %s)\n", outputFile, files, humanize.IBytes(uint64(info.Size())))
	} else {
		fmt.Printf("\n✓ Archive created: %s (%d files)\n", outputFile, files)
	}
	return nil
}
