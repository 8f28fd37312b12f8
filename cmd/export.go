package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/iksnae/devtrail/internal"
	"github.com/iksnae/devtrail/internal/export"
	"github.com/spf13/cobra"
)

var (
	exportFormat  string
	exportOut     string
	exportSince   time.Duration
	exportCollect bool
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export events to a file",
	Long: `Export this repository's events since the last commit (or --since) in one of
jsonl, json, yaml or md. Writes to stdout unless --out is given; a directory
for --out gets a timestamped file name.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		exporter, err := export.NewExporter(exportFormat)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		start, end := a.manager.ResolveWindow(ctx)
		if exportSince > 0 {
			start = end - exportSince.Milliseconds()
		}

		var events []internal.Event
		if exportCollect {
			events, err = a.manager.CollectWindow(ctx, start, end)
		} else {
			events, err = a.store.FindByRepo(a.repoRoot, start, end)
		}
		if err != nil {
			return fmt.Errorf("failed to load events: %w", err)
		}

		if exportOut == "" {
			return exporter.Export(events, cmd.OutOrStdout())
		}

		path := exportOut
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			name := fmt.Sprintf("devtrail-%s.%s", time.Now().Format("20060102-150405"), exporter.Extension())
			path = filepath.Join(path, name)
		}
		if err := writeExport(path, exporter, events); err != nil {
			return &internal.ExportError{Format: exportFormat, Path: path, Err: err}
		}
		internal.PrintSuccess(fmt.Sprintf("Exported %d events to %s", len(events), path))
		return nil
	},
}

func writeExport(path string, exporter export.Exporter, events []internal.Event) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := exporter.Export(events, f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "jsonl", "Export format: jsonl, json, yaml, md")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output file or directory (default: stdout)")
	exportCmd.Flags().DurationVar(&exportSince, "since", 0, "Export this far back instead of since the last commit")
	exportCmd.Flags().BoolVar(&exportCollect, "collect", false, "Collect before exporting")
}
