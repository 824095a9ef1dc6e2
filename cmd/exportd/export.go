package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"cohortline/exportd/pkg/cli"
	"cohortline/exportd/pkg/config"
	"cohortline/exportd/pkg/export/engine"
	"cohortline/exportd/pkg/export/request"
)

var exportFlags struct {
	request requestFlags
	out     string
	single  bool
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Run an export synchronously",
	Long: `Run an export in the foreground and write the result locally.

The request is the default parameters, overlaid by the scope's profile, overlaid
by --params-file and --param values. By default the result is a zip archive;
--single writes the one rendered file when the request collapses to a single
output unit.

Examples:
  # Per-day CSV export of one deployment
  exportd export --deployment d1 -p view=DAY -p format=CSV --out d1.zip

  # De-identified export of an organization
  exportd export --organization org1 -p deIdentified=true --out org1.zip

  # One JSON document for a flat single-file request
  exportd export --deployment d1 -p view=USER -p layer=FLAT -p quantity=SINGLE --single --out out.json`,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportFlags.request.register(exportCmd, true)
	exportCmd.Flags().StringVar(&exportFlags.out, "out", "", "output file (default export.zip, or the rendered file name with --single)")
	exportCmd.Flags().BoolVar(&exportFlags.single, "single", false, "write one file instead of an archive")
}

func runExport(cmd *cobra.Command, _ []string) error {
	ctx, cancel := cli.SignalContext(cmd.Context())
	defer cancel()

	in, err := exportFlags.request.input()
	if err != nil {
		return err
	}
	a, err := openEngine(ctx, config.GetConfig())
	if err != nil {
		return cli.NewCommandError("export", err)
	}
	defer a.Close(context.WithoutCancel(ctx))

	if exportFlags.single {
		return exportSingle(ctx, a.engine, in, exportFlags.out)
	}
	return exportArchive(ctx, a.engine, in, exportFlags.out)
}

func exportSingle(ctx context.Context, eng *engine.Engine, in request.Input, out string) error {
	file, err := eng.SingleFile(ctx, in)
	if err != nil {
		return cli.NewCommandError("export", err)
	}
	if out == "" {
		out = filepath.Base(file.Path)
	}
	if err := os.WriteFile(out, file.Content, 0o644); err != nil {
		return cli.NewCommandError("export", err)
	}
	return printResult(exportSummary{Path: out, Files: []string{file.Path}})
}

func exportArchive(ctx context.Context, eng *engine.Engine, in request.Input, out string) (err error) {
	res, err := eng.Export(ctx, in)
	if err != nil {
		return cli.NewCommandError("export", err)
	}
	if out == "" {
		out = "export.zip"
	}

	f, err := os.Create(out)
	if err != nil {
		return cli.NewCommandError("export", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cli.NewCommandError("export", cerr)
		}
	}()

	w := bufio.NewWriter(f)
	names, err := eng.WriteArchive(w, res)
	if err != nil {
		return cli.NewCommandError("export", err)
	}
	if err := w.Flush(); err != nil {
		return cli.NewCommandError("export", err)
	}
	return printResult(exportSummary{
		Path:        out,
		Deployments: len(res.DeploymentIDs),
		Records:     res.Records,
		Files:       names,
	})
}

// exportSummary is printed after a synchronous export.
type exportSummary struct {
	Path        string   `json:"path"`
	Deployments int      `json:"deployments,omitempty"`
	Records     int      `json:"records,omitempty"`
	Files       []string `json:"files"`
}

func (s exportSummary) Headers() []string { return []string{"FILE"} }

func (s exportSummary) Rows() [][]string {
	rows := make([][]string, 0, len(s.Files))
	for _, name := range s.Files {
		rows = append(rows, []string{name})
	}
	return rows
}

func (s exportSummary) String() string {
	return fmt.Sprintf("wrote %s (%d files, %d records)", s.Path, len(s.Files), s.Records)
}
