package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cohortline/exportd/pkg/cli"
	"cohortline/exportd/pkg/config"
	"cohortline/exportd/pkg/telemetry/logging"
)

var (
	// Global flags
	cfgFile      string
	logLevel     string
	outputFormat string
)

// skipConfig marks commands that run without loading configuration.
const skipConfig = "skip-config"

var rootCmd = &cobra.Command{
	Use:   "exportd",
	Short: "Clinical-data export engine",
	Long: `exportd exports primitives, users and consent logs of deployments into
JSON and CSV files shaped by view, layer, quantity and format options.

Exports run synchronously with "exportd export" or in the background through
processes executed by "exportd run".`,
	Version:           Version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return cli.ExitCode(err)
	}
	return cli.ExitOK
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults and EXPORTD_* environment when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output-format", "o", string(cli.FormatTable), "output format: table, json, text")
}

// setup loads configuration and installs the process logger.
func setup(cmd *cobra.Command, _ []string) error {
	if cmd.Annotations[skipConfig] == "true" {
		return nil
	}
	if err := config.Initialize(cfgFile); err != nil {
		return cli.NewConfigError("config", err.Error())
	}
	cfg := config.GetConfig()
	if logLevel != "" {
		cfg.Telemetry.Logging.Level = logLevel
	}
	if _, err := logging.Setup(cfg.Telemetry.Logging, os.Stderr); err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}
	return nil
}

// printResult writes data to stdout in the selected output format.
func printResult(data any) error {
	f, err := cli.NewFormatter(cli.OutputFormat(outputFormat))
	if err != nil {
		return err
	}
	return f.FormatTo(os.Stdout, data)
}
