/*
Package cli provides helpers shared by the exportd commands.

Output Formatting:

Listing commands print tables by default and JSON on request:

	f, err := cli.NewFormatter(cli.FormatTable)
	if err != nil {
		return err
	}
	return f.FormatTo(os.Stdout, processRows)

Table output requires a value implementing Tabular.

Signal Handling:

Long-running commands stop gracefully on SIGINT/SIGTERM:

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()
*/
package cli
