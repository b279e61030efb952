package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func parseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse <file|gs://bucket/object>",
		Short: "Parse one statement and print its transactions as JSON",
		Long: `Parses a single CSV or PDF statement and writes the JSON array of
transactions to stdout. Logs go to stderr.

With --stats the run statistics are written to stderr as JSON as well.`,
		Args: cobra.ExactArgs(1),
		RunE: runParse,
	}

	cmd.Flags().Bool("stats", false, "write run statistics to stderr")

	return cmd
}

func runParse(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	r, err := newRunner(ctx, cfg)
	if err != nil {
		return err
	}

	res, err := r.parseURI(ctx, args[0])
	if showStats, _ := cmd.Flags().GetBool("stats"); showStats && res.Stats.RunID != "" {
		_ = writeJSON(os.Stderr, res.Stats)
	}
	if err != nil {
		_ = writeJSON(os.Stderr, newFailure(err, nil))
		return fmt.Errorf("parse %s: %w", args[0], err)
	}

	return writeJSON(cmd.OutOrStdout(), res.Transactions)
}
