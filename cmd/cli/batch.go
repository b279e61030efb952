package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dvloznov/statement-parser/internal/source"
)

func batchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch <file|gs://bucket/object>...",
		Short: "Parse many statements into a directory of JSON files",
		Long: `Parses every input concurrently. Each input produces <name>.json in the
output directory, or <name>.error.json with the failure and run
statistics. One failing file does not stop the others; the command exits
non-zero if any file failed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runBatch,
	}

	cmd.Flags().StringP("out", "o", ".", "output directory")
	cmd.Flags().IntP("workers", "w", 4, "files parsed at once")

	return cmd
}

type batchSummary struct {
	mu        sync.Mutex
	succeeded int
	failed    []string
	rows      int
	rejected  int
}

func (s *batchSummary) record(uri string, rows, rejected int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected += rejected
	if err != nil {
		s.failed = append(s.failed, uri)
		return
	}
	s.succeeded++
	s.rows += rows
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	outDir, _ := cmd.Flags().GetString("out")
	workers, _ := cmd.Flags().GetInt("workers")
	if workers < 1 {
		return fmt.Errorf("--workers must be at least 1, got %d", workers)
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	r, err := newRunner(ctx, cfg)
	if err != nil {
		return err
	}

	names := outputNames(args)
	summary := &batchSummary{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, uri := range args {
		uri, name := uri, names[i]
		g.Go(func() error {
			// Per-file failures are recorded, not returned, so the group
			// only stops early on write errors or cancellation.
			return parseOne(gctx, r, summary, uri, filepath.Join(outDir, name))
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	log.Info().
		Int("files", len(args)).
		Int("succeeded", summary.succeeded).
		Int("failed", len(summary.failed)).
		Int("transactions", summary.rows).
		Int("rows_rejected", summary.rejected).
		Str("out", outDir).
		Msg("Batch complete")

	if len(summary.failed) > 0 {
		return fmt.Errorf("%d of %d files failed: %s", len(summary.failed), len(args), strings.Join(summary.failed, ", "))
	}
	return nil
}

func parseOne(ctx context.Context, r *runner, summary *batchSummary, uri, base string) error {
	res, err := r.parseURI(ctx, uri)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if err != nil {
		log.Warn().Err(err).Str("file", uri).Msg("File failed")
		stats := &res.Stats
		if stats.RunID == "" {
			stats = nil
		}
		summary.record(uri, 0, res.Stats.Rejected, err)
		return writeFile(base+".error.json", newFailure(err, stats))
	}

	summary.record(uri, len(res.Transactions), res.Stats.Rejected, nil)
	log.Debug().Str("file", uri).Int("transactions", len(res.Transactions)).Msg("File parsed")
	return writeFile(base+".json", res.Transactions)
}

func writeFile(path string, v interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := writeJSON(f, v); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// outputNames derives an output base name per input, dropping the extension
// and suffixing duplicates so two inputs never share a file.
func outputNames(uris []string) []string {
	seen := make(map[string]int, len(uris))
	out := make([]string, len(uris))
	for i, uri := range uris {
		name := source.Name(uri)
		name = strings.TrimSuffix(name, filepath.Ext(name))
		if name == "" {
			name = "statement"
		}
		seen[name]++
		if n := seen[name]; n > 1 {
			name = fmt.Sprintf("%s-%d", name, n)
		}
		out[i] = name
	}
	return out
}
