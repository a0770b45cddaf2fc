package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/internal/output"
	"github.com/Aman-CERP/amanrag/internal/profiling"
)

func newIndexCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Load the corpus and build the BM25 and dense indexes",
		Long: `Load the configured corpus, build both indexes, and report what was
indexed. Documents are validated: every record needs a unique file_id.

The index lives in memory; 'amanrag serve' rebuilds it at start and on
every corpus change when corpus.watch is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIndex(cmd.Context(), cmd, format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")
	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, format string) error {
	f, err := output.ParseFormat(format)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx, cfg, appOptions{})
	if err != nil {
		return reportError("index", err)
	}
	defer func() { _ = a.Close() }()

	start := time.Now()
	n, err := a.load(ctx)
	if err != nil {
		return reportError("index", err)
	}
	elapsed := time.Since(start)
	slog.Info("index_complete", slog.Int("documents", n), slog.Duration("duration", elapsed))

	out := output.New(cmd.OutOrStdout())
	if f == output.FormatJSON {
		return out.JSON(a.engine.Stats())
	}
	out.Successf("Indexed %d documents in %s", n, elapsed.Round(time.Millisecond))
	if err := out.Stats(a.engine.Stats(), f); err != nil {
		return err
	}
	out.Statusf("💾", "Heap in use: %s", profiling.FormatBytes(profiling.HeapInUse()))
	return nil
}
