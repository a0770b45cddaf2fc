package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/internal/output"
	"github.com/Aman-CERP/amanrag/internal/search"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit     int
	threshold *float64
	policy    string
	mode      string
	format    string
	noExpand  bool
	bm25Only  bool
}

func newSearchCmd() *cobra.Command {
	var (
		opts      searchOptions
		threshold float64
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the corpus",
		Long: `Search the corpus with hybrid retrieval.

Every query is searched as written and once per synonym substitution;
a document keeps the best fused score any variant gave it, and
match count records how many variants found it.

Examples:
  amanrag search "小红书营销"
  amanrag search "李宏毅 机器学习" --limit 5
  amanrag search "RED 推广" --policy rrf --format json
  amanrag search "营销" --bm25-only`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("threshold") {
				opts.threshold = search.Float(threshold)
			}
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (default from search.default_top_k)")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "Minimum fused score (default from search.similarity_threshold)")
	cmd.Flags().StringVar(&opts.policy, "policy", "", "Fusion policy: weighted, rrf")
	cmd.Flags().StringVar(&opts.mode, "mode", "", "Force a path: vector, bm25, hybrid, multi_path_hybrid")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.noExpand, "no-expand", false, "Search the query only, without synonym variants")
	cmd.Flags().BoolVar(&opts.bm25Only, "bm25-only", false, "Use keyword search only")
	cmd.MarkFlagsMutuallyExclusive("mode", "bm25-only")

	return cmd
}

// request builds the engine request from flags.
func (o searchOptions) request(query string) (search.Request, error) {
	req := search.Request{Query: query, TopK: o.limit, Threshold: o.threshold}
	if o.policy != "" {
		p, err := search.ParsePolicy(o.policy)
		if err != nil {
			return search.Request{}, err
		}
		req.Policy = p
	}
	if o.mode != "" {
		req.Mode = search.Method(strings.ToLower(o.mode))
	}
	if o.bm25Only {
		req.Mode = search.MethodBM25
	}
	if o.noExpand {
		req.ExpandQuery = search.Bool(false)
	}
	return req, nil
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	format, err := output.ParseFormat(opts.format)
	if err != nil {
		return err
	}
	req, err := opts.request(query)
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
		return reportError("search", err)
	}
	defer func() { _ = a.Close() }()

	if _, err := a.load(ctx); err != nil {
		return reportError("search", err)
	}

	slog.Info("search_started", slog.String("query", query), slog.Int("limit", req.TopK))
	resp, err := a.engine.Search(ctx, req)
	if err != nil {
		return reportError("search", err)
	}
	slog.Info("search_completed",
		slog.String("method", string(resp.Method)),
		slog.Int("results", resp.Total),
		slog.Duration("duration", resp.QueryTime))

	return output.New(cmd.OutOrStdout()).Results(query, resp, format)
}
