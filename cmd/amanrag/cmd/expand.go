package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/internal/output"
	"github.com/Aman-CERP/amanrag/internal/search"
)

func newExpandCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "expand <query>",
		Short: "Show the synonym variants of a query",
		Long: `Show the variants a multi-path search runs for a query: the query
itself, then one variant per synonym of every canonical phrase it contains.
No corpus is needed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := output.ParseFormat(format)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			table, err := loadSynonyms(cfg)
			if err != nil {
				return reportError("expand", err)
			}
			query := strings.TrimSpace(strings.Join(args, " "))
			variants := search.NewQueryExpander(table).Expand(query)
			return output.New(cmd.OutOrStdout()).Variants(query, variants, f)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")
	return cmd
}
