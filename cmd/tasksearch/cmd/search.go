package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/tasksearch/internal/output"
)

func newSearchCmd(root *rootOptions) *cobra.Command {
	var topK int

	cmd := &cobra.Command{
		Use:   "search [query...]",
		Short: "Find tasks by meaning",
		Long: `Search embeds the query and returns the nearest tasks whose
rounded distance is within search.distance_threshold.

With no query every task is listed.

Examples:
  tasksearch search renew tls certificates
  tasksearch search --top-k 10 "database migration"
  tasksearch search --json flaky tests`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := root.open(ctx, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			query := strings.Join(args, " ")
			results, err := a.search.Search(ctx, query, topK)
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			if root.jsonOutput {
				return out.JSON(results)
			}
			out.SearchResults(query, results)
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Nearest neighbours to fetch (default search.top_k)")
	return cmd
}
