package cmd

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/tasksearch/internal/output"
	"github.com/Aman-CERP/tasksearch/internal/preflight"
	"github.com/Aman-CERP/tasksearch/internal/vectorindex"
)

// errChecksFailed makes doctor exit non-zero after printing its report.
var errChecksFailed = errors.New("preflight checks failed")

func newDoctorCmd(root *rootOptions) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that the environment can run tasksearch",
		Long: `Doctor checks disk space and write access for the database and
index directories, the file descriptor limit, the embedding provider and
whether the vector index opens with the provider's dimension.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := root.open(ctx, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			vectorDir := root.cfg.VectorIndex.Dir
			if strings.EqualFold(root.cfg.VectorIndex.Backend, vectorindex.BackendQdrant) {
				vectorDir = ""
			}
			results := preflight.New(preflight.Config{
				DatabasePath: root.cfg.Database.Path,
				VectorDir:    vectorDir,
				Embedder:     a.embedder,
				Index:        a.index,
			}).RunAll(ctx)

			out := output.New(cmd.OutOrStdout())
			if root.jsonOutput {
				if err := out.JSON(map[string]any{
					"status": preflight.SummaryStatus(results),
					"checks": results,
				}); err != nil {
					return err
				}
			} else {
				preflight.PrintResults(cmd.OutOrStdout(), results, verbose)
			}
			if preflight.HasCriticalFailures(results) {
				return errChecksFailed
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show details for each check")
	return cmd
}
