package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/tasksearch/internal/index"
	"github.com/Aman-CERP/tasksearch/internal/output"
)

// checkReport is the --json shape of check.
type checkReport struct {
	*index.CheckResult
	Consistent bool                `json:"consistent"`
	Repair     *index.RepairResult `json:"repair,omitempty"`
}

func newCheckCmd(root *rootOptions) *cobra.Command {
	var repair bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Compare the vector index with the task store",
		Long: `Check lists index records with no task (orphans) and tasks with no
index record (missing). Both are expected after best-effort writes fail
or a process dies between the store commit and the index write.

--repair deletes orphans and indexes missing tasks.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := output.New(cmd.OutOrStdout())

			opts := appOptions{}
			if repair && !root.jsonOutput {
				opts.progress = func(done, total int) { out.Progress(done, total, "Re-indexing missing tasks") }
			}
			a, err := root.open(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			result, err := a.checker.Check(ctx)
			if err != nil {
				return err
			}
			report := checkReport{CheckResult: result, Consistent: result.Consistent()}
			if repair && !report.Consistent {
				if report.Repair, err = a.checker.Repair(ctx, result); err != nil {
					return err
				}
			}

			if root.jsonOutput {
				return out.JSON(report)
			}

			out.Statusf("📊", "%d tasks, %d index records", result.Tasks, result.Records)
			if report.Consistent {
				out.Success("Index is consistent")
				return nil
			}
			for _, issue := range result.Inconsistencies {
				out.Warningf("%s: %s", issue.Type, issue.Details)
			}
			if report.Repair == nil {
				out.Status("💡", "Run with --repair to fix")
				return nil
			}
			out.Successf("Repaired: %d orphans deleted, %d tasks re-indexed",
				report.Repair.Deleted, report.Repair.Reindexed)
			return nil
		},
	}

	cmd.Flags().BoolVar(&repair, "repair", false, "Delete orphan records and index missing tasks")
	return cmd
}
