package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/tasksearch/internal/output"
	"github.com/Aman-CERP/tasksearch/internal/profiling"
	"github.com/Aman-CERP/tasksearch/internal/ui"
	"github.com/Aman-CERP/tasksearch/internal/vectorindex"
)

// reindexReport is the --json shape of reindex.
type reindexReport struct {
	RemovedFiles int   `json:"removed_files,omitempty"`
	Cleared      int   `json:"cleared"`
	Indexed      int   `json:"indexed"`
	Batches      int   `json:"batches"`
	DurationMS   int64 `json:"duration_ms"`
}

func newReindexCmd(root *rootOptions) *cobra.Command {
	var (
		force, plain bool
		profile      profiling.Config
	)

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the vector index from the task store",
		Long: `Reindex clears the vector index and embeds every task again.

Use --force after changing the embedding model: for the hnsw backend it
deletes the collection files so they are recreated with the new
dimension instead of failing to open.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := output.New(cmd.OutOrStdout())

			vcfg := vectorConfig(root.cfg)
			removed := 0
			if force && strings.ToLower(vcfg.Backend) != vectorindex.BackendQdrant {
				var err error
				if removed, err = removeHNSWFiles(vcfg); err != nil {
					return err
				}
				if removed > 0 && !root.jsonOutput {
					out.Status("🗑️", "Removed existing index files")
				}
			}

			var renderer ui.Renderer
			opts := appOptions{}
			if !root.jsonOutput {
				renderer = ui.NewRenderer(ui.Config{Output: cmd.OutOrStdout(), ForcePlain: plain})
				opts.progress = renderer.Update
			}

			a, err := root.open(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			cleared, err := a.pipeline.Reset(ctx)
			if err != nil {
				return err
			}
			all, err := a.store.All(ctx)
			if err != nil {
				return err
			}
			if len(all) == 0 {
				if root.jsonOutput {
					return out.JSON(reindexReport{RemovedFiles: removed, Cleared: cleared})
				}
				out.Status("ℹ️", "No tasks to index")
				return nil
			}

			if renderer != nil {
				if err := renderer.Start(ctx); err != nil {
					return err
				}
				defer func() { _ = renderer.Stop() }()
			}
			var prof *profiling.Session
			if profile.Enabled() {
				if prof, err = profiling.Start(profile); err != nil {
					return err
				}
			}
			res, err := a.pipeline.IndexAll(ctx, all)
			if prof != nil {
				if perr := prof.Stop(); perr != nil {
					out.Warningf("profile incomplete: %v", perr)
				}
			}
			if err != nil {
				return err
			}

			if root.jsonOutput {
				return out.JSON(reindexReport{
					RemovedFiles: removed,
					Cleared:      cleared,
					Indexed:      res.Indexed,
					Batches:      res.Batches,
					DurationMS:   res.Duration.Milliseconds(),
				})
			}
			info := a.index.Stats()
			renderer.Complete(ui.Summary{
				Tasks:      res.Indexed,
				Batches:    res.Batches,
				Cleared:    cleared,
				Duration:   res.Duration,
				Backend:    info.Backend,
				Model:      a.embedder.ModelName(),
				Dimensions: info.Dimensions,
			})
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Recreate the index (required after a model change)")
	cmd.Flags().BoolVar(&plain, "plain", false, "Print progress lines instead of the interactive view")
	cmd.Flags().StringVar(&profile.CPUPath, "cpuprofile", "", "Write a CPU profile of the rebuild to this file")
	cmd.Flags().StringVar(&profile.HeapPath, "memprofile", "", "Write a heap profile after the rebuild to this file")
	cmd.Flags().StringVar(&profile.TracePath, "trace", "", "Write an execution trace of the rebuild to this file")
	return cmd
}
