package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/spf13/cobra"

	taskerrors "github.com/Aman-CERP/tasksearch/internal/errors"
	"github.com/Aman-CERP/tasksearch/internal/logging"
	"github.com/Aman-CERP/tasksearch/internal/ui"
)

type logsOptions struct {
	follow  bool
	lines   int
	level   string
	filter  string
	noColor bool
	file    string
}

func newLogsCmd() *cobra.Command {
	opts := logsOptions{}

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View tasksearch logs",
		Long: `View the JSON log written by 'tasksearch --debug' and by the MCP server.

Examples:
  tasksearch logs                  # Show the last 50 lines
  tasksearch logs -f               # Follow new entries
  tasksearch logs --level error    # Only errors
  tasksearch logs --filter reindex # Lines matching a regex`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogs(cmd, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.follow, "follow", "f", false, "Follow log output (like tail -f)")
	cmd.Flags().IntVarP(&opts.lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().StringVar(&opts.level, "level", "", "Minimum level (debug|info|warn|error)")
	cmd.Flags().StringVar(&opts.filter, "filter", "", "Only show lines matching this regex")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	cmd.Flags().StringVar(&opts.file, "file", "", "Log file (default ~/.tasksearch/logs/tasksearch.log)")

	return cmd
}

func runLogs(cmd *cobra.Command, opts logsOptions) error {
	if opts.lines < 1 {
		return taskerrors.ValidationError("--lines must be at least 1", nil)
	}
	if opts.level != "" && !logging.ValidLevel(opts.level) {
		return taskerrors.ValidationError(fmt.Sprintf("invalid level %q", opts.level), nil).
			WithSuggestion("use one of: debug, info, warn, error")
	}

	var pattern *regexp.Regexp
	if opts.filter != "" {
		var err error
		if pattern, err = regexp.Compile(opts.filter); err != nil {
			return taskerrors.ValidationError("invalid filter pattern", err)
		}
	}

	path := opts.file
	if path == "" {
		path = logging.DefaultLogPath()
	}
	if _, err := os.Stat(path); err != nil {
		return taskerrors.New(taskerrors.ErrCodeNotFound, "log file not found", err).
			WithDetail("path", path).
			WithSuggestion("run a command with --debug or start 'tasksearch serve --mcp' to create it")
	}

	out := cmd.OutOrStdout()
	viewer := logging.NewViewer(logging.ViewerConfig{
		Level:   opts.level,
		Pattern: pattern,
		NoColor: opts.noColor || ui.DetectNoColor() || !ui.IsTTY(out),
	}, out)

	if !opts.follow {
		entries, err := viewer.Tail(path, opts.lines)
		if err != nil {
			return err
		}
		viewer.Print(entries)
		return nil
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	cmd.PrintErrf("Following %s (Ctrl+C to stop)\n", path)
	return followLogs(ctx, viewer, path)
}

func followLogs(ctx context.Context, viewer *logging.Viewer, path string) error {
	entries := make(chan logging.Entry, 100)
	errCh := make(chan error, 1)
	go func() {
		errCh <- viewer.Follow(ctx, path, entries)
	}()

	for {
		select {
		case e := <-entries:
			viewer.Print([]logging.Entry{e})
		case err := <-errCh:
			return err
		}
	}
}
