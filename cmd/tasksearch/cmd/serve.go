package cmd

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/tasksearch/internal/api"
	"github.com/Aman-CERP/tasksearch/internal/mcp"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var (
		mcpMode bool
		addr    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API, or MCP over stdio with --mcp",
		Long: `Serve the task API over HTTP until interrupted.

With --mcp the process speaks the Model Context Protocol on stdin/stdout
instead, exposing search_tasks, get_task and index_status. Nothing else
is written to stdout in that mode; logs go to ~/.tasksearch/logs/.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if addr != "" {
				root.cfg.Server.Addr = addr
			}
			if mcpMode {
				return runMCP(ctx, root)
			}
			return runHTTP(ctx, root)
		},
	}

	cmd.Flags().BoolVar(&mcpMode, "mcp", false, "Serve MCP over stdio instead of HTTP")
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}

func runHTTP(ctx context.Context, root *rootOptions) error {
	a, err := root.open(ctx, appOptions{async: true})
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	srv := api.NewServer(api.Deps{
		Tasks:    a.service,
		Search:   a.search,
		Embedder: a.embedder,
		Index:    a.index,
		Metrics:  a.metrics,
		Logger:   a.logger,
	})
	slog.Info("serve_started",
		slog.String("addr", root.cfg.Server.Addr),
		slog.Bool("async_indexing", a.queue != nil))
	return api.ListenAndServe(ctx, api.HTTPConfig{
		Addr:         root.cfg.Server.Addr,
		ReadTimeout:  root.cfg.Server.ReadTimeout,
		WriteTimeout: root.cfg.Server.WriteTimeout,
	}, srv.Handler())
}

func runMCP(ctx context.Context, root *rootOptions) error {
	a, err := root.open(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	srv, err := mcp.NewServer(mcp.Deps{
		Search:   a.search,
		Tasks:    a.store,
		Embedder: a.embedder,
		Index:    a.index,
		Checker:  a.checker,
		Lag:      a.lag,
		QueryLog: a.queryLog,
		Logger:   a.logger,
	})
	if err != nil {
		return err
	}
	return srv.Serve(ctx, "stdio")
}
