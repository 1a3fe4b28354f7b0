// Package cmd provides the CLI commands for tasksearch.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/tasksearch/internal/config"
	taskerrors "github.com/Aman-CERP/tasksearch/internal/errors"
	"github.com/Aman-CERP/tasksearch/internal/logging"
	"github.com/Aman-CERP/tasksearch/pkg/version"
)

// rootOptions are the persistent flags and the state they produce.
type rootOptions struct {
	dir        string
	debug      bool
	jsonOutput bool

	cfg            *config.Config
	loggingCleanup func()
}

// NewRootCmd creates the root command for the tasksearch CLI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "tasksearch",
		Short: "Task tracker with semantic search",
		Long: `tasksearch stores tasks in SQLite and indexes their title and
description as embeddings, so tasks can be found by meaning.

Run 'tasksearch serve' for the HTTP API or 'tasksearch serve --mcp'
to expose search to AI assistants over stdio.`,
		Version:           version.Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: opts.setup,
		PersistentPostRun: func(*cobra.Command, []string) { opts.teardown() },
	}
	cmd.SetVersionTemplate("tasksearch version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&opts.dir, "dir", ".", "Directory holding .tasksearch.yaml and .env")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging to ~/.tasksearch/logs/")
	cmd.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "Print results as JSON")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newSearchCmd(opts))
	cmd.AddCommand(newTaskCmd(opts))
	cmd.AddCommand(newUserCmd(opts))
	cmd.AddCommand(newReindexCmd(opts))
	cmd.AddCommand(newCheckCmd(opts))
	cmd.AddCommand(newDoctorCmd(opts))
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setup loads configuration and installs the default logger. The MCP
// server owns stdout, so it logs to the file only.
func (o *rootOptions) setup(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "version" {
		return nil
	}

	cfg, err := config.Load(o.dir)
	if err != nil {
		return err
	}
	o.cfg = cfg

	logCfg := logging.DefaultConfig()
	logCfg.Level = "warn"
	if cmd.Name() == "serve" {
		logCfg.Level = cfg.Server.LogLevel
		if mcpMode, _ := cmd.Flags().GetBool("mcp"); mcpMode {
			logCfg = logging.StdioConfig(cfg.Server.LogLevel)
		}
	}
	if o.debug {
		logCfg.Level = "debug"
		logCfg.FilePath = logging.DefaultLogPath()
	}

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	o.loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Debug("config_loaded",
		slog.String("db", cfg.Database.Path),
		slog.String("provider", cfg.Embeddings.Provider),
		slog.String("backend", cfg.VectorIndex.Backend))
	return nil
}

func (o *rootOptions) teardown() {
	if o.loggingCleanup != nil {
		o.loggingCleanup()
		o.loggingCleanup = nil
	}
}

// open wires the application for a command.
func (o *rootOptions) open(ctx context.Context, opts appOptions) (*app, error) {
	return openApp(ctx, o.cfg, opts)
}

// Execute runs the root command and prints the error, if any, to stderr.
func Execute() error {
	root := NewRootCmd()
	err := root.Execute()
	if err != nil {
		root.PrintErr(formatError(err))
	}
	return err
}

func formatError(err error) string {
	if _, ok := taskerrors.As(err); ok {
		return taskerrors.FormatForCLI(err)
	}
	return "Error: " + strings.TrimSpace(err.Error()) + "\n"
}
