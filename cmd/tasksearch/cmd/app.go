package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Aman-CERP/tasksearch/internal/config"
	"github.com/Aman-CERP/tasksearch/internal/embed"
	"github.com/Aman-CERP/tasksearch/internal/index"
	"github.com/Aman-CERP/tasksearch/internal/search"
	"github.com/Aman-CERP/tasksearch/internal/store"
	"github.com/Aman-CERP/tasksearch/internal/tasks"
	"github.com/Aman-CERP/tasksearch/internal/telemetry"
	"github.com/Aman-CERP/tasksearch/internal/vectorindex"
)

// drainTimeout bounds how long shutdown waits for queued index writes.
const drainTimeout = 30 * time.Second

// app holds the wired components shared by the commands.
type app struct {
	cfg      *config.Config
	store    *store.SQLiteStore
	embedder embed.Embedder
	index    *vectorindex.Lazy
	pipeline *index.Pipeline
	queue    *index.Queue
	service  *tasks.Service
	search   *search.Orchestrator
	checker  *index.ConsistencyChecker
	metrics  *telemetry.Metrics
	queryLog *telemetry.QueryLog
	logger   *slog.Logger
}

// appOptions adjusts wiring per command.
type appOptions struct {
	// async enables the background index queue when the config asks for it.
	async bool

	// progress is passed to the pipeline for bulk rebuilds.
	progress func(done, total int)
}

func vectorConfig(cfg *config.Config) vectorindex.Config {
	return vectorindex.Config{
		Backend:    cfg.VectorIndex.Backend,
		Dir:        cfg.VectorIndex.Dir,
		Collection: cfg.VectorIndex.Collection,
		QdrantAddr: cfg.VectorIndex.QdrantAddr,
		M:          cfg.VectorIndex.HNSWM,
		EfSearch:   cfg.VectorIndex.HNSWEfSearch,
	}
}

// openApp wires store, embedder, index, pipeline and orchestrator. The
// vector index is opened lazily on first use.
func openApp(ctx context.Context, cfg *config.Config, opts appOptions) (_ *app, err error) {
	a := &app{
		cfg:      cfg,
		metrics:  telemetry.NewMetrics(),
		queryLog: telemetry.NewQueryLog(telemetry.QueryLogConfig{}),
		logger:   slog.Default(),
	}
	defer func() {
		if err != nil {
			a.Close(context.Background())
		}
	}()

	if a.store, err = store.Open(cfg.Database.Path); err != nil {
		return nil, err
	}

	if a.embedder, err = embed.NewEmbedder(ctx, embed.Options{
		Provider:      embed.ProviderType(cfg.Embeddings.Provider),
		Model:         cfg.Embeddings.Model,
		OllamaHost:    cfg.Embeddings.OllamaHost,
		OllamaTimeout: cfg.Embeddings.OllamaTimeout,
		OpenAIAPIKey:  cfg.Embeddings.OpenAIAPIKey,
		OpenAIBaseURL: cfg.Embeddings.OpenAIBaseURL,
		CacheSize:     cfg.Embeddings.CacheSize,
	}); err != nil {
		return nil, err
	}
	dims, err := embed.ResolveDimensions(ctx, a.embedder)
	if err != nil {
		return nil, err
	}

	open, err := vectorindex.NewOpener(vectorConfig(cfg), dims)
	if err != nil {
		return nil, err
	}
	a.index = vectorindex.NewLazy(func(ctx context.Context) (vectorindex.Index, error) {
		idx, err := open(ctx)
		a.metrics.VectorIndexInit(err)
		return idx, err
	})

	a.pipeline = index.NewPipeline(a.embedder, a.index, index.Options{
		TextMode:      cfg.Indexing.TextMode,
		FailurePolicy: cfg.Indexing.FailurePolicy,
		BatchSize:     cfg.Indexing.BatchSize,
		Concurrency:   cfg.Indexing.Workers,
		Progress:      opts.progress,
		Metrics:       a.metrics,
		Logger:        a.logger,
	})

	var indexer index.Indexer = a.pipeline
	if opts.async && cfg.Indexing.Async {
		a.queue = index.NewQueue(a.pipeline, index.QueueConfig{
			Workers: cfg.Indexing.Workers,
			Size:    cfg.Indexing.QueueSize,
			Metrics: a.metrics,
		})
		indexer = a.queue
	}
	a.service = tasks.NewService(a.store, indexer, a.logger)

	if a.search, err = search.NewOrchestrator(a.embedder, a.index, a.store,
		search.WithThreshold(cfg.Search.DistanceThreshold),
		search.WithDefaultTopK(cfg.Search.TopK),
		search.WithMetrics(a.metrics),
		search.WithQueryLog(a.queryLog),
		search.WithLogger(a.logger),
	); err != nil {
		return nil, err
	}
	a.checker = index.NewConsistencyChecker(a.store, a.index, a.pipeline)
	return a, nil
}

// lag reports the async backlog, or zero without a queue.
func (a *app) lag() int {
	if a.queue == nil {
		return 0
	}
	return a.queue.Lag()
}

// Close drains the queue and releases everything openApp created.
func (a *app) Close(ctx context.Context) {
	var errs []error
	if a.queue != nil {
		drainCtx, cancel := context.WithTimeout(ctx, drainTimeout)
		errs = append(errs, a.queue.Close(drainCtx))
		cancel()
	}
	if a.index != nil {
		errs = append(errs, a.index.Close())
	}
	if a.embedder != nil {
		errs = append(errs, a.embedder.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("shutdown_incomplete", slog.String("error", err.Error()))
	}
}

// removeHNSWFiles deletes the on-disk collection so it is recreated with
// the current embedder's dimension.
func removeHNSWFiles(cfg vectorindex.Config) (int, error) {
	removed := 0
	path := vectorindex.HNSWPath(cfg)
	for _, p := range []string{path, path + ".meta"} {
		err := os.Remove(p)
		switch {
		case err == nil:
			removed++
		case !errors.Is(err, os.ErrNotExist):
			return removed, fmt.Errorf("remove %s: %w", p, err)
		}
	}
	return removed, nil
}
