package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	taskerrors "github.com/Aman-CERP/tasksearch/internal/errors"
)

// ProviderType represents an embedding provider.
type ProviderType string

const (
	// ProviderStatic uses hash-based embeddings (offline, deterministic).
	ProviderStatic ProviderType = "static"

	// ProviderOllama uses a local Ollama server.
	ProviderOllama ProviderType = "ollama"

	// ProviderOpenAI uses the OpenAI embeddings API or a compatible server.
	ProviderOpenAI ProviderType = "openai"
)

// Options selects and configures an embedder.
type Options struct {
	Provider ProviderType
	Model    string

	OllamaHost    string
	OllamaTimeout time.Duration

	OpenAIAPIKey  string
	OpenAIBaseURL string

	// CacheSize is the LRU size; 0 disables caching.
	CacheSize int
}

// NewEmbedder creates the embedder described by opts. Unlike an automatic
// fallback chain, an explicitly selected provider that is unreachable is an
// error: silently switching models would mix incompatible vectors in one index.
func NewEmbedder(ctx context.Context, opts Options) (Embedder, error) {
	var (
		embedder Embedder
		err      error
	)

	switch ProviderType(strings.ToLower(string(opts.Provider))) {
	case ProviderStatic, "":
		embedder = NewStaticEmbedder()

	case ProviderOllama:
		cfg := DefaultOllamaConfig()
		if opts.OllamaHost != "" {
			cfg.Host = opts.OllamaHost
		}
		if opts.Model != "" {
			cfg.Model = opts.Model
		}
		if opts.OllamaTimeout > 0 {
			cfg.Timeout = opts.OllamaTimeout
		}
		embedder, err = NewOllamaEmbedder(ctx, cfg)

	case ProviderOpenAI:
		model := opts.Model
		if model == "" || model == DefaultOllamaModel {
			model = DefaultOpenAIModel
		}
		embedder, err = NewOpenAIEmbedder(OpenAIConfig{
			APIKey:  opts.OpenAIAPIKey,
			BaseURL: opts.OpenAIBaseURL,
			Model:   model,
		})

	default:
		return nil, taskerrors.ConfigError(fmt.Sprintf("unknown embedding provider %q", opts.Provider), nil)
	}
	if err != nil {
		return nil, err
	}

	slog.Debug("embedder_created",
		slog.String("provider", string(opts.Provider)),
		slog.String("model", embedder.ModelName()),
		slog.Int("dimensions", embedder.Dimensions()))

	if opts.CacheSize > 0 {
		return NewCachedEmbedder(embedder, opts.CacheSize), nil
	}
	return embedder, nil
}

// ResolveDimensions returns e.Dimensions(), embedding a probe text first when
// the provider only learns its dimension from a response.
func ResolveDimensions(ctx context.Context, e Embedder) (int, error) {
	if d := e.Dimensions(); d > 0 {
		return d, nil
	}
	vec, err := e.Embed(ctx, "dimension probe")
	if err != nil {
		return 0, err
	}
	return len(vec), nil
}
