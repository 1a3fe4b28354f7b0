package embed

import (
	"context"
	"fmt"
	"sort"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	taskerrors "github.com/Aman-CERP/tasksearch/internal/errors"
)

// DefaultOpenAIModel is the default OpenAI embedding model.
const DefaultOpenAIModel = string(openai.SmallEmbedding3)

// OpenAIConfig configures the OpenAI embedder.
type OpenAIConfig struct {
	APIKey string
	// BaseURL points at an OpenAI-compatible server; empty uses api.openai.com.
	BaseURL string
	Model   string
	// Dimensions requests shortened embeddings from text-embedding-3 models (0 = model default).
	Dimensions int
	BatchSize  int
	Retry      taskerrors.RetryConfig
}

// OpenAIEmbedder embeds text through the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client *openai.Client
	config OpenAIConfig

	mu     sync.RWMutex
	dims   int
	closed bool
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an OpenAI embedder.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, taskerrors.ConfigError("OpenAI API key is not set", nil).
			WithSuggestion("set OPENAI_API_KEY or embeddings.openai_api_key")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Retry.Multiplier == 0 {
		cfg.Retry = taskerrors.DefaultRetryConfig()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(clientCfg),
		config: cfg,
		dims:   cfg.Dimensions,
	}, nil
}

// Embed generates embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := checkText(text); err != nil {
		return nil, err
	}
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in BatchSize chunks.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if e.isClosed() {
		return nil, taskerrors.New(taskerrors.ErrCodeModelUnavailable, "openai embedder is closed", nil)
	}
	for _, t := range texts {
		if err := checkText(t); err != nil {
			return nil, err
		}
	}

	results := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.config.BatchSize {
		end := min(start+e.config.BatchSize, len(texts))
		chunk := texts[start:end]

		resp, err := taskerrors.RetryWithResult(ctx, e.config.Retry, func() (openai.EmbeddingResponse, error) {
			return e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
				Input:      chunk,
				Model:      openai.EmbeddingModel(e.config.Model),
				Dimensions: e.config.Dimensions,
			})
		})
		if err != nil {
			return nil, taskerrors.ModelError("openai embedding failed", err).
				WithDetail("model", e.config.Model)
		}
		if len(resp.Data) != len(chunk) {
			return nil, taskerrors.ModelError(
				fmt.Sprintf("openai returned %d embeddings for %d texts", len(resp.Data), len(chunk)), nil)
		}

		data := resp.Data
		sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })
		vecs := make([][]float32, len(data))
		for i, d := range data {
			vecs[i] = normalizeVector(append([]float32(nil), d.Embedding...))
		}

		if err := e.learnDimensions(vecs); err != nil {
			return nil, err
		}
		results = append(results, vecs...)
	}
	return results, nil
}

// learnDimensions records the dimension of the first response and rejects
// later responses that disagree.
func (e *OpenAIEmbedder) learnDimensions(vecs [][]float32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dims == 0 && len(vecs) > 0 {
		e.dims = len(vecs[0])
	}
	return checkDimensions(vecs, e.dims)
}

// Dimensions returns the embedding dimension (0 until the first call when
// not configured).
func (e *OpenAIEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dims
}

// ModelName returns the model identifier.
func (e *OpenAIEmbedder) ModelName() string {
	return e.config.Model
}

// Available reports whether the embedder is open. It does not call the API.
func (e *OpenAIEmbedder) Available(_ context.Context) bool {
	return !e.isClosed()
}

// Close marks the embedder closed.
func (e *OpenAIEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *OpenAIEmbedder) isClosed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.closed
}
