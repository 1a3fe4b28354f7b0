package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Project config file names, in lookup order.
const (
	ProjectConfigYAML = ".tasksearch.yaml"
	ProjectConfigYML  = ".tasksearch.yml"
	envPrefix         = "TASKSEARCH_"
)

// Indexing failure policies.
const (
	PolicyBestEffort = "best_effort"
	PolicyFatal      = "fatal"
)

// Embedding text modes.
const (
	TextModeUnified = "unified"
	TextModeLegacy  = "legacy"
)

// Config represents the complete tasksearch configuration.
type Config struct {
	Version     int               `yaml:"version" json:"version"`
	Database    DatabaseConfig    `yaml:"database" json:"database"`
	Embeddings  EmbeddingsConfig  `yaml:"embeddings" json:"embeddings"`
	VectorIndex VectorIndexConfig `yaml:"vector_index" json:"vector_index"`
	Search      SearchConfig      `yaml:"search" json:"search"`
	Indexing    IndexingConfig    `yaml:"indexing" json:"indexing"`
	Server      ServerConfig      `yaml:"server" json:"server"`
}

// DatabaseConfig configures the primary store.
type DatabaseConfig struct {
	// Path is the SQLite database file. Empty means in-memory.
	Path string `yaml:"path" json:"path"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is one of static, ollama, openai.
	Provider string `yaml:"provider" json:"provider"`
	Model    string `yaml:"model" json:"model"`

	OllamaHost    string        `yaml:"ollama_host" json:"ollama_host"`
	OllamaTimeout time.Duration `yaml:"ollama_timeout" json:"ollama_timeout"`

	// OpenAIAPIKey falls back to OPENAI_API_KEY when empty.
	OpenAIAPIKey  string `yaml:"openai_api_key" json:"-"`
	OpenAIBaseURL string `yaml:"openai_base_url" json:"openai_base_url"`

	// CacheSize is the number of cached embeddings; 0 disables the cache.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// VectorIndexConfig configures the vector index backend.
type VectorIndexConfig struct {
	// Backend is hnsw (local files) or qdrant (remote).
	Backend    string `yaml:"backend" json:"backend"`
	Dir        string `yaml:"dir" json:"dir"`
	Collection string `yaml:"collection" json:"collection"`

	QdrantAddr string `yaml:"qdrant_addr" json:"qdrant_addr"`

	HNSWM        int `yaml:"hnsw_m" json:"hnsw_m"`
	HNSWEfSearch int `yaml:"hnsw_ef_search" json:"hnsw_ef_search"`
}

// SearchConfig configures the search orchestrator.
type SearchConfig struct {
	TopK int `yaml:"top_k" json:"top_k"`

	// DistanceThreshold keeps hits whose distance, rounded half-to-even,
	// is at most this value.
	DistanceThreshold float64 `yaml:"distance_threshold" json:"distance_threshold"`
}

// IndexingConfig configures the indexing pipeline.
type IndexingConfig struct {
	FailurePolicy string `yaml:"failure_policy" json:"failure_policy"`
	TextMode      string `yaml:"text_mode" json:"text_mode"`
	Async         bool   `yaml:"async" json:"async"`
	Workers       int    `yaml:"workers" json:"workers"`
	QueueSize     int    `yaml:"queue_size" json:"queue_size"`
	BatchSize     int    `yaml:"batch_size" json:"batch_size"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr         string        `yaml:"addr" json:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	LogLevel     string        `yaml:"log_level" json:"log_level"`
}

// NewConfig creates a new Config with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Database: DatabaseConfig{
			Path: filepath.Join(DefaultDataDir(), "tasks.db"),
		},
		Embeddings: EmbeddingsConfig{
			Provider:      "static",
			Model:         "all-minilm",
			OllamaHost:    "http://localhost:11434",
			OllamaTimeout: 30 * time.Second,
			CacheSize:     1000,
		},
		VectorIndex: VectorIndexConfig{
			Backend:      "hnsw",
			Dir:          filepath.Join(DefaultDataDir(), "vectors"),
			Collection:   "tasks",
			QdrantAddr:   "localhost:6334",
			HNSWM:        16,
			HNSWEfSearch: 64,
		},
		Search: SearchConfig{
			TopK:              5,
			DistanceThreshold: 1,
		},
		Indexing: IndexingConfig{
			FailurePolicy: PolicyBestEffort,
			TextMode:      TextModeUnified,
			Async:         false,
			Workers:       2,
			QueueSize:     256,
			BatchSize:     32,
		},
		Server: ServerConfig{
			Addr:         "127.0.0.1:8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			LogLevel:     "info",
		},
	}
}

// DefaultDataDir returns ~/.tasksearch, or a temp dir fallback.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".tasksearch")
	}
	return filepath.Join(home, ".tasksearch")
}

// GetUserConfigPath returns the user configuration file path:
//   - $XDG_CONFIG_HOME/tasksearch/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/tasksearch/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "tasksearch", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "tasksearch", "config.yaml")
	}
	return filepath.Join(home, ".config", "tasksearch", "config.yaml")
}

// Load loads configuration for the given working directory.
// Precedence, lowest first:
//  1. Hardcoded defaults
//  2. User config (~/.config/tasksearch/config.yaml)
//  3. Project config (.tasksearch.yaml in dir)
//  4. .env in dir (never overrides variables already set)
//  5. Environment variables (TASKSEARCH_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userPath := GetUserConfigPath(); fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	if envPath := filepath.Join(dir, ".env"); fileExists(envPath) {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envPath, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadFromFile loads .tasksearch.yaml, falling back to .tasksearch.yml.
func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{ProjectConfigYAML, ProjectConfigYML} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return c.loadYAML(path)
		}
	}
	return nil
}

// loadYAML decodes path on top of the current values. Keys absent from the
// file keep their current value.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies TASKSEARCH_* environment variable overrides.
// Malformed numeric values are ignored and Validate reports the result.
func (c *Config) applyEnvOverrides() {
	setString := func(name string, dst *string) {
		if v := os.Getenv(envPrefix + name); v != "" {
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		if v := os.Getenv(envPrefix + name); v != "" {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				*dst = n
			}
		}
	}
	setDuration := func(name string, dst *time.Duration) {
		if v := os.Getenv(envPrefix + name); v != "" {
			if d, err := parseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	setString("DB_PATH", &c.Database.Path)

	setString("EMBEDDINGS_PROVIDER", &c.Embeddings.Provider)
	setString("EMBEDDINGS_MODEL", &c.Embeddings.Model)
	setString("OLLAMA_HOST", &c.Embeddings.OllamaHost)
	setDuration("OLLAMA_TIMEOUT", &c.Embeddings.OllamaTimeout)
	setString("OPENAI_BASE_URL", &c.Embeddings.OpenAIBaseURL)
	setInt("EMBEDDING_CACHE_SIZE", &c.Embeddings.CacheSize)
	if c.Embeddings.OpenAIAPIKey == "" {
		c.Embeddings.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	}

	setString("VECTOR_BACKEND", &c.VectorIndex.Backend)
	setString("VECTOR_DIR", &c.VectorIndex.Dir)
	setString("COLLECTION", &c.VectorIndex.Collection)
	setString("QDRANT_ADDR", &c.VectorIndex.QdrantAddr)

	setInt("TOP_K", &c.Search.TopK)
	if v := os.Getenv(envPrefix + "DISTANCE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			c.Search.DistanceThreshold = f
		}
	}

	setString("INDEXING_POLICY", &c.Indexing.FailurePolicy)
	setString("TEXT_MODE", &c.Indexing.TextMode)
	if v := os.Getenv(envPrefix + "ASYNC_INDEXING"); v != "" {
		c.Indexing.Async = strings.EqualFold(v, "true") || v == "1"
	}
	setInt("INDEX_WORKERS", &c.Indexing.Workers)

	setString("ADDR", &c.Server.Addr)
	setString("LOG_LEVEL", &c.Server.LogLevel)
}

// parseDuration accepts Go durations ("30s") and bare seconds ("30").
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Embeddings.Provider) {
	case "static", "ollama", "openai":
	default:
		return fmt.Errorf("embeddings.provider must be 'static', 'ollama' or 'openai', got %q", c.Embeddings.Provider)
	}
	if c.Embeddings.CacheSize < 0 {
		return fmt.Errorf("embeddings.cache_size must be non-negative, got %d", c.Embeddings.CacheSize)
	}

	switch strings.ToLower(c.VectorIndex.Backend) {
	case "hnsw":
		if c.VectorIndex.Dir == "" {
			return fmt.Errorf("vector_index.dir is required for the hnsw backend")
		}
	case "qdrant":
		if c.VectorIndex.QdrantAddr == "" {
			return fmt.Errorf("vector_index.qdrant_addr is required for the qdrant backend")
		}
	default:
		return fmt.Errorf("vector_index.backend must be 'hnsw' or 'qdrant', got %q", c.VectorIndex.Backend)
	}
	if c.VectorIndex.Collection == "" {
		return fmt.Errorf("vector_index.collection must not be empty")
	}

	if c.Search.TopK <= 0 {
		return fmt.Errorf("search.top_k must be positive, got %d", c.Search.TopK)
	}
	if c.Search.DistanceThreshold < 0 {
		return fmt.Errorf("search.distance_threshold must be non-negative, got %g", c.Search.DistanceThreshold)
	}

	switch c.Indexing.FailurePolicy {
	case PolicyBestEffort, PolicyFatal:
	default:
		return fmt.Errorf("indexing.failure_policy must be %q or %q, got %q", PolicyBestEffort, PolicyFatal, c.Indexing.FailurePolicy)
	}
	switch c.Indexing.TextMode {
	case TextModeUnified, TextModeLegacy:
	default:
		return fmt.Errorf("indexing.text_mode must be %q or %q, got %q", TextModeUnified, TextModeLegacy, c.Indexing.TextMode)
	}
	if c.Indexing.Workers <= 0 {
		return fmt.Errorf("indexing.workers must be positive, got %d", c.Indexing.Workers)
	}
	if c.Indexing.QueueSize <= 0 {
		return fmt.Errorf("indexing.queue_size must be positive, got %d", c.Indexing.QueueSize)
	}

	switch strings.ToLower(c.Server.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
