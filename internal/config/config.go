package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"loan-rag/internal/models"
)

type Config struct {
	Data         DataConfig        `yaml:"data"`
	Chunker      ChunkerConfig     `yaml:"chunker"`
	EmbedLLM     LLMConfig         `yaml:"embed_llm"`
	InferenceLLM LLMConfig         `yaml:"inference_llm"`
	VectorStore  VectorStoreConfig `yaml:"vector_store"`
	Database     DatabaseConfig    `yaml:"database"`
	RAG          RAGConfig         `yaml:"rag"`
	Server       ServerConfig      `yaml:"server"`
	Log          LogConfig         `yaml:"log"`
}

// DataConfig locates the files exchanged between the processing steps.
type DataConfig struct {
	RawRecords    string `yaml:"raw_records"`
	KnowledgeBase string `yaml:"knowledge_base"`
	Manifest      string `yaml:"manifest"`
}

type ChunkerConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// LLMConfig configures either the embedding backend or the answer model.
type LLMConfig struct {
	Provider    string        `yaml:"provider"` // ollama, openai or hash (embeddings only)
	BaseURL     string        `yaml:"base_url"`
	Key         string        `yaml:"key"`
	Model       string        `yaml:"model"`
	Dimension   int           `yaml:"dimension"` // hash embedder only
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
	Retries     int           `yaml:"retries"`
	Backoff     time.Duration `yaml:"retry_backoff"`
	Concurrency int           `yaml:"concurrency"`
}

type VectorStoreConfig struct {
	Type          string        `yaml:"type"` // chromem or pgvector
	Path          string        `yaml:"path"`
	Collection    string        `yaml:"collection"`
	InMemory      bool          `yaml:"in_memory"`
	Compress      bool          `yaml:"compress"`
	EncryptionKey string        `yaml:"encryption_key"`
	Timeout       time.Duration `yaml:"timeout"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	Driver   string `yaml:"driver"` // pgdriver or pq
	Debug    bool   `yaml:"debug"`
}

type RAGConfig struct {
	TopK      int `yaml:"top_k"`
	BatchSize int `yaml:"batch_size"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// LoadConfig reads the YAML file at path. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	applyDefaults(cfg)
	return cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{
		Data: DataConfig{
			RawRecords:    "data/raw/scraped_data.json",
			KnowledgeBase: "data/processed/knowledge_base.txt",
			Manifest:      "data/processed/chunks.json",
		},
		EmbedLLM: LLMConfig{
			Provider: "ollama",
			BaseURL:  "http://localhost:11434",
			Model:    "all-minilm",
		},
		InferenceLLM: LLMConfig{
			Provider: "openai",
			BaseURL:  "https://api.openai.com/v1",
			Model:    "gpt-4",
		},
		VectorStore: VectorStoreConfig{
			Type:       "chromem",
			Path:       "./data/vector_store/chromemdb",
			Collection: "loan_products",
		},
		// set here rather than in applyDefaults so that an explicit 0 disables overlap
		Chunker:  ChunkerConfig{ChunkOverlap: 50},
		Database: DatabaseConfig{Driver: "pgdriver"},
		Server:   ServerConfig{Addr: ":8080"},
		Log:      LogConfig{Level: "info", Pretty: true},
	}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Chunker.ChunkSize <= 0 {
		cfg.Chunker.ChunkSize = 500
	}
	if cfg.Chunker.ChunkOverlap < 0 {
		cfg.Chunker.ChunkOverlap = 0
	}
	if cfg.EmbedLLM.Timeout == 0 {
		cfg.EmbedLLM.Timeout = 30 * time.Second
	}
	if cfg.EmbedLLM.Concurrency <= 0 {
		cfg.EmbedLLM.Concurrency = 4
	}
	if cfg.EmbedLLM.Provider == "hash" && cfg.EmbedLLM.Dimension <= 0 {
		cfg.EmbedLLM.Dimension = 384
	}
	if cfg.InferenceLLM.Temperature == 0 {
		cfg.InferenceLLM.Temperature = 0.2
	}
	if cfg.InferenceLLM.MaxTokens <= 0 {
		cfg.InferenceLLM.MaxTokens = 2000
	}
	if cfg.InferenceLLM.Timeout == 0 {
		cfg.InferenceLLM.Timeout = 60 * time.Second
	}
	if cfg.InferenceLLM.Retries < 0 {
		cfg.InferenceLLM.Retries = 0
	}
	if cfg.InferenceLLM.Backoff <= 0 {
		cfg.InferenceLLM.Backoff = 500 * time.Millisecond
	}
	if cfg.VectorStore.Timeout == 0 {
		cfg.VectorStore.Timeout = 10 * time.Second
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = "loan_products"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "pgdriver"
	}
	if cfg.RAG.TopK <= 0 {
		cfg.RAG.TopK = 3
	}
	if cfg.RAG.BatchSize <= 0 {
		cfg.RAG.BatchSize = 32
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// ApplyEnv overlays the supported environment variables onto cfg.
// lookup is usually os.LookupEnv; it is a parameter so tests stay hermetic.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if v, ok := lookup("OPENAI_API_KEY"); ok && v != "" {
		if cfg.InferenceLLM.Provider == "openai" && cfg.InferenceLLM.Key == "" {
			cfg.InferenceLLM.Key = v
		}
		if cfg.EmbedLLM.Provider == "openai" && cfg.EmbedLLM.Key == "" {
			cfg.EmbedLLM.Key = v
		}
	}
	if v, ok := lookup("EMBEDDING_MODEL"); ok && v != "" {
		cfg.EmbedLLM.Model = v
	}
	if v, ok := lookup("LLM_MODEL"); ok && v != "" {
		cfg.InferenceLLM.Model = v
	}
	if v, ok := lookup("CHROMA_PERSIST_DIR"); ok && v != "" {
		cfg.VectorStore.Path = v
	}
	if v, ok := lookup("DATABASE_URL"); ok && v != "" {
		cfg.Database.URL = v
	}
	if v, ok := lookup("TOP_K_RESULTS"); ok {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			cfg.RAG.TopK = k
		}
	}
}

// Validate checks the settings every command depends on.
func (c *Config) Validate() error {
	switch c.EmbedLLM.Provider {
	case "ollama", "openai":
		if c.EmbedLLM.Model == "" {
			return fmt.Errorf("%w: embed_llm.model is required", models.ErrConfiguration)
		}
	case "hash":
		if c.EmbedLLM.Dimension <= 0 {
			return fmt.Errorf("%w: embed_llm.dimension must be positive", models.ErrConfiguration)
		}
	default:
		return fmt.Errorf("%w: unknown embed_llm.provider %q", models.ErrConfiguration, c.EmbedLLM.Provider)
	}
	switch c.InferenceLLM.Provider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("%w: unknown inference_llm.provider %q", models.ErrConfiguration, c.InferenceLLM.Provider)
	}
	switch c.VectorStore.Type {
	case "chromem":
		if c.VectorStore.Path == "" && !c.VectorStore.InMemory {
			return fmt.Errorf("%w: vector_store.path is required", models.ErrConfiguration)
		}
	case "pgvector":
		if c.Database.URL == "" {
			return fmt.Errorf("%w: database.url is required for pgvector", models.ErrConfiguration)
		}
	default:
		return fmt.Errorf("%w: unknown vector_store.type %q", models.ErrConfiguration, c.VectorStore.Type)
	}
	if c.VectorStore.EncryptionKey != "" && len(c.VectorStore.EncryptionKey) != 32 {
		return fmt.Errorf("%w: vector_store.encryption_key must be 32 bytes, got %d", models.ErrConfiguration, len(c.VectorStore.EncryptionKey))
	}
	if c.Chunker.ChunkOverlap >= c.Chunker.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap must be smaller than chunk_size", models.ErrConfiguration)
	}
	return nil
}
