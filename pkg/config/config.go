package config

import (
	"errors"
	"os"

	"gopkg.in/yaml.v3"
)

// ServerConfig configures the streaming HTTP surface.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	Mode string `yaml:"mode"` // gin mode: debug or release
}

// DatabaseConfig configures the relational chat store.
type DatabaseConfig struct {
	Path string `yaml:"path"` // sqlite database file
}

// OllamaConfig configures the model-serving endpoint. Temperature is a
// pointer so an explicit zero is distinguishable from an absent field.
type OllamaConfig struct {
	BaseURL     string   `yaml:"base_url"`
	Model       string   `yaml:"model"`
	EmbedModel  string   `yaml:"embed_model"`
	Temperature *float32 `yaml:"temperature"`
	TimeoutSecs int      `yaml:"timeout_secs"`
}

// QdrantConfig contains connection details for the remote vector backend.
type QdrantConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	VectorDim int    `yaml:"vector_dim"`
}

// VectorConfig selects and configures the vector store backend.
type VectorConfig struct {
	Provider   string        `yaml:"provider"` // "local" or "qdrant"
	Path       string        `yaml:"path"`     // local backend storage directory
	Collection string        `yaml:"collection"`
	Qdrant     *QdrantConfig `yaml:"qdrant,omitempty"`
}

// ContextConfig holds every context-assembly tunable. All limits are
// fully specified here; nothing defaults at the call site.
type ContextConfig struct {
	SemanticLimit       int `yaml:"semantic_limit"`        // K: semantic hits per query
	RecencyWindow       int `yaml:"recency_window"`        // R: recent exchanges, conversational mode
	DomainRecencyWindow int `yaml:"domain_recency_window"` // R: recent exchanges, domain-augmented mode
	DomainLimit         int `yaml:"domain_limit"`          // corpus hits, domain-augmented mode
	FallbackWindow      int `yaml:"fallback_window"`       // exchanges fetched when the index is unavailable
}

// IngestConfig configures dataset ingestion.
type IngestConfig struct {
	DatasetPath string `yaml:"dataset_path"`
	ChunkSize   int    `yaml:"chunk_size"`
	BatchSize   int    `yaml:"batch_size"`
}

// AppConfig is the root configuration structure.
type AppConfig struct {
	LogMode  string         `yaml:"log_mode"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Ollama   OllamaConfig   `yaml:"ollama"`
	Vector   VectorConfig   `yaml:"vector"`
	Context  ContextConfig  `yaml:"context"`
	Ingest   IngestConfig   `yaml:"ingest"`
}

// Load reads a config from path. A missing file yields the defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := Default()
			return cfg, nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns the fully populated default configuration.
func Default() *AppConfig {
	cfg := &AppConfig{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *AppConfig) {
	if cfg.LogMode == "" {
		cfg.LogMode = "development"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "release"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "nexora.db"
	}
	if cfg.Ollama.BaseURL == "" {
		cfg.Ollama.BaseURL = envOr("OLLAMA_API_URL", "http://localhost:11434/api")
	}
	if cfg.Ollama.Model == "" {
		cfg.Ollama.Model = envOr("OLLAMA_MODEL", "llama3.2")
	}
	if cfg.Ollama.EmbedModel == "" {
		cfg.Ollama.EmbedModel = "nomic-embed-text"
	}
	if cfg.Ollama.Temperature == nil {
		t := float32(0.7)
		cfg.Ollama.Temperature = &t
	}
	if cfg.Ollama.TimeoutSecs == 0 {
		cfg.Ollama.TimeoutSecs = 300
	}
	if cfg.Vector.Provider == "" {
		cfg.Vector.Provider = "local"
	}
	if cfg.Vector.Path == "" {
		cfg.Vector.Path = "./chroma_db"
	}
	if cfg.Vector.Collection == "" {
		cfg.Vector.Collection = "chat_history"
	}
	if cfg.Vector.Provider == "qdrant" && cfg.Vector.Qdrant == nil {
		cfg.Vector.Qdrant = &QdrantConfig{}
	}
	if cfg.Vector.Qdrant != nil {
		if cfg.Vector.Qdrant.Host == "" {
			cfg.Vector.Qdrant.Host = "localhost"
		}
		if cfg.Vector.Qdrant.Port == 0 {
			cfg.Vector.Qdrant.Port = 6334
		}
		if cfg.Vector.Qdrant.VectorDim == 0 {
			cfg.Vector.Qdrant.VectorDim = 768
		}
	}
	if cfg.Context.SemanticLimit == 0 {
		cfg.Context.SemanticLimit = 5
	}
	if cfg.Context.RecencyWindow == 0 {
		cfg.Context.RecencyWindow = 3
	}
	if cfg.Context.DomainRecencyWindow == 0 {
		cfg.Context.DomainRecencyWindow = 1
	}
	if cfg.Context.DomainLimit == 0 {
		cfg.Context.DomainLimit = 3
	}
	if cfg.Context.FallbackWindow == 0 {
		cfg.Context.FallbackWindow = 10
	}
	if cfg.Ingest.DatasetPath == "" {
		cfg.Ingest.DatasetPath = envOr("RAG_DATASET_PATH", "dataset.csv")
	}
	if cfg.Ingest.ChunkSize == 0 {
		cfg.Ingest.ChunkSize = 300
	}
	if cfg.Ingest.BatchSize == 0 {
		cfg.Ingest.BatchSize = 100
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
