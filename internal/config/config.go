package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port           int              `json:"port"`
	DBPath         string           `json:"db_path"`
	MaxUploadBytes int64            `json:"max_upload_bytes"`
	LogConfig      logger.LogConfig `json:"log_config"`
	FileStore      FileStoreConfig  `json:"file_store"`
	VectorStore    VectorStoreConfig `json:"vector_store"`
	AI             AIConfig         `json:"ai"`
	Ingest         IngestConfig     `json:"ingest"`
	Retrieval      RetrievalConfig  `json:"retrieval"`
	Models         ModelsConfig     `json:"models"`
	Jobs           JobsConfig       `json:"jobs"`
	CORSAllowlist  []string         `json:"cors_allowlist"`
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type VectorStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type ProviderConfig struct {
	Provider string      `json:"provider"`
	Model    string      `json:"model"`
	Args     interface{} `json:"args"`
}

type AIConfig struct {
	Embed      []ProviderConfig `json:"embed"`
	Generate   []ProviderConfig `json:"generate"`
	TimeoutSec int              `json:"timeout_sec"`
	EmbedCache EmbedCacheConfig `json:"embed_cache"`
}

type EmbedCacheConfig struct {
	LRUSize      int  `json:"lru_size"`
	LRUTTLMinute int  `json:"lru_ttl_minute"`
	UseDB        bool `json:"use_db"`
	MaxAgeDays   int  `json:"max_age_days"`
}

type IngestConfig struct {
	MaxFileBytes int64 `json:"max_file_bytes"`
	MaxChunkSize int   `json:"max_chunk_size"`
	ChunkOverlap int   `json:"chunk_overlap"`
	Workers      int   `json:"workers"`
}

type RetrievalConfig struct {
	Candidates      int  `json:"candidates"`
	MaxDocuments    int  `json:"max_documents"`
	MaxContextChars int  `json:"max_context_chars"`
	AdjacentDedup   bool `json:"adjacent_dedup"`
}

type ModelsConfig struct {
	Default string        `json:"default"`
	Entries []ModelConfig `json:"entries"`
}

type ModelConfig struct {
	ID            string `json:"id"`
	ContextWindow int    `json:"context_window"`
	Style         string `json:"style"`
}

type JobsConfig struct {
	ReconcileSpec    string `json:"reconcile_spec"`
	CacheCleanupSpec string `json:"cache_cleanup_spec"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db_path is required")
	}
	if cfg.Port == 0 {
		return nil, fmt.Errorf("port is required")
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = 32 * 1024 * 1024
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.FileStore.Type == "" {
		return nil, fmt.Errorf("file_store.type is required")
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "sqlite"
	}
	if len(cfg.AI.Embed) == 0 {
		return nil, fmt.Errorf("ai.embed is required")
	}
	if len(cfg.AI.Generate) == 0 {
		return nil, fmt.Errorf("ai.generate is required")
	}
	if cfg.AI.TimeoutSec <= 0 {
		cfg.AI.TimeoutSec = 60
	}
	if cfg.Ingest.MaxFileBytes <= 0 {
		cfg.Ingest.MaxFileBytes = 16 * 1024 * 1024
	}
	if cfg.Ingest.MaxChunkSize <= 0 {
		cfg.Ingest.MaxChunkSize = 1000
	}
	if cfg.Ingest.ChunkOverlap < 0 || cfg.Ingest.ChunkOverlap >= cfg.Ingest.MaxChunkSize {
		return nil, fmt.Errorf("ingest.chunk_overlap must be in [0, max_chunk_size)")
	}
	if cfg.Ingest.ChunkOverlap == 0 {
		cfg.Ingest.ChunkOverlap = 200
	}
	if cfg.Ingest.Workers <= 0 {
		cfg.Ingest.Workers = 2
	}
	if cfg.Retrieval.Candidates <= 0 {
		cfg.Retrieval.Candidates = 16
	}
	if cfg.Retrieval.MaxDocuments <= 0 {
		cfg.Retrieval.MaxDocuments = 4
	}
	if cfg.Retrieval.MaxContextChars <= 0 {
		cfg.Retrieval.MaxContextChars = 6000
	}
	if cfg.Models.Default == "" {
		cfg.Models.Default = "llama3"
	}
	if cfg.Jobs.ReconcileSpec == "" {
		cfg.Jobs.ReconcileSpec = "*/10 * * * *"
	}
	if cfg.Jobs.CacheCleanupSpec == "" {
		cfg.Jobs.CacheCleanupSpec = "0 4 * * *"
	}
	if cfg.AI.EmbedCache.LRUSize == 0 {
		cfg.AI.EmbedCache.LRUSize = 10000
	}
	if cfg.AI.EmbedCache.LRUTTLMinute == 0 {
		cfg.AI.EmbedCache.LRUTTLMinute = 120
	}
	if cfg.AI.EmbedCache.MaxAgeDays == 0 {
		cfg.AI.EmbedCache.MaxAgeDays = 30
	}
	return &cfg, nil
}
