package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Storage   StorageConfig   `yaml:"storage"`
	OCR       OCRConfig       `yaml:"ocr"`
	RAG       RAGConfig       `yaml:"rag"`
	EmbedLLM  LLMConfig       `yaml:"embed_llm"`
	LLM       LLMConfig       `yaml:"llm"`
	WebSearch WebSearchConfig `yaml:"web_search"`
	History   HistoryConfig   `yaml:"history"`
}

type ServerConfig struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	GinMode string `yaml:"gin_mode"`
	// upper bound for a single question turn, seconds
	TurnTimeout int `yaml:"turn_timeout"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

type StorageConfig struct {
	DataDir string      `yaml:"data_dir"`
	Backend string      `yaml:"backend"`
	MinIO   MinIOConfig `yaml:"minio"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type OCRConfig struct {
	Languages    []string `yaml:"languages"`
	DPI          int      `yaml:"dpi"`
	Workers      int      `yaml:"workers"`
	PdftoppmPath string   `yaml:"pdftoppm_path"`
}

type RAGConfig struct {
	ChunkSize      int    `yaml:"chunk_size"`
	ChunkOverlap   int    `yaml:"chunk_overlap"`
	TopK           int    `yaml:"top_k"`
	IndexDir       string `yaml:"index_dir"`
	CollectionName string `yaml:"collection_name"`
	Compress       bool   `yaml:"compress"`
	EncryptionKey  string `yaml:"encryption_key"`
	EmbedBatchSize int    `yaml:"embed_batch_size"`
}

type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	BaseURL     string  `yaml:"base_url"`
	Key         string  `yaml:"key"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	Label       string  `yaml:"label"`
	StripThink  bool    `yaml:"strip_think"`
}

type WebSearchConfig struct {
	BaseURL        string   `yaml:"base_url"`
	APIKey         string   `yaml:"api_key"`
	MaxResults     int      `yaml:"max_results"`
	ExcludeDomains []string `yaml:"exclude_domains"`
	Timeout        int      `yaml:"timeout"`
}

type HistoryConfig struct {
	Backend  string         `yaml:"backend"`
	Redis    RedisConfig    `yaml:"redis"`
	Database DatabaseConfig `yaml:"database"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type DatabaseConfig struct {
	// pgdriver (default) or pq
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	Debug  bool   `yaml:"debug"`
}

// LoadConfig reads the YAML file at path on top of the defaults. A missing
// file is not an error; environment overrides are applied last.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	overrideByEnv(cfg)
	cfg.applyFallbacks()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8000,
			GinMode:     "release",
			TurnTimeout: 120,
		},
		Log: LogConfig{Level: "info", Console: true},
		Storage: StorageConfig{
			DataDir: "./pdf_output",
			Backend: "local",
			MinIO:   MinIOConfig{Bucket: "ocr-rag"},
		},
		OCR: OCRConfig{
			Languages:    []string{"eng"},
			DPI:          150,
			Workers:      4,
			PdftoppmPath: "pdftoppm",
		},
		RAG: RAGConfig{
			ChunkSize:      600,
			ChunkOverlap:   200,
			TopK:           4,
			IndexDir:       "./faiss_index",
			CollectionName: "ocr_chunks",
			EmbedBatchSize: 32,
		},
		EmbedLLM: LLMConfig{
			Provider: "ollama",
			BaseURL:  "http://localhost:11434",
			Model:    "nomic-embed-text",
		},
		LLM: LLMConfig{
			Provider:    "ollama",
			BaseURL:     "http://localhost:11434",
			Model:       "llama3.1",
			Temperature: 0.3,
		},
		WebSearch: WebSearchConfig{
			BaseURL:        "https://api.tavily.com",
			MaxResults:     3,
			ExcludeDomains: []string{"https://en.wikipedia.org/wiki/"},
			Timeout:        30,
		},
		History: HistoryConfig{
			Backend:  "file",
			Redis:    RedisConfig{Addr: "127.0.0.1:6379", KeyPrefix: "ocr-rag:history:"},
			Database: DatabaseConfig{Driver: "pgdriver"},
		},
	}
}

// HTTPAddr is the listen address for the API server.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) applyFallbacks() {
	if c.RAG.ChunkSize <= 0 {
		c.RAG.ChunkSize = 600
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		c.RAG.ChunkOverlap = c.RAG.ChunkSize / 3
	}
	if c.RAG.TopK <= 0 {
		c.RAG.TopK = 4
	}
	if c.OCR.Workers <= 0 {
		c.OCR.Workers = 1
	}
	if c.LLM.Label == "" {
		c.LLM.Label = fmt.Sprintf("%s/%s", c.LLM.Provider, c.LLM.Model)
	}
	if c.WebSearch.MaxResults <= 0 {
		c.WebSearch.MaxResults = 3
	}
}

// validate rejects an index dir that overlaps the data dir: both hold one
// subdirectory per session, and dropping an index removes its whole directory.
func (c *Config) validate() error {
	data, err := filepath.Abs(c.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("invalid data dir %q: %w", c.Storage.DataDir, err)
	}
	index, err := filepath.Abs(c.RAG.IndexDir)
	if err != nil {
		return fmt.Errorf("invalid index dir %q: %w", c.RAG.IndexDir, err)
	}
	if within(data, index) || within(index, data) {
		return fmt.Errorf("index dir %q and data dir %q must not overlap", c.RAG.IndexDir, c.Storage.DataDir)
	}
	return nil
}

// within reports whether path is dir or lies below it.
func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func overrideByEnv(cfg *Config) {
	cfg.Server.Host = getEnv("HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvAsInt("PORT", cfg.Server.Port)
	cfg.Server.GinMode = getEnv("GIN_MODE", cfg.Server.GinMode)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)

	cfg.Storage.DataDir = getEnv("DATA_DIR", cfg.Storage.DataDir)
	cfg.Storage.Backend = getEnv("STORAGE_BACKEND", cfg.Storage.Backend)
	cfg.Storage.MinIO.Endpoint = getEnv("MINIO_ENDPOINT", cfg.Storage.MinIO.Endpoint)
	cfg.Storage.MinIO.AccessKey = getEnv("MINIO_ACCESS_KEY", cfg.Storage.MinIO.AccessKey)
	cfg.Storage.MinIO.SecretKey = getEnv("MINIO_SECRET_KEY", cfg.Storage.MinIO.SecretKey)
	cfg.Storage.MinIO.Bucket = getEnv("MINIO_BUCKET", cfg.Storage.MinIO.Bucket)

	cfg.RAG.IndexDir = getEnv("INDEX_DIR", cfg.RAG.IndexDir)
	cfg.RAG.EncryptionKey = getEnv("INDEX_ENCRYPTION_KEY", cfg.RAG.EncryptionKey)

	cfg.EmbedLLM.Provider = getEnv("EMBED_PROVIDER", cfg.EmbedLLM.Provider)
	cfg.EmbedLLM.BaseURL = getEnv("EMBED_BASE_URL", cfg.EmbedLLM.BaseURL)
	cfg.EmbedLLM.Key = getEnv("EMBED_API_KEY", cfg.EmbedLLM.Key)
	cfg.EmbedLLM.Model = getEnv("EMBED_MODEL", cfg.EmbedLLM.Model)

	cfg.LLM.Provider = getEnv("LLM_PROVIDER", cfg.LLM.Provider)
	cfg.LLM.BaseURL = getEnv("LLM_BASE_URL", cfg.LLM.BaseURL)
	cfg.LLM.Key = getEnv("LLM_API_KEY", cfg.LLM.Key)
	cfg.LLM.Model = getEnv("LLM_MODEL", cfg.LLM.Model)

	cfg.WebSearch.APIKey = getEnv("TAVILY_API_KEY", cfg.WebSearch.APIKey)
	if domains := getEnv("WEB_SEARCH_EXCLUDE_DOMAINS", ""); domains != "" {
		cfg.WebSearch.ExcludeDomains = strings.Split(domains, ",")
	}

	cfg.History.Backend = getEnv("HISTORY_BACKEND", cfg.History.Backend)
	cfg.History.Redis.Addr = getEnv("REDIS_ADDR", cfg.History.Redis.Addr)
	cfg.History.Redis.Password = getEnv("REDIS_PASSWORD", cfg.History.Redis.Password)
	cfg.History.Redis.DB = getEnvAsInt("REDIS_DB", cfg.History.Redis.DB)
	cfg.History.Database.DSN = getEnv("DATABASE_DSN", cfg.History.Database.DSN)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}
