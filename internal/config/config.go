package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	LogLevel  slog.Level
	LogFormat string

	DBDriver    string
	DBPath      string
	DatabaseURL string

	VectorBackend    string
	QdrantURL        string
	QdrantAPIKey     string
	QdrantCollection string
	QdrantVectorSize int

	EmbeddingProvider  string
	EmbeddingBaseURL   string
	EmbeddingAPIKey    string
	EmbeddingModelName string
	EmbedBatchSize     int
	EmbedConcurrency   int
	EmbedRPS           float64
	EmbedMaxAttempts   int
	EmbedBackoffBase   time.Duration

	LLMBaseURL   string
	LLMModelName string
	LLMAPIKey    string

	ChunkBudget   int
	ChunkOverlap  int
	IngestWorkers int

	AliasMatch    string
	SearchTimeout time.Duration
	SearchMaxK    int

	APIPort string
	APIKey  string
}

// DSN returns the data source for the configured driver.
func (c *Config) DSN() string {
	if c.DBDriver == "postgres" {
		return c.DatabaseURL
	}
	return c.DBPath
}

// source resolves keys from the environment first, then the optional YAML file.
type source struct {
	file map[string]string
}

func (s source) get(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	if value, ok := s.file[key]; ok && value != "" {
		return value
	}
	return defaultValue
}

// first returns the value of the first key that is set.
func (s source) first(defaultValue string, keys ...string) string {
	for _, key := range keys {
		if value := s.get(key, ""); value != "" {
			return value
		}
	}
	return defaultValue
}

func (s source) getInt(key string, defaultValue int) (int, error) {
	raw := s.get(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	return v, nil
}

func (s source) getFloat(key string, defaultValue float64) (float64, error) {
	raw := s.get(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid number: %w", key, err)
	}
	return v, nil
}

func (s source) getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := s.get(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid duration: %w", key, err)
	}
	return v, nil
}

// Load reads configuration from environment variables and returns a Config struct.
// If a .env file exists in the current directory or a parent, it is loaded first.
// CONFIG_FILE may name a YAML file of KEY: value pairs that supplies values for keys
// the environment leaves unset. Validation fails on the first invalid value.
func Load() (*Config, error) {
	loadDotEnv()

	src := source{}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		file, err := readFile(path)
		if err != nil {
			return nil, err
		}
		src.file = file
	}

	provider := strings.ToLower(src.get("EMBEDDING_PROVIDER", "openai"))
	defaultModel, defaultVectorSize := "text-embedding-3-small", 0
	if provider == "hash" {
		defaultModel, defaultVectorSize = "hash-v1", 256
	}

	cfg := &Config{
		LogFormat:          strings.ToLower(src.get("LOG_FORMAT", "text")),
		DBDriver:           strings.ToLower(src.get("DB_DRIVER", "sqlite3")),
		DBPath:             src.get("DB_PATH", "./data/druginfo.db"),
		DatabaseURL:        src.first("", "DATABASE_URL", "SUPABASE_DB_URL"),
		VectorBackend:      strings.ToLower(src.get("VECTOR_BACKEND", "qdrant")),
		QdrantURL:          src.get("QDRANT_URL", "http://localhost:6333"),
		QdrantAPIKey:       src.get("QDRANT_API_KEY", ""),
		QdrantCollection:   src.get("QDRANT_COLLECTION", "drug_sections"),
		EmbeddingProvider:  provider,
		EmbeddingBaseURL:   src.get("EMBEDDING_BASE_URL", "https://api.openai.com"),
		EmbeddingAPIKey:    src.first("", "EMBEDDING_API_KEY", "OPENAI_API_KEY"),
		EmbeddingModelName: src.get("EMBEDDING_MODEL_NAME", defaultModel),
		LLMBaseURL:         src.get("LLM_BASE_URL", "https://api.openai.com"),
		LLMModelName:       src.get("LLM_MODEL", "gpt-4o-mini"),
		LLMAPIKey:          src.first("", "LLM_API_KEY", "OPENAI_API_KEY"),
		AliasMatch:         strings.ToLower(src.get("ALIAS_MATCH", "substring")),
		APIPort:            src.get("API_PORT", "9000"),
		APIKey:             src.get("API_KEY", ""),
	}

	level, err := parseLevel(src.get("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level

	ints := []struct {
		key  string
		dst  *int
		def  int
		zero bool
	}{
		{"QDRANT_VECTOR_SIZE", &cfg.QdrantVectorSize, defaultVectorSize, false},
		{"EMBED_BATCH_SIZE", &cfg.EmbedBatchSize, 32, false},
		{"EMBED_CONCURRENCY", &cfg.EmbedConcurrency, 4, false},
		{"EMBED_MAX_ATTEMPTS", &cfg.EmbedMaxAttempts, 4, false},
		{"CHUNK_BUDGET", &cfg.ChunkBudget, 1000, false},
		{"CHUNK_OVERLAP", &cfg.ChunkOverlap, 0, true},
		{"INGEST_WORKERS", &cfg.IngestWorkers, 4, false},
		{"SEARCH_MAX_K", &cfg.SearchMaxK, 50, false},
	}
	for _, f := range ints {
		v, err := src.getInt(f.key, f.def)
		if err != nil {
			return nil, err
		}
		if v < 0 || (v == 0 && !f.zero) {
			if f.key == "QDRANT_VECTOR_SIZE" && src.get(f.key, "") == "" {
				return nil, fmt.Errorf("QDRANT_VECTOR_SIZE is required")
			}
			return nil, fmt.Errorf("%s must be greater than 0", f.key)
		}
		*f.dst = v
	}
	if cfg.ChunkOverlap >= cfg.ChunkBudget {
		return nil, fmt.Errorf("CHUNK_OVERLAP must be smaller than CHUNK_BUDGET")
	}

	if cfg.EmbedRPS, err = src.getFloat("EMBED_RPS", 0); err != nil {
		return nil, err
	}
	if cfg.EmbedRPS < 0 {
		return nil, fmt.Errorf("EMBED_RPS must not be negative")
	}
	if cfg.EmbedBackoffBase, err = src.getDuration("EMBED_BACKOFF_BASE", 200*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.SearchTimeout, err = src.getDuration("SEARCH_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.SearchTimeout <= 0 {
		return nil, fmt.Errorf("SEARCH_TIMEOUT must be greater than 0")
	}

	if err := cfg.validateEnums(); err != nil {
		return nil, err
	}

	if cfg.DBDriver == "sqlite3" {
		// Create the data directory for the SQLite file
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	return cfg, nil
}

func (c *Config) validateEnums() error {
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	switch c.DBDriver {
	case "sqlite", "sqlite3":
		c.DBDriver = "sqlite3"
	case "postgres", "postgresql":
		c.DBDriver = "postgres"
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when DB_DRIVER is postgres")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite3 or postgres, got %q", c.DBDriver)
	}
	switch c.VectorBackend {
	case "qdrant", "memory":
	default:
		return fmt.Errorf("VECTOR_BACKEND must be qdrant or memory, got %q", c.VectorBackend)
	}
	switch c.EmbeddingProvider {
	case "openai", "hash":
	default:
		return fmt.Errorf("EMBEDDING_PROVIDER must be openai or hash, got %q", c.EmbeddingProvider)
	}
	switch c.AliasMatch {
	case "substring", "exact":
	default:
		return fmt.Errorf("ALIAS_MATCH must be substring or exact, got %q", c.AliasMatch)
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL must be debug, info, warn or error: %w", err)
	}
	return level, nil
}

// readFile parses a flat YAML mapping of configuration keys.
func readFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		out[strings.ToUpper(k)] = fmt.Sprint(v)
	}
	return out, nil
}

// loadDotEnv loads .env from the working directory or the nearest parent that has one.
// Variables already set are not overridden.
func loadDotEnv() {
	wd, err := os.Getwd()
	if err != nil {
		return
	}
	dir := wd
	for i := 0; i < 5; i++ { // Limit search depth
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}
