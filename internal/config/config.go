package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Embedding EmbeddingConfig
	Storage   StorageConfig
	Crawl     CrawlConfig
	Chunking  ChunkingConfig
	Ingest    IngestConfig
	Search    SearchConfig
}

type ServerConfig struct {
	Host              string
	Port              int
	AllowedOrigins    []string
	RateLimitRPS      float64
	RateLimitBurst    int
	WorkerConcurrency int
}

type DatabaseConfig struct {
	URL      string
	MaxConns int
	MinConns int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret string
}

type EmbeddingConfig struct {
	Provider      string // "openai" or "ollama"
	Models        []string
	BatchSize     int
	OpenAIKey     string
	OpenAIBaseURL string
	OllamaURL     string
	MaxRetries    int
}

type StorageConfig struct {
	SupabaseURL string
	SupabaseKey string
	Bucket      string
}

type CrawlConfig struct {
	MaxPages     int
	MaxDepth     int
	Timeout      time.Duration
	FetchTimeout time.Duration
	RatePerSec   float64
	UserAgent    string
	MaxBodyBytes int64
}

type ChunkingConfig struct {
	Size    int
	Overlap int
}

type IngestConfig struct {
	AllowUnembeddedChunks bool
}

type SearchConfig struct {
	SemanticWeight   float64
	Threshold        float64
	RelatedThreshold float64
	// Timeout bounds one search request, query embedding included.
	Timeout time.Duration
}

func Load() (*Config, error) {
	var errs []string
	intVar := func(key string, fallback int) int {
		v, err := getEnvInt(key, fallback)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s: %v", key, err))
		}
		return v
	}
	floatVar := func(key string, fallback float64) float64 {
		v, err := getEnvFloat(key, fallback)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s: %v", key, err))
		}
		return v
	}
	durationVar := func(key string, fallback time.Duration) time.Duration {
		v, err := getEnvDuration(key, fallback)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s: %v", key, err))
		}
		return v
	}
	boolVar := func(key string, fallback bool) bool {
		v, err := getEnvBool(key, fallback)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s: %v", key, err))
		}
		return v
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:              getEnv("SERVER_HOST", "0.0.0.0"),
			Port:              intVar("SERVER_PORT", 8080),
			AllowedOrigins:    getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			RateLimitRPS:      floatVar("RATE_LIMIT_RPS", 20),
			RateLimitBurst:    intVar("RATE_LIMIT_BURST", 40),
			WorkerConcurrency: intVar("WORKER_CONCURRENCY", 4),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			MaxConns: intVar("DB_MAX_CONNS", 20),
			MinConns: intVar("DB_MIN_CONNS", 5),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       intVar("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("SUPABASE_JWT_SECRET", ""),
		},
		Embedding: EmbeddingConfig{
			Provider:      getEnv("EMBEDDING_PROVIDER", "openai"),
			Models:        getEnvList("EMBEDDING_MODELS", []string{"text-embedding-3-small", "text-embedding-ada-002"}),
			BatchSize:     intVar("EMBEDDING_BATCH_SIZE", 100),
			OpenAIKey:     getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
			OllamaURL:     getEnv("OLLAMA_URL", "http://localhost:11434"),
			MaxRetries:    intVar("EMBEDDING_MAX_RETRIES", 2),
		},
		Storage: StorageConfig{
			SupabaseURL: getEnv("SUPABASE_URL", ""),
			SupabaseKey: getEnv("SUPABASE_SERVICE_KEY", ""),
			Bucket:      getEnv("STORAGE_BUCKET", "documents"),
		},
		Crawl: CrawlConfig{
			MaxPages:     intVar("CRAWL_MAX_PAGES", 50),
			MaxDepth:     intVar("CRAWL_MAX_DEPTH", 2),
			Timeout:      durationVar("CRAWL_TIMEOUT", 10*time.Minute),
			FetchTimeout: durationVar("CRAWL_FETCH_TIMEOUT", 15*time.Second),
			RatePerSec:   floatVar("CRAWL_RATE_PER_SEC", 2),
			UserAgent:    getEnv("CRAWL_USER_AGENT", "assistantkb-crawler/1.0"),
			MaxBodyBytes: int64(intVar("CRAWL_MAX_BODY_BYTES", 5<<20)),
		},
		Chunking: ChunkingConfig{
			Size:    intVar("CHUNK_SIZE", 1000),
			Overlap: intVar("CHUNK_OVERLAP", 200),
		},
		Ingest: IngestConfig{
			AllowUnembeddedChunks: boolVar("INGEST_ALLOW_UNEMBEDDED", true),
		},
		Search: SearchConfig{
			SemanticWeight:   floatVar("SEARCH_SEMANTIC_WEIGHT", 0.7),
			Threshold:        floatVar("SEARCH_THRESHOLD", 0.5),
			RelatedThreshold: floatVar("SEARCH_RELATED_THRESHOLD", 0.8),
			Timeout:          durationVar("SEARCH_TIMEOUT", 15*time.Second),
		},
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("load config: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate checks required settings and cross-field constraints.
func (c *Config) Validate() error {
	var missing []string
	if c.Database.URL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.Auth.JWTSecret == "" {
		missing = append(missing, "SUPABASE_JWT_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}

	switch {
	case len(c.Embedding.Models) == 0:
		return fmt.Errorf("EMBEDDING_MODELS must name at least one model")
	case c.Embedding.BatchSize < 1:
		return fmt.Errorf("EMBEDDING_BATCH_SIZE must be positive, got %d", c.Embedding.BatchSize)
	case c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size:
		return fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got %d with size %d", c.Chunking.Overlap, c.Chunking.Size)
	case c.Crawl.MaxPages < 1:
		return fmt.Errorf("CRAWL_MAX_PAGES must be positive, got %d", c.Crawl.MaxPages)
	case c.Crawl.MaxDepth < 0:
		return fmt.Errorf("CRAWL_MAX_DEPTH must not be negative, got %d", c.Crawl.MaxDepth)
	case c.Search.SemanticWeight < 0 || c.Search.SemanticWeight > 1:
		return fmt.Errorf("SEARCH_SEMANTIC_WEIGHT must be in [0, 1], got %g", c.Search.SemanticWeight)
	case c.Search.Threshold < 0 || c.Search.Threshold > 1:
		return fmt.Errorf("SEARCH_THRESHOLD must be in [0, 1], got %g", c.Search.Threshold)
	case c.Search.RelatedThreshold < 0 || c.Search.RelatedThreshold > 1:
		return fmt.Errorf("SEARCH_RELATED_THRESHOLD must be in [0, 1], got %g", c.Search.RelatedThreshold)
	case c.Search.Timeout <= 0:
		return fmt.Errorf("SEARCH_TIMEOUT must be positive, got %s", c.Search.Timeout)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseBool(v)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
