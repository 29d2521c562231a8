// Package config loads configuration from the environment.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Provider identifies an embedding/LLM backend.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderOllama Provider = "ollama"
)

// Config holds all configuration values.
type Config struct {
	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// Embedding provider
	EmbedProvider  Provider
	EmbedModel     string
	EmbedDimension int
	EmbedBatchSize int

	// Chat LLM provider
	LLMProvider Provider
	LLMModel    string

	OpenAIAPIKey string
	OllamaHost   string

	// Retrieval defaults
	RetrievalTopK         int
	RetrievalMinScore     float64
	RetrievalVectorWeight float64
	RetrievalFTSWeight    float64

	// Workers
	CrawlConcurrency int
	EmbedConcurrency int
	JobMaxAttempts   int

	// Crawler
	CrawlerUserAgent string

	// Chat rate limiting per (site, visitor)
	RateLimitRequests int
	RateLimitWindowS  int

	// Server
	ServerPort string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "sitechat"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "main"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		EmbedProvider:  Provider(getEnv("SITECHAT_EMBED_PROVIDER", "openai")),
		EmbedModel:     getEnv("SITECHAT_EMBED_MODEL", "text-embedding-3-small"),
		EmbedDimension: getEnvInt("SITECHAT_EMBED_DIMENSION", 1536),
		EmbedBatchSize: getEnvInt("SITECHAT_EMBED_BATCH_SIZE", 100),

		LLMProvider: Provider(getEnv("SITECHAT_LLM_PROVIDER", "openai")),
		LLMModel:    getEnv("SITECHAT_LLM_MODEL", "gpt-4o-mini"),

		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		OllamaHost:   getEnv("OLLAMA_HOST", "http://localhost:11434"),

		RetrievalTopK:         getEnvInt("RETRIEVAL_TOP_K", 12),
		RetrievalMinScore:     getEnvFloat("RETRIEVAL_MIN_SCORE", 0.3),
		RetrievalVectorWeight: getEnvFloat("RETRIEVAL_VECTOR_WEIGHT", 0.7),
		RetrievalFTSWeight:    getEnvFloat("RETRIEVAL_FTS_WEIGHT", 0.3),

		CrawlConcurrency: getEnvInt("CRAWLER_CONCURRENCY", 2),
		EmbedConcurrency: getEnvInt("EMBEDDING_CONCURRENCY", 5),
		JobMaxAttempts:   getEnvInt("JOB_MAX_ATTEMPTS", 3),

		CrawlerUserAgent: getEnv("CRAWLER_USER_AGENT", "SitechatBot/1.0"),

		RateLimitRequests: getEnvInt("CHAT_RATE_LIMIT", 20),
		RateLimitWindowS:  getEnvInt("CHAT_RATE_LIMIT_WINDOW_S", 60),

		ServerPort: getEnv("SITECHAT_SERVER_PORT", "8585"),

		LogFile:  logFilePath(),
		LogLevel: parseLogLevel(getEnv("SITECHAT_LOG_LEVEL", "INFO")),
	}
}

// logFilePath returns the JSON log destination. Setting
// SITECHAT_LOG_FILE to an empty string disables file logging.
func logFilePath() string {
	if val, ok := os.LookupEnv("SITECHAT_LOG_FILE"); ok {
		return val
	}
	return "/tmp/sitechat.log"
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
