package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"

	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

type Config struct {
	Port            int
	DatabaseURL     string
	LogLevel        string
	AnthropicAPIKey string
	AnthropicModel  string
	APIToken        string
	DomainsFile     string

	EmbeddingProvider   string
	EmbeddingURL        string
	EmbeddingAPIKey     string
	EmbeddingModel      string
	EmbeddingDimensions int
	EmbeddingRateLimit  float64
	EmbeddingWorkers    int

	ChunkSize           int
	ChunkOverlap        int
	SimilarityThreshold float64
	VectorBackend       string

	SessionTTL        time.Duration
	ExternalTimeout   time.Duration
	GenerationTimeout time.Duration

	NatsURL       string
	NatsToken     string
	SlackBotToken string
	SlackChannel  string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port:            envInt("SCRIBE_PORT", 8760),
		DatabaseURL:     envStr("DATABASE_URL", ""),
		LogLevel:        envStr("LOG_LEVEL", "info"),
		AnthropicAPIKey: envStr("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  envStr("SCRIBE_MODEL", "claude-sonnet-4-20250514"),
		APIToken:        envStr("SCRIBE_API_TOKEN", ""),
		DomainsFile:     envStr("SCRIBE_DOMAINS_FILE", ""),

		EmbeddingProvider:   strings.ToLower(envStr("EMBEDDING_PROVIDER", ProviderOllama)),
		EmbeddingURL:        envStr("EMBEDDING_URL", ""),
		EmbeddingAPIKey:     envStr("EMBEDDING_API_KEY", ""),
		EmbeddingModel:      envStr("EMBEDDING_MODEL", "nomic-embed-text"),
		EmbeddingDimensions: envInt("EMBEDDING_DIMENSIONS", 768),
		EmbeddingRateLimit:  envFloat("EMBEDDING_RATE_LIMIT", 10),
		EmbeddingWorkers:    envInt("EMBEDDING_WORKERS", 4),

		ChunkSize:           envInt("CHUNK_SIZE", 500),
		ChunkOverlap:        envInt("CHUNK_OVERLAP", 50),
		SimilarityThreshold: envFloat("SIMILARITY_THRESHOLD", 0.7),
		VectorBackend:       strings.ToLower(envStr("VECTOR_BACKEND", BackendPostgres)),

		SessionTTL:        envDuration("SESSION_TTL", 12*time.Hour),
		ExternalTimeout:   envDuration("SCRIBE_EXTERNAL_TIMEOUT", 30*time.Second),
		GenerationTimeout: envDuration("SCRIBE_GENERATION_TIMEOUT", 120*time.Second),

		NatsURL:       envStr("NATS_URL", ""),
		NatsToken:     envStr("NATS_TOKEN", ""),
		SlackBotToken: envStr("SLACK_BOT_TOKEN", ""),
		SlackChannel:  envStr("SLACK_CONTINUITY_CHANNEL", ""),
	}
}

// Validate reports every missing or inconsistent setting at once.
func (c Config) Validate() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.AnthropicAPIKey == "" {
		missing = append(missing, "ANTHROPIC_API_KEY")
	}
	if c.EmbeddingURL == "" {
		missing = append(missing, "EMBEDDING_URL")
	}
	if c.EmbeddingProvider == ProviderOpenAI && c.EmbeddingAPIKey == "" {
		missing = append(missing, "EMBEDDING_API_KEY")
	}

	var errs []error
	if len(missing) > 0 {
		errs = append(errs, fmt.Errorf("missing required settings: %s", strings.Join(missing, ", ")))
	}
	if c.EmbeddingProvider != ProviderOllama && c.EmbeddingProvider != ProviderOpenAI {
		errs = append(errs, fmt.Errorf("EMBEDDING_PROVIDER must be %s or %s, got %q", ProviderOllama, ProviderOpenAI, c.EmbeddingProvider))
	}
	if c.VectorBackend != BackendPostgres && c.VectorBackend != BackendMemory {
		errs = append(errs, fmt.Errorf("VECTOR_BACKEND must be %s or %s, got %q", BackendPostgres, BackendMemory, c.VectorBackend))
	}
	if c.EmbeddingDimensions <= 0 {
		errs = append(errs, fmt.Errorf("EMBEDDING_DIMENSIONS must be positive, got %d", c.EmbeddingDimensions))
	}
	return errors.Join(errs...)
}

// LoadDomains reads a writing-domain catalogue: a YAML mapping of domain
// name to system prompt.
//
//	creative: You are a creative writing assistant...
//	poetry: You are a poetry coach...
func LoadDomains(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read domains file: %w", err)
	}
	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse domains file: %w", err)
	}
	domains := make(map[string]string, len(raw))
	for name, prompt := range raw {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || strings.TrimSpace(prompt) == "" {
			return nil, fmt.Errorf("domain %q has an empty name or prompt", name)
		}
		domains[name] = strings.TrimSpace(prompt)
	}
	if len(domains) == 0 {
		return nil, fmt.Errorf("domains file %s defines no domains", path)
	}
	return domains, nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
