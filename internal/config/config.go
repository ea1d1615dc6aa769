// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (LOCALQA_* runtime override)
//  2. Config file (./config.yaml or /etc/localqa/config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Main configuration categories:
//   - AI: provider selection, chat model, embedder model
//   - Storage: PostgreSQL connection (see storage.go)
//   - Retrieval: top-k and similarity score threshold
//   - Ingestion: chunk sizing and reconciliation scheduler knobs
//   - Policy: answer post-processing behaviour (see policy.go)
//   - Meeting: meeting-room booking integration credentials
//
// Security: sensitive data (passwords, secrets) are never logged; config values
// are masked in MarshalJSON.
//
// Error Handling:
//   - Uses sentinel errors for Go-idiomatic error checking with errors.Is()
//   - Wrap with context using fmt.Errorf("%w: details", ErrXxx)
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidOllamaHost indicates the Ollama host is invalid.
	ErrInvalidOllamaHost = errors.New("invalid Ollama host")

	// ErrInvalidTopK indicates the retrieval top-k is out of range.
	ErrInvalidTopK = errors.New("invalid retrieval top-k")

	// ErrInvalidScoreThreshold indicates the retrieval score threshold is out of range.
	ErrInvalidScoreThreshold = errors.New("invalid score threshold")

	// ErrInvalidChunking indicates the chunk size or overlap is invalid.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrInvalidScheduler indicates the scheduler configuration is invalid.
	ErrInvalidScheduler = errors.New("invalid scheduler configuration")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresPassword indicates the PostgreSQL password is invalid.
	ErrInvalidPostgresPassword = errors.New("invalid PostgreSQL password")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini   = "gemini"
	ProviderOllama   = "ollama"
	ProviderOpenAI   = "openai"
	ProviderGoogleAI = "googleai"
)

// Defaults for the QA pipeline knobs. These mirror the service's historical
// behaviour and apply when a bot or request does not override them.
const (
	// DefaultTopK is the number of documents fetched per similarity search.
	DefaultTopK = 2

	// DefaultScoreThreshold is the cosine distance above which matches are discarded.
	DefaultScoreThreshold = 0.3

	// DefaultMaxTurns is the number of conversation turns carried as memory.
	DefaultMaxTurns = 2

	// DefaultChunkSize is the per-chunk character budget for ingestion.
	DefaultChunkSize = 2500

	// DefaultChunkOverlap is the character overlap between adjacent chunks.
	DefaultChunkOverlap = 5
)

// Reconciliation scheduler defaults.
const (
	// DefaultSchedulerInterval is the delay between reconciliation sweeps.
	DefaultSchedulerInterval = 10 * time.Second

	// DefaultSchedulerRetryLimit is the per-file retry bound. Files at the
	// bound are left alone until an operator intervenes.
	DefaultSchedulerRetryLimit = 3

	// DefaultSchedulerFetchLimit caps how many files one sweep picks up.
	DefaultSchedulerFetchLimit = 5
)

// Config stores application configuration.
// SECURITY: Sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (passwords, API keys, tokens), update MarshalJSON.
type Config struct {
	// AI provider and model configuration
	Provider      string  `mapstructure:"provider" json:"provider"` // "gemini" (default), "ollama", "openai"
	ModelName     string  `mapstructure:"model_name" json:"model_name"`
	EmbedderModel string  `mapstructure:"embedder_model" json:"embedder_model"`
	Temperature   float32 `mapstructure:"temperature" json:"temperature"`
	MaxTokens     int     `mapstructure:"max_tokens" json:"max_tokens"`

	// Ollama configuration (only used when provider is "ollama")
	OllamaHost string `mapstructure:"ollama_host" json:"ollama_host"`

	// LLM client rate limiting (requests per second, with burst)
	LLMRateLimit float64 `mapstructure:"llm_rate_limit" json:"llm_rate_limit"`
	LLMRateBurst int     `mapstructure:"llm_rate_burst" json:"llm_rate_burst"`

	// HTTP server
	HTTPAddr string `mapstructure:"http_addr" json:"http_addr"`

	// Storage configuration (see storage.go for documentation)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Retrieval configuration
	TopK           int     `mapstructure:"top_k" json:"top_k"`
	ScoreThreshold float64 `mapstructure:"score_threshold" json:"score_threshold"`

	// Conversation memory configuration
	MaxTurns int `mapstructure:"max_turns" json:"max_turns"`

	// Ingestion chunking configuration
	ChunkSize    int `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap" json:"chunk_overlap"`

	// Reconciliation scheduler configuration
	SchedulerInterval   time.Duration `mapstructure:"scheduler_interval" json:"scheduler_interval"`
	SchedulerRetryLimit int           `mapstructure:"scheduler_retry_limit" json:"scheduler_retry_limit"`
	SchedulerFetchLimit int           `mapstructure:"scheduler_fetch_limit" json:"scheduler_fetch_limit"`

	// Answer post-processing policy (see policy.go)
	Policy PolicyConfig `mapstructure:"policy" json:"policy"`

	// Meeting-room booking integration (see policy.go)
	Meeting MeetingConfig `mapstructure:"meeting" json:"meeting"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/localqa")

	setDefaults(v)
	bindEnvVariables(v)

	// Read configuration file (if exists)
	if err := v.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{".", "/etc/localqa"},
			"config_name", "config.yaml")
	}

	// Use Unmarshal to automatically map to struct (type-safe)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// Parse DATABASE_URL if set (highest priority for PostgreSQL config)
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	// CRITICAL: Validate immediately (fail-fast)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	// AI defaults
	v.SetDefault("provider", ProviderGemini)
	v.SetDefault("model_name", "gemini-2.5-flash")
	v.SetDefault("embedder_model", "gemini-embedding-001")
	v.SetDefault("temperature", 0.0)
	v.SetDefault("max_tokens", 2048)

	// Ollama defaults
	v.SetDefault("ollama_host", "http://localhost:11434")

	// LLM rate limiting defaults
	v.SetDefault("llm_rate_limit", 5.0)
	v.SetDefault("llm_rate_burst", 10)

	// HTTP server defaults
	v.SetDefault("http_addr", ":8080")

	// PostgreSQL defaults (matching docker-compose.yml)
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "localqa")
	v.SetDefault("postgres_password", "localqa_dev_password")
	v.SetDefault("postgres_db_name", "localqa")
	v.SetDefault("postgres_ssl_mode", "disable")

	// Retrieval defaults
	v.SetDefault("top_k", DefaultTopK)
	v.SetDefault("score_threshold", DefaultScoreThreshold)

	// Memory defaults
	v.SetDefault("max_turns", DefaultMaxTurns)

	// Chunking defaults
	v.SetDefault("chunk_size", DefaultChunkSize)
	v.SetDefault("chunk_overlap", DefaultChunkOverlap)

	// Scheduler defaults
	v.SetDefault("scheduler_interval", DefaultSchedulerInterval)
	v.SetDefault("scheduler_retry_limit", DefaultSchedulerRetryLimit)
	v.SetDefault("scheduler_fetch_limit", DefaultSchedulerFetchLimit)

	// Policy defaults
	v.SetDefault("policy.prepared_answer", true)
	v.SetDefault("policy.public_fallback", true)
	v.SetDefault("policy.shared_history", false)
	v.SetDefault("policy.history_exclude", []string{})

	// Meeting defaults
	v.SetDefault("meeting.room_system", "")
}

// bindEnvVariables binds environment variables.
// Non-secret settings use the LOCALQA_ prefix with dots mapped to underscores.
// Secrets keep their conventional unprefixed names.
func bindEnvVariables(v *viper.Viper) {
	v.SetEnvPrefix("LOCALQA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Helper to panic on unexpected bind errors (hardcoded strings can't fail)
	// If this panics, it's a BUG in our code, not a runtime error
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	// Secrets keep their conventional names
	mustBind("postgres_password", "POSTGRES_PASSWORD")
	mustBind("meeting.app_secret", "MEETING_APP_SECRET")

	// NOTE: GEMINI_API_KEY is read directly by Genkit, not via Viper
	// NOTE: OPENAI_API_KEY is read directly by the Genkit OpenAI plugin, not via Viper
	// Validation checks their presence based on the selected provider in cfg.Validate()
}

// maskedValue is the placeholder for masked sensitive data.
// Using ████████ (full-width blocks U+2588) to avoid substring matching.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Shows first 2 and last 2 characters, masks the rest.
// SECURITY: For secrets <=8 chars, fully masks to prevent substring attacks.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
//
// Sensitive fields masked:
//   - PostgresPassword
//   - Meeting.AppSecret (via MeetingConfig.MarshalJSON)
//
// When adding new sensitive fields, update this method or the nested struct's MarshalJSON.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// FullModelName returns the provider-qualified model name for Genkit.
// Examples: "googleai/gemini-2.5-flash", "ollama/llama3.3", "openai/gpt-4o".
// If ModelName already contains a "/", it is returned as-is.
func (c *Config) FullModelName() string {
	if strings.Contains(c.ModelName, "/") {
		return c.ModelName
	}
	switch c.Provider {
	case ProviderOllama:
		return ProviderOllama + "/" + c.ModelName
	case ProviderOpenAI:
		return ProviderOpenAI + "/" + c.ModelName
	default:
		return ProviderGoogleAI + "/" + c.ModelName
	}
}

// FullEmbedderName returns the provider-qualified embedder name for Genkit.
func (c *Config) FullEmbedderName() string {
	if strings.Contains(c.EmbedderModel, "/") {
		return c.EmbedderModel
	}
	switch c.Provider {
	case ProviderOllama:
		return ProviderOllama + "/" + c.EmbedderModel
	case ProviderOpenAI:
		return ProviderOpenAI + "/" + c.EmbedderModel
	default:
		return ProviderGoogleAI + "/" + c.EmbedderModel
	}
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
