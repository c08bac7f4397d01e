package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the booktrans server.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	AI          AIConfig
	Translation TranslationConfig
	Upload      UploadConfig
	Worker      WorkerConfig
	Render      RenderConfig
	Auth        AuthConfig
}

type ServerConfig struct {
	Port               int
	Env                string
	RateLimitPerMinute int
	// CORSOrigins lists the browser origins allowed to call the API. "*"
	// allows any; an empty list disables CORS headers.
	CORSOrigins []string
}

// DatabaseConfig is optional. With an empty URL jobs live in memory.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrationsDir   string
}

// RedisConfig is optional. With an empty URL the in-process cache is used,
// holding at most MemoryMaxEntries keys.
type RedisConfig struct {
	URL              string
	MemoryMaxEntries int
}

type AIConfig struct {
	Provider          string
	RequestTimeout    time.Duration
	MaxAttempts       int
	RetryBaseDelay    time.Duration
	RetryMaxDelay     time.Duration
	RequestsPerMinute int
	CacheTTL          time.Duration
	Ollama            OllamaConfig
	VLLM              VLLMConfig
	OpenAI            OpenAIConfig
	Anthropic         AnthropicConfig
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

type VLLMConfig struct {
	BaseURL string
	Model   string
}

type OpenAIConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	MaxTokens   int
}

type AnthropicConfig struct {
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int
}

type TranslationConfig struct {
	ChunkSize          int
	ChapterConcurrency int
	MaxChapters        int
	OutputDir          string
}

type UploadConfig struct {
	MaxFileSize int64
}

// WorkerConfig selects how accepted jobs are executed. With
// UseBackgroundTasks a bounded pool runs them, otherwise every job gets its
// own goroutine.
type WorkerConfig struct {
	UseBackgroundTasks bool
	Count              int
	QueueSize          int
}

type RenderConfig struct {
	ChapterLabel string
	PDFFontPath  string
}

// AuthConfig enables bearer token auth when APIKeyHash is set.
type AuthConfig struct {
	APIKeyHash string
}

var validProviders = map[string]bool{
	"ollama":    true,
	"vllm":      true,
	"openai":    true,
	"anthropic": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:               envInt("BOOKTRANS_PORT", 8000),
			Env:                envString("BOOKTRANS_ENV", "development"),
			RateLimitPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 60),
			CORSOrigins:        envList("BACKEND_CORS_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			MigrationsDir:   envString("DATABASE_MIGRATIONS_DIR", "migrations"),
		},
		Redis: RedisConfig{
			URL:              os.Getenv("REDIS_URL"),
			MemoryMaxEntries: envInt("MEMORY_CACHE_MAX_ENTRIES", 10000),
		},
		AI: AIConfig{
			Provider:          envString("AI_PROVIDER", "openai"),
			RequestTimeout:    envDurationSecs("AI_REQUEST_TIMEOUT_SECS", 120*time.Second),
			MaxAttempts:       envInt("AI_MAX_ATTEMPTS", 5),
			RetryBaseDelay:    envDuration("AI_RETRY_BASE_DELAY", time.Second),
			RetryMaxDelay:     envDuration("AI_RETRY_MAX_DELAY", 60*time.Second),
			RequestsPerMinute: envInt("AI_REQUESTS_PER_MINUTE", 0),
			CacheTTL:          envDuration("TRANSLATION_CACHE_TTL", 24*time.Hour),
			Ollama: OllamaConfig{
				BaseURL: envString("OLLAMA_BASE_URL", "http://localhost:11434"),
				Model:   envString("OLLAMA_MODEL", "llama3"),
			},
			VLLM: VLLMConfig{
				BaseURL: envString("VLLM_BASE_URL", "http://localhost:8001"),
				Model:   envString("VLLM_MODEL", ""),
			},
			OpenAI: OpenAIConfig{
				APIKey:      os.Getenv("OPENAI_API_KEY"),
				Model:       envString("OPENAI_MODEL", "gpt-4o-mini"),
				BaseURL:     envString("OPENAI_BASE_URL", "https://api.openai.com/v1"),
				Temperature: envFloat("OPENAI_TEMPERATURE", 0.3),
				MaxTokens:   envInt("OPENAI_MAX_TOKENS", 2000),
			},
			Anthropic: AnthropicConfig{
				APIKey:    os.Getenv("ANTHROPIC_API_KEY"),
				Model:     envString("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
				BaseURL:   envString("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
				MaxTokens: envInt("ANTHROPIC_MAX_TOKENS", 4096),
			},
		},
		Translation: TranslationConfig{
			ChunkSize:          envInt("CHUNK_SIZE", 1500),
			ChapterConcurrency: envInt("CHAPTER_CONCURRENCY", 1),
			MaxChapters:        envInt("MAX_CHAPTERS", 100),
			OutputDir:          envString("OUTPUT_DIR", "output"),
		},
		Upload: UploadConfig{
			MaxFileSize: int64(envInt("MAX_FILE_SIZE", 10*1024*1024)),
		},
		Worker: WorkerConfig{
			UseBackgroundTasks: envBool("USE_BACKGROUND_TASKS", true),
			Count:              envInt("WORKER_COUNT", 4),
			QueueSize:          envInt("WORKER_QUEUE_SIZE", 64),
		},
		Render: RenderConfig{
			ChapterLabel: envString("CHAPTER_LABEL", "Chapter"),
			PDFFontPath:  os.Getenv("PDF_FONT_PATH"),
		},
		Auth: AuthConfig{
			APIKeyHash: os.Getenv("API_KEY_HASH"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("BOOKTRANS_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.URL != "" &&
		!strings.HasPrefix(c.Database.URL, "postgres://") && !strings.HasPrefix(c.Database.URL, "postgresql://") {
		return fmt.Errorf("DATABASE_URL must be a postgres:// URL")
	}

	for _, o := range c.Server.CORSOrigins {
		if o != "*" && !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") {
			return fmt.Errorf("BACKEND_CORS_ORIGINS entries must be * or start with http:// or https://, got %q", o)
		}
	}

	if !validProviders[c.AI.Provider] {
		return fmt.Errorf("AI_PROVIDER must be one of ollama, vllm, openai, anthropic; got %q", c.AI.Provider)
	}
	if c.AI.Provider == "openai" && c.AI.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER is openai")
	}
	if c.AI.Provider == "anthropic" && c.AI.Anthropic.APIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required when AI_PROVIDER is anthropic")
	}
	if c.AI.Provider == "vllm" && c.AI.VLLM.Model == "" {
		return fmt.Errorf("VLLM_MODEL is required when AI_PROVIDER is vllm")
	}
	for name, u := range map[string]string{
		"OLLAMA_BASE_URL":    c.AI.Ollama.BaseURL,
		"VLLM_BASE_URL":      c.AI.VLLM.BaseURL,
		"OPENAI_BASE_URL":    c.AI.OpenAI.BaseURL,
		"ANTHROPIC_BASE_URL": c.AI.Anthropic.BaseURL,
	} {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return fmt.Errorf("%s must start with http:// or https://, got %q", name, u)
		}
	}

	if c.AI.RequestTimeout <= 0 {
		return fmt.Errorf("AI_REQUEST_TIMEOUT_SECS must be positive")
	}
	if c.AI.MaxAttempts < 1 {
		return fmt.Errorf("AI_MAX_ATTEMPTS must be at least 1, got %d", c.AI.MaxAttempts)
	}
	if c.AI.RetryBaseDelay < 0 || c.AI.RetryMaxDelay < c.AI.RetryBaseDelay {
		return fmt.Errorf("AI_RETRY_MAX_DELAY must be at least AI_RETRY_BASE_DELAY")
	}
	if c.AI.RequestsPerMinute < 0 {
		return fmt.Errorf("AI_REQUESTS_PER_MINUTE must not be negative")
	}

	if c.Translation.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.Translation.ChunkSize)
	}
	if c.Translation.ChapterConcurrency < 1 {
		return fmt.Errorf("CHAPTER_CONCURRENCY must be at least 1, got %d", c.Translation.ChapterConcurrency)
	}
	if c.Translation.MaxChapters < 1 {
		return fmt.Errorf("MAX_CHAPTERS must be at least 1, got %d", c.Translation.MaxChapters)
	}
	if c.Translation.OutputDir == "" {
		return fmt.Errorf("OUTPUT_DIR is required")
	}
	if c.Upload.MaxFileSize <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE must be positive")
	}

	if c.Worker.UseBackgroundTasks {
		if c.Worker.Count < 1 {
			return fmt.Errorf("WORKER_COUNT must be at least 1, got %d", c.Worker.Count)
		}
		if c.Worker.QueueSize < 0 {
			return fmt.Errorf("WORKER_QUEUE_SIZE must not be negative")
		}
	}

	if c.Redis.URL == "" && c.Redis.MemoryMaxEntries < 1 {
		return fmt.Errorf("MEMORY_CACHE_MAX_ENTRIES must be at least 1, got %d", c.Redis.MemoryMaxEntries)
	}

	if c.Auth.APIKeyHash != "" && !strings.HasPrefix(c.Auth.APIKeyHash, "$2") {
		return fmt.Errorf("API_KEY_HASH must be a bcrypt hash")
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// envList splits a comma separated value, dropping blanks. Set but blank
// yields an empty list.
func envList(key string, defaultVal []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
