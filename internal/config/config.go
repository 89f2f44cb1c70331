package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"    validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"  validate:"required"`
	Redis     RedisConfig     `mapstructure:"redis"     validate:"required"`
	Auth      AuthConfig      `mapstructure:"auth"      validate:"required"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Queue     QueueConfig     `mapstructure:"queue"     validate:"required"`
	Cache     CacheConfig     `mapstructure:"cache"     validate:"required"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit" validate:"required"`
	Chat      ChatConfig      `mapstructure:"chat"      validate:"required"`
	Uploads   UploadsConfig   `mapstructure:"uploads"   validate:"required"`
	Scraper   ScraperConfig   `mapstructure:"scraper"   validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	// RunWorkers starts the worker runner in the same process as the HTTP server.
	RunWorkers bool `mapstructure:"run_workers"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL                string `mapstructure:"url"                  validate:"required,url"`
	MaxOpenConns       int    `mapstructure:"max_open_conns"       validate:"gt=0"`
	MaxIdleConns       int    `mapstructure:"max_idle_conns"       validate:"gte=0"`
	ConnMaxLifetimeSec int    `mapstructure:"conn_max_lifetime_sec" validate:"gte=0"`
}

// RedisConfig describes the shared key-value store used by the queue, cache and limiter.
type RedisConfig struct {
	URL      string `mapstructure:"url"       validate:"required,url"`
	PoolSize int    `mapstructure:"pool_size" validate:"gte=0"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret"             validate:"required,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"required,gt=0"`
}

// LLMConfig contains all LLM integration related settings.
type LLMConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key"`
	ModelName    string `mapstructure:"model_name"     validate:"required"`
	// MaxRetries is the number of extra attempts for transient API failures.
	MaxRetries   int `mapstructure:"max_retries"    validate:"gte=0,lte=5"`
	RetryDelayMS int `mapstructure:"retry_delay_ms" validate:"gte=0"`
	// ContextChunks is how many knowledge chunks are put in front of a question.
	ContextChunks int `mapstructure:"context_chunks" validate:"gt=0,lte=20"`
}

// QueuePolicyConfig is the per-queue retry, retention and throughput policy.
// Retention counts are at least 1 so the newest terminal job stays readable
// while it is polled, and a non-zero RateLimitMax needs a window.
type QueuePolicyConfig struct {
	Workers            int    `mapstructure:"workers"               validate:"gte=0"`
	MaxAttempts        int    `mapstructure:"max_attempts"          validate:"gt=0"`
	BackoffType        string `mapstructure:"backoff_type"          validate:"oneof=fixed exponential"`
	BackoffDelayMS     int    `mapstructure:"backoff_delay_ms"      validate:"gte=0"`
	KeepCompleted      int    `mapstructure:"keep_completed"        validate:"gt=0"`
	KeepFailed         int    `mapstructure:"keep_failed"           validate:"gt=0"`
	TimeoutMS          int    `mapstructure:"timeout_ms"            validate:"gte=0"`
	RateLimitMax       int    `mapstructure:"rate_limit_max"        validate:"gte=0"`
	RateLimitWindowSec int    `mapstructure:"rate_limit_window_sec" validate:"required_with=RateLimitMax,gte=0"`
	DefaultPriority    int    `mapstructure:"default_priority"`
}

// QueueConfig holds the policies for every logical queue plus shared worker timings.
type QueueConfig struct {
	FileProcessing QueuePolicyConfig `mapstructure:"file_processing" validate:"required"`
	WebScraping    QueuePolicyConfig `mapstructure:"web_scraping"    validate:"required"`
	OpenAIChat     QueuePolicyConfig `mapstructure:"openai_chat"     validate:"required"`

	PollIntervalMS     int `mapstructure:"poll_interval_ms"      validate:"gt=0"`
	LeaseMS            int `mapstructure:"lease_ms"              validate:"gt=0"`
	ReapIntervalMS     int `mapstructure:"reap_interval_ms"      validate:"gt=0"`
	StoreRetryAttempts int `mapstructure:"store_retry_attempts"  validate:"gte=0"`
	StoreRetryDelayMS  int `mapstructure:"store_retry_delay_ms"  validate:"gte=0"`
}

// CacheConfig holds per-entity cache TTLs in seconds.
type CacheConfig struct {
	CustomerTTLSec     int `mapstructure:"customer_ttl_sec"     validate:"gt=0"`
	StatsTTLSec        int `mapstructure:"stats_ttl_sec"        validate:"gt=0"`
	ConversationTTLSec int `mapstructure:"conversation_ttl_sec" validate:"gt=0"`
	KnowledgeTTLSec    int `mapstructure:"knowledge_ttl_sec"    validate:"gt=0"`
}

// LimitConfig is a single fixed-window budget.
type LimitConfig struct {
	Max       int `mapstructure:"max"        validate:"gt=0"`
	WindowSec int `mapstructure:"window_sec" validate:"gt=0"`
}

// RateLimitConfig holds the HTTP throttling budgets.
type RateLimitConfig struct {
	Customer LimitConfig `mapstructure:"customer" validate:"required"`
	IP       LimitConfig `mapstructure:"ip"       validate:"required"`
	Webhook  LimitConfig `mapstructure:"webhook"  validate:"required"`
}

// ChatConfig bounds how long a chat request waits on its job before answering 202.
type ChatConfig struct {
	WaitTimeoutSec int `mapstructure:"wait_timeout_sec" validate:"gt=0,lte=120"`
	PollIntervalMS int `mapstructure:"poll_interval_ms" validate:"gt=0"`
}

// UploadsConfig points at the directory knowledge files are written to before ingestion.
type UploadsConfig struct {
	Dir string `mapstructure:"dir" validate:"required"`
}

// ScraperConfig tunes outbound page fetches.
type ScraperConfig struct {
	TimeoutSec        int     `mapstructure:"timeout_sec"         validate:"gt=0"`
	UserAgent         string  `mapstructure:"user_agent"          validate:"required"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"gt=0"`
	Burst             int     `mapstructure:"burst"               validate:"gt=0"`
	MaxBodyBytes      int64   `mapstructure:"max_body_bytes"      validate:"gt=0"`
}
