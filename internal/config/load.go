package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable read by Load.
const EnvPrefix = "KBASE"

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.run_workers", true)

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.pool_size", 0)

	v.SetDefault("auth.token_lifetime_minutes", 60)

	v.SetDefault("llm.model_name", "gemini-2.0-flash")
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("llm.retry_delay_ms", 1000)
	v.SetDefault("llm.context_chunks", 5)

	setQueueDefaults(v, "queue.file_processing", 2, 3, 2000, 100, 500, 0, 0, 0, 1)
	setQueueDefaults(v, "queue.web_scraping", 2, 3, 2000, 100, 500, 0, 0, 0, 2)
	setQueueDefaults(v, "queue.openai_chat", 4, 2, 1000, 1000, 1000, 30000, 50, 60, 5)
	v.SetDefault("queue.poll_interval_ms", 250)
	v.SetDefault("queue.lease_ms", 60000)
	v.SetDefault("queue.reap_interval_ms", 5000)
	v.SetDefault("queue.store_retry_attempts", 3)
	v.SetDefault("queue.store_retry_delay_ms", 200)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime_sec", 300)

	v.SetDefault("cache.customer_ttl_sec", 300)
	v.SetDefault("cache.stats_ttl_sec", 60)
	v.SetDefault("cache.conversation_ttl_sec", 1800)
	v.SetDefault("cache.knowledge_ttl_sec", 300)

	v.SetDefault("ratelimit.customer.max", 60)
	v.SetDefault("ratelimit.customer.window_sec", 60)
	v.SetDefault("ratelimit.ip.max", 100)
	v.SetDefault("ratelimit.ip.window_sec", 60)
	v.SetDefault("ratelimit.webhook.max", 300)
	v.SetDefault("ratelimit.webhook.window_sec", 60)

	v.SetDefault("chat.wait_timeout_sec", 30)
	v.SetDefault("chat.poll_interval_ms", 500)

	v.SetDefault("uploads.dir", "uploads")

	v.SetDefault("scraper.timeout_sec", 15)
	v.SetDefault("scraper.user_agent", "kbase-scraper/1.0")
	v.SetDefault("scraper.requests_per_second", 2.0)
	v.SetDefault("scraper.burst", 4)
	v.SetDefault("scraper.max_body_bytes", 5<<20)
}

func setQueueDefaults(
	v *viper.Viper,
	prefix string,
	workers, attempts, delayMS, keepCompleted, keepFailed, timeoutMS, limitMax, limitWindow, priority int,
) {
	v.SetDefault(prefix+".workers", workers)
	v.SetDefault(prefix+".max_attempts", attempts)
	v.SetDefault(prefix+".backoff_type", "exponential")
	v.SetDefault(prefix+".backoff_delay_ms", delayMS)
	v.SetDefault(prefix+".keep_completed", keepCompleted)
	v.SetDefault(prefix+".keep_failed", keepFailed)
	v.SetDefault(prefix+".timeout_ms", timeoutMS)
	v.SetDefault(prefix+".rate_limit_max", limitMax)
	v.SetDefault(prefix+".rate_limit_window_sec", limitWindow)
	v.SetDefault(prefix+".default_priority", priority)
}

// bindEnvs makes keys without defaults visible to Unmarshal when they are
// only supplied through the environment.
func bindEnvs(v *viper.Viper) {
	for _, key := range []string{
		"database.url",
		"auth.jwt_secret",
		"llm.gemini_api_key",
	} {
		_ = v.BindEnv(key)
	}
}
