// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
}

// JWTConfig provides JWT validation settings for operator endpoints.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// QueueConfig provides settings for the asynq client and server.
type QueueConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetAsynqMaxRetry() int
}

// WhatsAppConfig provides settings for the WhatsApp Cloud API collaborator.
type WhatsAppConfig interface {
	GetWhatsAppAPIURL() string
	GetWhatsAppAccessToken() string
	GetWhatsAppVerifyToken() string
	GetWhatsAppAppSecret() string
	GetWhatsAppTimeout() time.Duration
}

// ParserConfig provides settings for the optional LLM extraction fallback.
type ParserConfig interface {
	IsAIParserEnabled() bool
	GetAIParserURL() string
	GetAIParserAPIKey() string
	GetAIParserModel() string
}

// WorkerConfig provides settings for processing and the periodic sweeps.
type WorkerConfig interface {
	GetQuoteValidity() time.Duration
	GetReplyWindow() time.Duration
	GetReconcileInterval() time.Duration
	GetReconcileGrace() time.Duration
	GetExpireInterval() time.Duration
}

// RateLimitConfig provides settings for webhook rate limiting.
type RateLimitConfig interface {
	GetWebhookRatePerSecond() float64
	GetWebhookRateBurst() int
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                  string
	HTTPAddr             string
	DatabaseURL          string
	RedisURL             string
	RedisTLSInsecure     bool
	AsynqQueueName       string
	AsynqConcurrency     int
	AsynqMaxRetry        int
	JWTAccessSecret      string
	CORSAllowAll         bool
	CORSOrigins          []string
	WhatsAppAPIURL       string
	WhatsAppAccessToken  string
	WhatsAppVerifyToken  string
	WhatsAppAppSecret    string
	WhatsAppTimeout      time.Duration
	AIParserEnabled      bool
	AIParserURL          string
	AIParserAPIKey       string
	AIParserModel        string
	QuoteValidity        time.Duration
	ReplyWindow          time.Duration
	ReconcileInterval    time.Duration
	ReconcileGrace       time.Duration
	ExpireInterval       time.Duration
	WebhookRatePerSecond float64
	WebhookRateBurst     int
}

// Load reads configuration from the environment, with .env as a fallback
// for local development.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:                  getEnv("ENV", "development"),
		HTTPAddr:             getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		RedisURL:             getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RedisTLSInsecure:     getBoolEnv("REDIS_TLS_INSECURE", false),
		AsynqQueueName:       getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:     getIntEnv("ASYNQ_CONCURRENCY", 10),
		AsynqMaxRetry:        getIntEnv("ASYNQ_MAX_RETRY", 10),
		JWTAccessSecret:      os.Getenv("JWT_ACCESS_SECRET"),
		CORSAllowAll:         getBoolEnv("CORS_ALLOW_ALL", false),
		CORSOrigins:          getListEnv("CORS_ORIGINS"),
		WhatsAppAPIURL:       getEnv("WHATSAPP_API_URL", "https://graph.facebook.com/v18.0"),
		WhatsAppAccessToken:  os.Getenv("WHATSAPP_ACCESS_TOKEN"),
		WhatsAppVerifyToken:  os.Getenv("WHATSAPP_VERIFY_TOKEN"),
		WhatsAppAppSecret:    os.Getenv("WHATSAPP_APP_SECRET"),
		WhatsAppTimeout:      getDurationEnv("WHATSAPP_TIMEOUT", 10*time.Second),
		AIParserEnabled:      getBoolEnv("AI_PARSER_ENABLED", false),
		AIParserURL:          getEnv("AI_PARSER_URL", "https://api.openai.com/v1"),
		AIParserAPIKey:       os.Getenv("AI_PARSER_API_KEY"),
		AIParserModel:        getEnv("AI_PARSER_MODEL", "gpt-4o-mini"),
		QuoteValidity:        getDurationEnv("QUOTE_VALIDITY", 24*time.Hour),
		ReplyWindow:          getDurationEnv("REPLY_WINDOW", 24*time.Hour),
		ReconcileInterval:    getDurationEnv("RECONCILE_INTERVAL", 30*time.Second),
		ReconcileGrace:       getDurationEnv("RECONCILE_GRACE", time.Minute),
		ExpireInterval:       getDurationEnv("EXPIRE_INTERVAL", 5*time.Minute),
		WebhookRatePerSecond: getFloatEnv("WEBHOOK_RATE_PER_SECOND", 20),
		WebhookRateBurst:     getIntEnv("WEBHOOK_RATE_BURST", 40),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

// =============================================================================
// Interface implementations
// =============================================================================

func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }

func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }
func (c *Config) GetAsynqMaxRetry() int     { return c.AsynqMaxRetry }

func (c *Config) GetWhatsAppAPIURL() string        { return c.WhatsAppAPIURL }
func (c *Config) GetWhatsAppAccessToken() string   { return c.WhatsAppAccessToken }
func (c *Config) GetWhatsAppVerifyToken() string   { return c.WhatsAppVerifyToken }
func (c *Config) GetWhatsAppAppSecret() string     { return c.WhatsAppAppSecret }
func (c *Config) GetWhatsAppTimeout() time.Duration { return c.WhatsAppTimeout }

func (c *Config) IsAIParserEnabled() bool   { return c.AIParserEnabled && c.AIParserAPIKey != "" }
func (c *Config) GetAIParserURL() string    { return c.AIParserURL }
func (c *Config) GetAIParserAPIKey() string { return c.AIParserAPIKey }
func (c *Config) GetAIParserModel() string  { return c.AIParserModel }

func (c *Config) GetQuoteValidity() time.Duration     { return c.QuoteValidity }
func (c *Config) GetReplyWindow() time.Duration       { return c.ReplyWindow }
func (c *Config) GetReconcileInterval() time.Duration { return c.ReconcileInterval }
func (c *Config) GetReconcileGrace() time.Duration    { return c.ReconcileGrace }
func (c *Config) GetExpireInterval() time.Duration    { return c.ExpireInterval }

func (c *Config) GetWebhookRatePerSecond() float64 { return c.WebhookRatePerSecond }
func (c *Config) GetWebhookRateBurst() int         { return c.WebhookRateBurst }

// =============================================================================
// Env helpers
// =============================================================================

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getBoolEnv(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func getIntEnv(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getFloatEnv(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getListEnv(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
