package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config is the process configuration read from the environment
type Config struct {
	Port     string
	AppURL   string
	LogLevel zerolog.Level

	ShopifyAPIKey    string
	ShopifyAPISecret string
	ShopifyScopes    []string
	ShopifyRPS       float64
	ShopifyBurst     int

	EncryptionKey string

	StorageDriver   string
	DataDir         string
	RedisURL        string
	MongoURI        string
	MongoDatabase   string
	RateLimitDriver string
	RateLimitMax    int
	RateLimitWindow time.Duration

	AIProvider     string
	AnthropicKey   string
	AnthropicModel string
	GeminiKey      string
	GeminiModel    string

	CORSOrigins []string
}

const defaultScopes = "read_products,write_products,read_themes,write_themes,read_content,write_content"

// Load reads .env when present, then the environment. logger receives a
// warning when .env is missing.
func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Warn().Msg(".env file not found, using environment")
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function
func FromEnv(getenv func(string) string) (*Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		Port:             get("PORT", "3001"),
		AppURL:           strings.TrimSuffix(get("APP_URL", "http://localhost:3001"), "/"),
		ShopifyAPIKey:    get("SHOPIFY_API_KEY", ""),
		ShopifyAPISecret: get("SHOPIFY_API_SECRET", ""),
		ShopifyScopes:    splitList(get("SHOPIFY_SCOPES", defaultScopes)),
		EncryptionKey:    get("ENCRYPTION_KEY", ""),
		StorageDriver:    strings.ToLower(get("STORAGE_DRIVER", "file")),
		DataDir:          get("DATA_DIR", "./data"),
		RedisURL:         get("REDIS_URL", "redis://localhost:6379/0"),
		MongoURI:         get("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase:    get("MONGODB_DATABASE", "adlign"),
		RateLimitDriver:  strings.ToLower(get("RATE_LIMIT_DRIVER", "memory")),
		AIProvider:       strings.ToLower(get("AI_PROVIDER", "")),
		AnthropicKey:     get("ANTHROPIC_API_KEY", ""),
		AnthropicModel:   get("ANTHROPIC_MODEL", ""),
		GeminiKey:        get("GEMINI_API_KEY", ""),
		GeminiModel:      get("GEMINI_MODEL", ""),
		CORSOrigins:      splitList(get("CORS_ORIGINS", "*")),
	}

	var errs []error
	var err error
	if cfg.LogLevel, err = zerolog.ParseLevel(strings.ToLower(get("LOG_LEVEL", "info"))); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	if cfg.ShopifyRPS, err = strconv.ParseFloat(get("SHOPIFY_RPS", "2"), 64); err != nil || cfg.ShopifyRPS <= 0 {
		errs = append(errs, errors.New("SHOPIFY_RPS must be a positive number"))
	}
	if cfg.ShopifyBurst, err = strconv.Atoi(get("SHOPIFY_BURST", "4")); err != nil || cfg.ShopifyBurst < 1 {
		errs = append(errs, errors.New("SHOPIFY_BURST must be a positive integer"))
	}
	if cfg.RateLimitMax, err = strconv.Atoi(get("RATE_LIMIT_MAX", "100")); err != nil || cfg.RateLimitMax < 1 {
		errs = append(errs, errors.New("RATE_LIMIT_MAX must be a positive integer"))
	}
	if cfg.RateLimitWindow, err = time.ParseDuration(get("RATE_LIMIT_WINDOW", "15m")); err != nil || cfg.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_WINDOW must be a positive duration"))
	}

	if cfg.EncryptionKey == "" {
		errs = append(errs, errors.New("ENCRYPTION_KEY environment variable is required"))
	}
	switch cfg.StorageDriver {
	case "file", "memory", "redis", "mongo":
	default:
		errs = append(errs, fmt.Errorf("STORAGE_DRIVER %q is not one of file, memory, redis, mongo", cfg.StorageDriver))
	}
	switch cfg.RateLimitDriver {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("RATE_LIMIT_DRIVER %q is not one of memory, redis", cfg.RateLimitDriver))
	}
	switch cfg.AIProvider {
	case "", "none", "anthropic", "gemini":
	default:
		errs = append(errs, fmt.Errorf("AI_PROVIDER %q is not one of anthropic, gemini, none", cfg.AIProvider))
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// ResolvedAIProvider picks anthropic, then gemini, by available key when
// AI_PROVIDER is unset. It returns "" when AI enhancement is off.
func (c *Config) ResolvedAIProvider() string {
	switch c.AIProvider {
	case "none":
		return ""
	case "anthropic", "gemini":
		return c.AIProvider
	}
	switch {
	case c.AnthropicKey != "":
		return "anthropic"
	case c.GeminiKey != "":
		return "gemini"
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
