package apiclient

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the client level configuration object. Every per-call option is
// layered over these defaults field by field.
type Config struct {
	BaseURL              string            `yaml:"base_url"`
	DefaultHeaders       map[string]string `yaml:"default_headers"`
	DefaultPriority      Priority          `yaml:"default_priority"`
	DefaultCacheEnabled  bool              `yaml:"default_cache_enabled"`
	DefaultCacheTTL      time.Duration     `yaml:"default_cache_ttl"`
	DefaultCacheStrategy CacheStrategy     `yaml:"default_cache_strategy"`
	DefaultRateLimit     *RateLimitPolicy  `yaml:"default_rate_limit"`
	DefaultValidation    *ValidationPolicy `yaml:"default_validation"`
	DefaultRetry         *RetryPolicy      `yaml:"default_retry"`
	// Timeout bounds each physical attempt.
	Timeout       time.Duration `yaml:"timeout"`
	Deduplication bool          `yaml:"deduplication"`
	Interceptors  Interceptors  `yaml:"-"`
}

// DefaultConfig returns the configuration New starts from.
func DefaultConfig() Config {
	retry := DefaultRetryPolicy()
	return Config{
		DefaultPriority:      PriorityNormal,
		DefaultCacheTTL:      DefaultCacheTTL,
		DefaultCacheStrategy: CacheStrategyMemory,
		DefaultRetry:         &retry,
		Timeout:              30 * time.Second,
	}
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML over DefaultConfig. Unknown keys are rejected and
// durations use Go syntax ("500ms", "1m"). An empty document yields the defaults.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// WithConfig applies a configuration object. Options given after it
// override individual fields.
func WithConfig(cfg Config) Option {
	return func(c *Client) {
		c.baseURL = cfg.BaseURL
		c.defaultHeaders = make(map[string]string, len(cfg.DefaultHeaders))
		for k, v := range cfg.DefaultHeaders {
			c.defaultHeaders[k] = v
		}
		if cfg.DefaultPriority != "" {
			c.defaultPriority = cfg.DefaultPriority
		}
		c.defaultCache.Enabled = cfg.DefaultCacheEnabled
		if cfg.DefaultCacheTTL > 0 {
			c.defaultCache.TTL = cfg.DefaultCacheTTL
		}
		if cfg.DefaultCacheStrategy != "" {
			c.defaultCache.Strategy = cfg.DefaultCacheStrategy
		}
		if cfg.DefaultRateLimit != nil {
			rl := *cfg.DefaultRateLimit
			c.defaultRateLimit = &rl
		}
		if cfg.DefaultValidation != nil {
			v := cfg.DefaultValidation.clone()
			c.defaultValidation = &v
		}
		if cfg.DefaultRetry != nil {
			c.defaultRetry = cfg.DefaultRetry.clone()
		}
		if cfg.Timeout > 0 {
			c.timeout = cfg.Timeout
		}
		if cfg.Deduplication {
			WithDeduplication()(c)
		}
		c.interceptors.addRequest(cfg.Interceptors.Request...)
		c.interceptors.addResponse(cfg.Interceptors.Response...)
	}
}
