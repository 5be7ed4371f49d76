package client

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"
)

// duration decodes YAML strings like "30s" into a time.Duration.
type duration time.Duration

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = duration(parsed)
	return nil
}

// fileConfig mirrors the YAML client configuration file.
type fileConfig struct {
	BaseURL       string   `yaml:"base_url"`
	Timeout       duration `yaml:"timeout"`
	RefreshBuffer duration `yaml:"refresh_buffer"`
	RateLimit     float64  `yaml:"rate_limit"`
	RateBurst     int      `yaml:"rate_burst"`
	Cache         struct {
		TTL  duration `yaml:"ttl"`
		Size int      `yaml:"size"`
	} `yaml:"cache"`
	Resilience struct {
		Enabled    bool     `yaml:"enabled"`
		MaxRetries int      `yaml:"max_retries"`
		Backoff    duration `yaml:"backoff"`
	} `yaml:"resilience"`
}

// LoadConfig reads a client configuration from a YAML file and applies
// environment overrides (EXTRASHIFTY_BASE_URL, EXTRASHIFTY_TIMEOUT,
// EXTRASHIFTY_RATE_LIMIT). A missing file is not an error; env-only
// configuration is supported.
func LoadConfig(path string) (Config, error) {
	var fc fileConfig

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("read client config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &fc); err != nil {
			return Config{}, fmt.Errorf("parse client config: %w", err)
		}
	}

	if v := os.Getenv("EXTRASHIFTY_BASE_URL"); v != "" {
		fc.BaseURL = v
	}
	if v := os.Getenv("EXTRASHIFTY_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("EXTRASHIFTY_TIMEOUT: %w", err)
		}
		fc.Timeout = duration(d)
	}
	if v := os.Getenv("EXTRASHIFTY_RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Config{}, fmt.Errorf("EXTRASHIFTY_RATE_LIMIT: %w", err)
		}
		fc.RateLimit = f
	}

	if fc.BaseURL == "" {
		return Config{}, fmt.Errorf("base_url is required (file %q or EXTRASHIFTY_BASE_URL)", path)
	}

	cfg := Config{
		BaseURL:       fc.BaseURL,
		Timeout:       time.Duration(fc.Timeout),
		RefreshBuffer: time.Duration(fc.RefreshBuffer),
		RateLimit:     rate.Limit(fc.RateLimit),
		RateBurst:     fc.RateBurst,
		CacheTTL:      time.Duration(fc.Cache.TTL),
		CacheSize:     fc.Cache.Size,
	}

	if fc.Resilience.Enabled {
		policy := DefaultRetryPolicy()
		if fc.Resilience.MaxRetries > 0 {
			policy.MaxRetries = fc.Resilience.MaxRetries
		}
		if fc.Resilience.Backoff > 0 {
			policy.InitialBackoff = time.Duration(fc.Resilience.Backoff)
		}
		cfg.Resilience = &ResilienceConfig{
			Enabled: true,
			Retry:   policy,
			Breaker: DefaultBreakerConfig(),
		}
	}

	return cfg, nil
}
