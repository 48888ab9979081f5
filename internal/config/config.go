package config

import (
	"errors"
	"fmt"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/skybi/grade-proxy/internal/acquire"
	"github.com/skybi/grade-proxy/internal/session"
	"strings"
	"time"
)

// Config represents the application configuration structure
type Config struct {
	Environment string `default:"prod"`

	ListenAddress  string   `split_words:"true" default:":24702"`
	AllowedOrigins []string `split_words:"true" default:"*"`

	// TrustProxyHeaders takes the client address from X-Forwarded-For, X-Real-IP or True-Client-IP;
	// only enable it behind a reverse proxy that overwrites these headers
	TrustProxyHeaders bool `split_words:"true" default:"false"`

	BrowserEngine      string        `split_words:"true" default:"playwright"`
	BrowserHeadless    bool          `split_words:"true" default:"true"`
	BrowserBin         string        `split_words:"true"`
	BrowserTimeout     time.Duration `split_words:"true" default:"30s"`
	BrowserConcurrency int           `split_words:"true" default:"4"`

	AuthBaseURL           string        `envconfig:"AUTH_BASE_URL" default:"https://auth.bjmu.edu.cn"`
	AppsBaseURL           string        `envconfig:"APPS_BASE_URL" default:"https://apps.bjmu.edu.cn"`
	TLSInsecureSkipVerify bool          `envconfig:"TLS_INSECURE_SKIP_VERIFY" default:"true"`
	HTTPTimeout           time.Duration `envconfig:"HTTP_TIMEOUT" default:"30s"`

	RateLimitPerMinute int `split_words:"true" default:"6"`
	RateLimitBurst     int `split_words:"true" default:"3"`
}

// IsEnvProduction returns whether the application runs in production mode
func (config *Config) IsEnvProduction() bool {
	return strings.ToLower(config.Environment) == "prod"
}

// Validate checks the configuration values envconfig cannot check on its own
func (config *Config) Validate() error {
	var errs []error
	switch strings.ToLower(config.BrowserEngine) {
	case acquire.EnginePlaywright, acquire.EngineRod:
	default:
		errs = append(errs, fmt.Errorf("%w: %q", acquire.ErrUnknownEngine, config.BrowserEngine))
	}
	if config.BrowserTimeout <= 0 {
		errs = append(errs, errors.New("the browser timeout has to be positive"))
	}
	if config.BrowserConcurrency <= 0 {
		errs = append(errs, errors.New("the browser concurrency has to be positive"))
	}
	if config.HTTPTimeout <= 0 {
		errs = append(errs, errors.New("the HTTP timeout has to be positive"))
	}
	if config.RateLimitPerMinute <= 0 || config.RateLimitBurst <= 0 {
		errs = append(errs, errors.New("the rate limit and its burst have to be positive"))
	}
	return errors.Join(errs...)
}

// SessionOptions builds the grade session options described by the configuration
func (config *Config) SessionOptions() session.Options {
	opts := session.DefaultOptions()
	opts.AuthBaseURL = config.AuthBaseURL
	opts.AppsBaseURL = config.AppsBaseURL
	opts.InsecureSkipVerify = config.TLSInsecureSkipVerify
	opts.Timeout = config.HTTPTimeout
	return opts
}

// AcquireOptions builds the browser flow options described by the configuration
func (config *Config) AcquireOptions() acquire.Options {
	opts := acquire.DefaultOptions()
	opts.Headless = config.BrowserHeadless
	opts.BrowserBin = config.BrowserBin
	opts.PageTimeout = config.BrowserTimeout
	return opts
}

// LoadFromEnv loads a new configuration structure using environment variables and an optional .env file
func LoadFromEnv() (*Config, error) {
	// Load a .env file if it exists
	_ = godotenv.Overload()

	// Load a new configuration structure using environment variables
	config := new(Config)
	if err := envconfig.Process("gp", config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}
