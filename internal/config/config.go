// Package config loads and validates the integration service configuration
// from a YAML file with environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EmailConfig holds SMTP connectivity and security settings.
type EmailConfig struct {
	Host           string   `json:"host" mapstructure:"host"`
	Port           int      `json:"port" mapstructure:"port"`
	Username       string   `json:"username" mapstructure:"username"`
	Password       string   `json:"password" mapstructure:"password"`
	UseTLS         bool     `json:"useTLS" mapstructure:"use_tls"`
	FromAddress    string   `json:"fromAddress" mapstructure:"from_address"`
	AllowedDomains []string `json:"allowedDomains" mapstructure:"allowed_domains"`
	RequireAuth    bool     `json:"requireAuth" mapstructure:"require_auth"`
}

// SlackConfig holds Slack API credentials and defaults.
type SlackConfig struct {
	Token          string `json:"token" mapstructure:"token"`
	DefaultChannel string `json:"defaultChannel" mapstructure:"default_channel"`
	RateLimit      int    `json:"rateLimit" mapstructure:"rate_limit"`
	RateBurst      int    `json:"rateBurst" mapstructure:"rate_burst"`
}

// JiraConfig holds Jira connection and authentication settings.
type JiraConfig struct {
	URL        string `json:"url" mapstructure:"url"`
	Username   string `json:"username" mapstructure:"username"`
	APIToken   string `json:"apiToken" mapstructure:"api_token"`
	ProjectKey string `json:"projectKey" mapstructure:"project_key"`
	RateLimit  int    `json:"rateLimit" mapstructure:"rate_limit"`
}

// SyncConfig tunes the scheduler and retry executor. Keeping these on the
// configuration struct (instead of package-level defaults) allows
// per-instance tuning and deterministic tests.
type SyncConfig struct {
	// Interval is how often the scheduler synchronizes all integrations.
	Interval time.Duration `json:"interval" mapstructure:"interval"`

	// RetryAttempts is the maximum number of attempts per operation.
	RetryAttempts int `json:"retryAttempts" mapstructure:"retry_attempts"`

	// BackoffBase is the delay before the second attempt.
	BackoffBase time.Duration `json:"backoffBase" mapstructure:"backoff_base"`

	// BackoffFactor multiplies the delay after each failed attempt.
	BackoffFactor int `json:"backoffFactor" mapstructure:"backoff_factor"`

	// BackoffMax caps the delay between attempts.
	BackoffMax time.Duration `json:"backoffMax" mapstructure:"backoff_max"`
}

// APIConfig holds HTTP server settings.
type APIConfig struct {
	ListenAddress string        `json:"listenAddress" mapstructure:"listen_address"`
	ReadTimeout   time.Duration `json:"readTimeout" mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `json:"writeTimeout" mapstructure:"write_timeout"`
	IdleTimeout   time.Duration `json:"idleTimeout" mapstructure:"idle_timeout"`
	RateLimit     float64       `json:"rateLimit" mapstructure:"rate_limit"`
	RateBurst     int           `json:"rateBurst" mapstructure:"rate_burst"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	Format string `json:"format" mapstructure:"format"`
}

// MetricsConfig holds metrics collection settings.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled" mapstructure:"enabled"`
	Namespace string `json:"namespace" mapstructure:"namespace"`
}

// Config is the complete integration service configuration.
type Config struct {
	Email   *EmailConfig  `json:"email" mapstructure:"email"`
	Slack   *SlackConfig  `json:"slack" mapstructure:"slack"`
	Jira    *JiraConfig   `json:"jira" mapstructure:"jira"`
	Sync    SyncConfig    `json:"sync" mapstructure:"sync"`
	API     APIConfig     `json:"api" mapstructure:"api"`
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`

	// Timeout bounds each outbound call to an external service.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

// ConfigError describes a configuration problem with enough context to act on.
type ConfigError struct {
	Context string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Context, e.Message)
}

// Validate checks required fields and value ranges. A nil integration block
// is allowed: the corresponding adapter is simply not registered at startup.
func (c *Config) Validate() error {
	if c == nil {
		return &ConfigError{Context: "config", Message: "configuration is nil"}
	}

	if c.Email != nil {
		if c.Email.Host == "" || c.Email.Port == 0 {
			return &ConfigError{Context: "email", Message: "host and port are required"}
		}
		if c.Email.RequireAuth && (c.Email.Username == "" || c.Email.Password == "") {
			return &ConfigError{Context: "email", Message: "auth required but username/password missing"}
		}
		if c.Email.FromAddress == "" {
			return &ConfigError{Context: "email", Message: "from_address is required"}
		}
	}

	if c.Slack != nil && c.Slack.Token == "" {
		return &ConfigError{Context: "slack", Message: "token is required"}
	}

	if c.Jira != nil {
		if c.Jira.URL == "" {
			return &ConfigError{Context: "jira", Message: "url is required"}
		}
		if c.Jira.Username == "" || c.Jira.APIToken == "" {
			return &ConfigError{Context: "jira", Message: "username and api_token are required"}
		}
	}

	if c.Timeout <= 0 || c.Timeout > 5*time.Minute {
		return &ConfigError{
			Context: "timeout",
			Message: fmt.Sprintf("must be between 1s and 5m, found %s", c.Timeout),
		}
	}

	if c.Sync.Interval <= 0 {
		return &ConfigError{Context: "sync", Message: "interval must be positive"}
	}
	if c.Sync.RetryAttempts < 1 {
		return &ConfigError{Context: "sync", Message: "retry_attempts must be at least 1"}
	}
	if c.Sync.BackoffBase <= 0 || c.Sync.BackoffMax < c.Sync.BackoffBase {
		return &ConfigError{Context: "sync", Message: "backoff_base must be positive and no greater than backoff_max"}
	}
	if c.Sync.BackoffFactor < 1 {
		return &ConfigError{Context: "sync", Message: "backoff_factor must be at least 1"}
	}

	return nil
}

// Load reads configuration from the given file, applies defaults and
// TASKSTREAM_-prefixed environment overrides, and validates the result.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("configs")
		v.AddConfigPath("/etc/taskstream")
	}

	v.SetEnvPrefix("TASKSTREAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A config file is optional when everything arrives via environment.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets defaults for everything that has a safe one. Credentials
// have no defaults on purpose.
func setDefaults(v *viper.Viper) {
	v.SetDefault("timeout", 30*time.Second)

	v.SetDefault("sync.interval", 5*time.Minute)
	v.SetDefault("sync.retry_attempts", 3)
	v.SetDefault("sync.backoff_base", time.Second)
	v.SetDefault("sync.backoff_factor", 2)
	v.SetDefault("sync.backoff_max", time.Hour)

	v.SetDefault("api.listen_address", ":8080")
	v.SetDefault("api.read_timeout", 30*time.Second)
	v.SetDefault("api.write_timeout", 30*time.Second)
	v.SetDefault("api.idle_timeout", 90*time.Second)
	v.SetDefault("api.rate_limit", 100)
	v.SetDefault("api.rate_burst", 150)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "taskstream")

	// No defaults for the email/slack/jira blocks: defaulting any subkey
	// would materialize the block on unmarshal and make a partially
	// configured integration look configured. Adapters apply their own
	// fallbacks for rate limits and TLS.
}
