// Package config loads and validates pagewatch configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Judge     JudgeConfig     `mapstructure:"judge"`
	Check     CheckConfig     `mapstructure:"check"`
	Store     StoreConfig     `mapstructure:"store"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// FetchConfig governs the light, rendered and screenshot tiers.
type FetchConfig struct {
	UserAgent          string        `mapstructure:"user_agent"`
	LightTimeout       time.Duration `mapstructure:"light_timeout"`
	RenderTimeout      time.Duration `mapstructure:"render_timeout"`
	RespectRobots      bool          `mapstructure:"respect_robots"`
	RateLimitRPS       float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst     int           `mapstructure:"rate_limit_burst"`
	BrowserEnabled     bool          `mapstructure:"browser_enabled"`
	BrowserMaxParallel int           `mapstructure:"browser_max_parallel"`
	BrowserExecPath    string        `mapstructure:"browser_exec_path"`
	ViewportWidth      int           `mapstructure:"viewport_width"`
	PromotionThreshold int           `mapstructure:"promotion_threshold"`
}

// JudgeConfig selects the language model provider.
type JudgeConfig struct {
	Provider        string        `mapstructure:"provider"`
	Model           string        `mapstructure:"model"`
	APIKey          string        `mapstructure:"api_key"`
	BaseURL         string        `mapstructure:"base_url"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxTokens       int           `mapstructure:"max_tokens"`
	VerdictCacheTTL time.Duration `mapstructure:"verdict_cache_ttl"`
}

// CheckConfig tunes the check pipeline and its worker pool.
type CheckConfig struct {
	Policy                 string        `mapstructure:"policy"`
	LowConfidence          float64       `mapstructure:"low_confidence"`
	VisionConfidence       float64       `mapstructure:"vision_confidence"`
	RuleConfidence         float64       `mapstructure:"rule_confidence"`
	DefaultIntervalSeconds int           `mapstructure:"default_interval_seconds"`
	Timeout                time.Duration `mapstructure:"timeout"`
	NotifyMode             string        `mapstructure:"notify_mode"`
	Workers                int           `mapstructure:"workers"`
	QueueDepth             int           `mapstructure:"queue_depth"`
}

// StoreConfig selects the monitor store.
type StoreConfig struct {
	Backend         string        `mapstructure:"backend"`
	Path            string        `mapstructure:"path"`
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	Migrate         bool          `mapstructure:"migrate"`
}

// NotifyConfig selects where notifications go.
type NotifyConfig struct {
	Backend   string `mapstructure:"backend"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
	Subject   string `mapstructure:"subject"`
}

// ArtifactsConfig selects where evidence screenshots are stored.
type ArtifactsConfig struct {
	Backend      string `mapstructure:"backend"`
	Bucket       string `mapstructure:"bucket"`
	BaseDir      string `mapstructure:"base_dir"`
	Prefix       string `mapstructure:"prefix"`
	CacheControl string `mapstructure:"cache_control"`
}

// TelemetryConfig controls tracing.
type TelemetryConfig struct {
	ServiceName    string `mapstructure:"service_name"`
	TracingEnabled bool   `mapstructure:"tracing_enabled"`
	ProjectID      string `mapstructure:"project_id"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PAGEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", "4m")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")

	v.SetDefault("fetch.user_agent", "")
	v.SetDefault("fetch.light_timeout", "15s")
	v.SetDefault("fetch.render_timeout", "30s")
	v.SetDefault("fetch.respect_robots", false)
	v.SetDefault("fetch.rate_limit_rps", 1.0)
	v.SetDefault("fetch.rate_limit_burst", 2)
	v.SetDefault("fetch.browser_enabled", true)
	v.SetDefault("fetch.browser_max_parallel", 2)
	v.SetDefault("fetch.browser_exec_path", "")
	v.SetDefault("fetch.viewport_width", 1366)
	v.SetDefault("fetch.promotion_threshold", 2048)

	v.SetDefault("judge.provider", "gemini")
	v.SetDefault("judge.model", "gemini-2.5-flash")
	v.SetDefault("judge.api_key", "")
	v.SetDefault("judge.base_url", "")
	v.SetDefault("judge.timeout", "60s")
	v.SetDefault("judge.max_tokens", 1024)
	v.SetDefault("judge.verdict_cache_ttl", "10m")

	v.SetDefault("check.policy", "escalate")
	v.SetDefault("check.low_confidence", 0.45)
	v.SetDefault("check.vision_confidence", 0.5)
	v.SetDefault("check.rule_confidence", 0.9)
	v.SetDefault("check.default_interval_seconds", 7200)
	v.SetDefault("check.timeout", "3m")
	v.SetDefault("check.notify_mode", "every_match")
	v.SetDefault("check.workers", 2)
	v.SetDefault("check.queue_depth", 64)

	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.path", "pagewatch.db")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.table", "monitors")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 0)
	v.SetDefault("store.max_conn_lifetime", "30m")
	v.SetDefault("store.migrate", true)

	v.SetDefault("notify.backend", "log")
	v.SetDefault("notify.project_id", "")
	v.SetDefault("notify.topic", "pagewatch-alerts")
	v.SetDefault("notify.subject", "pagewatch alert")

	v.SetDefault("artifacts.backend", "memory")
	v.SetDefault("artifacts.bucket", "")
	v.SetDefault("artifacts.base_dir", "evidence")
	v.SetDefault("artifacts.prefix", "evidence")
	v.SetDefault("artifacts.cache_control", "private, max-age=0")

	v.SetDefault("telemetry.service_name", "pagewatch")
	v.SetDefault("telemetry.tracing_enabled", false)
	v.SetDefault("telemetry.project_id", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Logging.Level != "" {
		if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
			return fmt.Errorf("logging.level %q is not a log level", c.Logging.Level)
		}
	}
	if err := c.validateCheck(); err != nil {
		return err
	}
	if c.Fetch.BrowserEnabled && c.Fetch.BrowserMaxParallel <= 0 {
		return fmt.Errorf("fetch.browser_max_parallel must be > 0 when the browser is enabled")
	}
	switch c.Judge.Provider {
	case "openai", "gemini", "anthropic":
	default:
		return fmt.Errorf("judge.provider %q is not supported", c.Judge.Provider)
	}
	switch c.Store.Backend {
	case "memory":
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite backend")
		}
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("store.backend %q is not supported", c.Store.Backend)
	}
	switch c.Notify.Backend {
	case "memory", "log":
	case "pubsub":
		if c.Notify.ProjectID == "" || c.Notify.Topic == "" {
			return fmt.Errorf("notify.project_id and notify.topic are required for the pubsub backend")
		}
	default:
		return fmt.Errorf("notify.backend %q is not supported", c.Notify.Backend)
	}
	switch c.Artifacts.Backend {
	case "memory":
	case "local":
		if c.Artifacts.BaseDir == "" {
			return fmt.Errorf("artifacts.base_dir is required for the local backend")
		}
	case "gcs":
		if c.Artifacts.Bucket == "" {
			return fmt.Errorf("artifacts.bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("artifacts.backend %q is not supported", c.Artifacts.Backend)
	}
	return nil
}

func (c Config) validateCheck() error {
	switch c.Check.Policy {
	case "escalate", "vision":
	default:
		return fmt.Errorf("check.policy %q is not supported", c.Check.Policy)
	}
	switch c.Check.NotifyMode {
	case "every_match", "transition":
	default:
		return fmt.Errorf("check.notify_mode %q is not supported", c.Check.NotifyMode)
	}
	for name, v := range map[string]float64{
		"check.low_confidence":    c.Check.LowConfidence,
		"check.vision_confidence": c.Check.VisionConfidence,
		"check.rule_confidence":   c.Check.RuleConfidence,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be within [0, 1]", name)
		}
	}
	if c.Check.Workers <= 0 {
		return fmt.Errorf("check.workers must be > 0")
	}
	if c.Check.QueueDepth <= 0 {
		return fmt.Errorf("check.queue_depth must be > 0")
	}
	if c.Check.DefaultIntervalSeconds <= 0 {
		return fmt.Errorf("check.default_interval_seconds must be > 0")
	}
	return nil
}
