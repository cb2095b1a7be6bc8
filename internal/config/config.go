package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/teemow/inboxreply/internal/autoreply"
	"github.com/teemow/inboxreply/internal/instrumentation"
	"github.com/teemow/inboxreply/internal/llm"
	"github.com/teemow/inboxreply/internal/schedule"
	"github.com/teemow/inboxreply/internal/store"
)

// EnvPrefix prefixes every environment override, e.g. INBOXREPLY_POLL_INTERVAL.
const EnvPrefix = "INBOXREPLY"

// LLMConfig selects the completion provider.
type LLMConfig struct {
	Provider      string  `mapstructure:"provider" yaml:"provider"`
	Model         string  `mapstructure:"model" yaml:"model"`
	APIKey        string  `mapstructure:"api_key" yaml:"api_key"`
	BaseURL       string  `mapstructure:"base_url" yaml:"base_url"`
	Temperature   float64 `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens     int64   `mapstructure:"max_tokens" yaml:"max_tokens"`
	MaxInputChars int     `mapstructure:"max_input_chars" yaml:"max_input_chars"`
}

// GoogleConfig holds the OAuth client used for Gmail and People.
type GoogleConfig struct {
	ClientID     string `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string `mapstructure:"client_secret" yaml:"client_secret"`
	TokenDir     string `mapstructure:"token_dir" yaml:"token_dir"`
}

// MetricsConfig controls the observability HTTP server.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
}

// TelemetryConfig selects the OpenTelemetry exporters.
type TelemetryConfig struct {
	Enabled         bool          `mapstructure:"enabled" yaml:"enabled"`
	MetricsExporter string        `mapstructure:"metrics_exporter" yaml:"metrics_exporter"`
	TracingExporter string        `mapstructure:"tracing_exporter" yaml:"tracing_exporter"`
	OTLPEndpoint    string        `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`
	OTLPInsecure    bool          `mapstructure:"otlp_insecure" yaml:"otlp_insecure"`
	TraceSampleRate float64       `mapstructure:"trace_sample_rate" yaml:"trace_sample_rate"`
	MetricInterval  time.Duration `mapstructure:"metric_interval" yaml:"metric_interval"`
	DetailedLabels  bool          `mapstructure:"detailed_labels" yaml:"detailed_labels"`
}

// AuditConfig controls the sent-mail audit log.
type AuditConfig struct {
	Enabled    bool `mapstructure:"enabled" yaml:"enabled"`
	IncludePII bool `mapstructure:"include_pii" yaml:"include_pii"`
}

// ScheduleConfig controls scheduled sends.
type ScheduleConfig struct {
	CheckSpec   string `mapstructure:"check_spec" yaml:"check_spec"`
	MaxAttempts int    `mapstructure:"max_attempts" yaml:"max_attempts"`
}

// Config is the complete inboxreply configuration.
type Config struct {
	Account         string        `mapstructure:"account" yaml:"account"`
	SelfAddress     string        `mapstructure:"self_address" yaml:"self_address"`
	PollInterval    time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	ErrorBackoff    time.Duration `mapstructure:"error_backoff" yaml:"error_backoff"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	BlockedKeywords []string      `mapstructure:"blocked_keywords" yaml:"blocked_keywords"`
	BlockedDomains  []string      `mapstructure:"blocked_domains" yaml:"blocked_domains"`
	SkipAutomated   bool          `mapstructure:"skip_automated" yaml:"skip_automated"`
	DataDir         string        `mapstructure:"data_dir" yaml:"data_dir"`
	Timezone        string        `mapstructure:"timezone" yaml:"timezone"`

	LLM       LLMConfig       `mapstructure:"llm" yaml:"llm"`
	Google    GoogleConfig    `mapstructure:"google" yaml:"google"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
	Audit     AuditConfig     `mapstructure:"audit" yaml:"audit"`
	Schedule  ScheduleConfig  `mapstructure:"schedule" yaml:"schedule"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-" yaml:"-"`
}

// DefaultConfigPath returns ~/.config/inboxreply/config.yaml.
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(dir, "inboxreply", "config.yaml")
}

// DefaultDataDir returns the directory for the state file and the schedule
// database.
func DefaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", "inboxreply-data")
	}
	return filepath.Join(dir, "inboxreply")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("account", "default")
	v.SetDefault("self_address", "")
	v.SetDefault("poll_interval", autoreply.DefaultPollInterval)
	v.SetDefault("error_backoff", autoreply.DefaultErrorBackoff)
	v.SetDefault("request_timeout", autoreply.DefaultRequestTimeout)
	v.SetDefault("blocked_keywords", autoreply.DefaultBlockedKeywords)
	v.SetDefault("blocked_domains", autoreply.DefaultBlockedDomains)
	v.SetDefault("skip_automated", true)
	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("timezone", "Local")

	v.SetDefault("llm.provider", llm.ProviderOpenAI)
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.temperature", llm.DefaultReplyTemperature)
	v.SetDefault("llm.max_tokens", llm.DefaultReplyMaxTokens)
	v.SetDefault("llm.max_input_chars", llm.DefaultMaxInputChars)

	v.SetDefault("google.client_id", "")
	v.SetDefault("google.client_secret", "")
	v.SetDefault("google.token_dir", "")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")

	telemetry := instrumentation.DefaultConfig()
	v.SetDefault("telemetry.enabled", telemetry.Enabled)
	v.SetDefault("telemetry.metrics_exporter", telemetry.MetricsExporter)
	v.SetDefault("telemetry.tracing_exporter", telemetry.TracingExporter)
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.otlp_insecure", false)
	v.SetDefault("telemetry.trace_sample_rate", telemetry.TraceSampleRate)
	v.SetDefault("telemetry.metric_interval", telemetry.MetricInterval)
	v.SetDefault("telemetry.detailed_labels", false)
	v.SetDefault("audit.enabled", telemetry.Audit.Enabled)
	v.SetDefault("audit.include_pii", telemetry.Audit.IncludePII)

	v.SetDefault("schedule.check_spec", schedule.DefaultCheckSpec)
	v.SetDefault("schedule.max_attempts", schedule.DefaultMaxAttempts)
}

// Load reads the configuration. A .env file in the working directory is
// loaded first; then defaults, the YAML file at path (optional when it does
// not exist) and INBOXREPLY_* environment variables are merged, in
// increasing precedence. An empty path selects DefaultConfigPath.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindOTelEnv(v); err != nil {
		return nil, err
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	file := path
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		var pathErr *os.PathError
		switch {
		case errors.As(err, &notFound), errors.As(err, &pathErr) && !explicit:
			file = ""
		default:
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.File = file
	cfg.applyProviderKeys()

	return cfg, nil
}

// bindOTelEnv lets the standard OpenTelemetry variables fill the telemetry
// section. The INBOXREPLY_ name of each key still wins.
func bindOTelEnv(v *viper.Viper) error {
	bindings := map[string]string{
		"telemetry.otlp_endpoint":     "OTEL_EXPORTER_OTLP_ENDPOINT",
		"telemetry.trace_sample_rate": "OTEL_TRACES_SAMPLER_ARG",
	}
	for key, otelVar := range bindings {
		own := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, own, otelVar); err != nil {
			return fmt.Errorf("binding %s: %w", key, err)
		}
	}
	return nil
}

// applyProviderKeys falls back to the providers' conventional environment
// variables when no key is configured.
func (c *Config) applyProviderKeys() {
	if c.LLM.APIKey != "" {
		return
	}
	switch c.LLM.Provider {
	case llm.ProviderAnthropic:
		c.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	default:
		c.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
}

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval)
	}
	if c.ErrorBackoff <= 0 {
		return fmt.Errorf("error_backoff must be positive, got %s", c.ErrorBackoff)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %s", c.RequestTimeout)
	}
	switch c.LLM.Provider {
	case "", llm.ProviderOpenAI, llm.ProviderAnthropic:
	default:
		return fmt.Errorf("unknown llm.provider %q (want %s or %s)", c.LLM.Provider, llm.ProviderOpenAI, llm.ProviderAnthropic)
	}
	if c.LLM.MaxInputChars < 0 {
		return fmt.Errorf("llm.max_input_chars must not be negative")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Schedule.MaxAttempts <= 0 {
		return fmt.Errorf("schedule.max_attempts must be positive, got %d", c.Schedule.MaxAttempts)
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return errors.New("metrics.addr is required when metrics are enabled")
	}
	if c.Telemetry.Enabled {
		if err := c.Instrumentation("").Validate(); err != nil {
			return fmt.Errorf("invalid telemetry settings: %w", err)
		}
	}
	return nil
}

// Location resolves Timezone. "" and "Local" mean the system zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// StatePath is the JSON state file inside DataDir.
func (c *Config) StatePath() string {
	return filepath.Join(c.DataDir, store.DefaultFileName)
}

// SchedulePath is the SQLite database of scheduled emails inside DataDir.
func (c *Config) SchedulePath() string {
	return filepath.Join(c.DataDir, "schedule.db")
}

// LLMEnabled reports whether an API key is available.
func (c *Config) LLMEnabled() bool {
	return strings.TrimSpace(c.LLM.APIKey) != ""
}

// ProviderConfig returns the llm provider settings.
func (c *Config) ProviderConfig() llm.ProviderConfig {
	return llm.ProviderConfig{
		Provider: c.LLM.Provider,
		Model:    c.LLM.Model,
		APIKey:   c.LLM.APIKey,
		BaseURL:  c.LLM.BaseURL,
	}
}

// AssistantOptions returns the llm assistant tuning.
func (c *Config) AssistantOptions() llm.Options {
	return llm.Options{
		MaxInputChars:    c.LLM.MaxInputChars,
		ReplyTemperature: c.LLM.Temperature,
		ReplyMaxTokens:   c.LLM.MaxTokens,
	}
}

// Instrumentation returns the telemetry and audit settings for a daemon of
// the given version serving Account.
func (c *Config) Instrumentation(version string) instrumentation.Config {
	return instrumentation.Config{
		ServiceName:     instrumentation.ServiceName,
		ServiceVersion:  version,
		Account:         c.Account,
		Enabled:         c.Telemetry.Enabled,
		MetricsExporter: c.Telemetry.MetricsExporter,
		TracingExporter: c.Telemetry.TracingExporter,
		OTLPEndpoint:    c.Telemetry.OTLPEndpoint,
		OTLPInsecure:    c.Telemetry.OTLPInsecure,
		TraceSampleRate: c.Telemetry.TraceSampleRate,
		MetricInterval:  c.Telemetry.MetricInterval,
		DetailedLabels:  c.Telemetry.DetailedLabels,
		Audit: instrumentation.AuditLoggingConfig{
			Enabled:    c.Audit.Enabled,
			IncludePII: c.Audit.IncludePII,
		},
	}
}
