// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides: QUIZWALK_EXPLORER_MAX_ARTIFACTS
// sets explorer.max_artifacts.
const EnvPrefix = "QUIZWALK"

// Sink kinds accepted by capture.sink.
const (
	SinkFile     = "file"
	SinkBadger   = "badger"
	SinkPostgres = "postgres"
)

// Interface defines the contract for accessing application configuration.
// Commands read it through the getters and apply flag overrides through the setters.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Network() NetworkConfig
	Explorer() ExplorerConfig
	State() StateConfig
	Capture() CaptureConfig
	Metrics() MetricsConfig

	// Flag Setters
	SetBrowserHeadless(bool)
	SetExplorerMaxArtifacts(int)
	SetExplorerProfile(string)
	SetExplorerStartURL(string)
	SetStatePath(string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	BrowserCfg  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	NetworkCfg  NetworkConfig  `mapstructure:"network" yaml:"network"`
	ExplorerCfg ExplorerConfig `mapstructure:"explorer" yaml:"explorer"`
	StateCfg    StateConfig    `mapstructure:"state" yaml:"state"`
	CaptureCfg  CaptureConfig  `mapstructure:"capture" yaml:"capture"`
	MetricsCfg  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig   { return c.BrowserCfg }
func (c *Config) Network() NetworkConfig   { return c.NetworkCfg }
func (c *Config) Explorer() ExplorerConfig { return c.ExplorerCfg }
func (c *Config) State() StateConfig       { return c.StateCfg }
func (c *Config) Capture() CaptureConfig   { return c.CaptureCfg }
func (c *Config) Metrics() MetricsConfig   { return c.MetricsCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserHeadless(b bool)     { c.BrowserCfg.Headless = b }
func (c *Config) SetExplorerMaxArtifacts(n int) { c.ExplorerCfg.MaxArtifacts = n }
func (c *Config) SetExplorerProfile(p string)   { c.ExplorerCfg.Profile = p }
func (c *Config) SetExplorerStartURL(u string)  { c.ExplorerCfg.StartURL = u }
func (c *Config) SetStatePath(p string)         { c.StateCfg.Path = p }

// LoggerConfig configures the global zap logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level" validate:"omitempty,oneof=debug info warn error dpanic panic fatal"`
	Format      string      `mapstructure:"format" yaml:"format" validate:"omitempty,oneof=console json"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size" validate:"gte=0"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups" validate:"gte=0"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age" validate:"gte=0"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the Chrome instance driving the quiz.
type BrowserConfig struct {
	Headless        bool           `mapstructure:"headless" yaml:"headless"`
	DisableCache    bool           `mapstructure:"disable_cache" yaml:"disable_cache"`
	IgnoreTLSErrors bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Debug           bool           `mapstructure:"debug" yaml:"debug"`
	ExecPath        string         `mapstructure:"exec_path" yaml:"exec_path"`
	Args            []string       `mapstructure:"args" yaml:"args"`
	Viewport        map[string]int `mapstructure:"viewport" yaml:"viewport"`
}

// ProxyConfig defines the configuration for an outbound proxy.
type ProxyConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Address string `mapstructure:"address" yaml:"address" validate:"required_if=Enabled true"`
}

// NetworkConfig tunes page interaction timing.
type NetworkConfig struct {
	Timeout           time.Duration     `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`
	NavigationTimeout time.Duration     `mapstructure:"navigation_timeout" yaml:"navigation_timeout" validate:"gt=0"`
	PostLoadWait      time.Duration     `mapstructure:"post_load_wait" yaml:"post_load_wait" validate:"gte=0"`
	ActionDelay       time.Duration     `mapstructure:"action_delay" yaml:"action_delay" validate:"gte=0"`
	ActionsPerSecond  float64           `mapstructure:"actions_per_second" yaml:"actions_per_second" validate:"gt=0"`
	RetryAttempts     int               `mapstructure:"retry_attempts" yaml:"retry_attempts" validate:"gte=0"`
	RetryBackoff      time.Duration     `mapstructure:"retry_backoff" yaml:"retry_backoff" validate:"gte=0"`
	Headers           map[string]string `mapstructure:"headers" yaml:"headers"`
	Proxy             ProxyConfig       `mapstructure:"proxy" yaml:"proxy"`
}

// ExplorerConfig configures the traversal.
type ExplorerConfig struct {
	// StartURL overrides the profile's start_url.
	StartURL     string        `mapstructure:"start_url" yaml:"start_url" validate:"omitempty,url"`
	Profile      string        `mapstructure:"profile" yaml:"profile"`
	MaxArtifacts int           `mapstructure:"max_artifacts" yaml:"max_artifacts" validate:"gte=0"`
	MaxStalls    int           `mapstructure:"max_stalls" yaml:"max_stalls" validate:"gte=1"`
	StepTimeout  time.Duration `mapstructure:"step_timeout" yaml:"step_timeout" validate:"gte=0"`
	// CheckpointEvery saves intermediate state every n steps; zero saves only at the end.
	CheckpointEvery int `mapstructure:"checkpoint_every" yaml:"checkpoint_every" validate:"gte=0"`
}

// StateConfig configures the persisted traversal document.
type StateConfig struct {
	Path             string `mapstructure:"path" yaml:"path" validate:"required"`
	MaxBackups       int    `mapstructure:"max_backups" yaml:"max_backups" validate:"gte=0"`
	CompressBackups  bool   `mapstructure:"compress_backups" yaml:"compress_backups"`
	FallbackToBackup bool   `mapstructure:"fallback_to_backup" yaml:"fallback_to_backup"`
}

// CaptureConfig selects where recorded submissions go.
type CaptureConfig struct {
	Sink        string `mapstructure:"sink" yaml:"sink" validate:"oneof=file badger postgres"`
	Dir         string `mapstructure:"dir" yaml:"dir" validate:"required_if=Sink file"`
	BadgerPath  string `mapstructure:"badger_path" yaml:"badger_path" validate:"required_if=Sink badger"`
	DatabaseURL string `mapstructure:"database_url" yaml:"database_url" validate:"required_if=Sink postgres"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen" validate:"omitempty,hostname_port"`
}

var validate = validator.New()

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "quizwalk")
	v.SetDefault("logger.log_file", "quizwalk.log")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.disable_cache", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.debug", false)
	v.SetDefault("browser.viewport", map[string]int{"width": 1280, "height": 900})

	// -- Network --
	v.SetDefault("network.timeout", "30s")
	v.SetDefault("network.navigation_timeout", "5s")
	v.SetDefault("network.post_load_wait", "500ms")
	v.SetDefault("network.action_delay", "200ms")
	v.SetDefault("network.actions_per_second", 5.0)
	v.SetDefault("network.retry_attempts", 2)
	v.SetDefault("network.retry_backoff", "250ms")
	v.SetDefault("network.proxy.enabled", false)

	// -- Explorer --
	v.SetDefault("explorer.max_artifacts", 1000)
	v.SetDefault("explorer.max_stalls", 2)
	v.SetDefault("explorer.step_timeout", "30s")
	v.SetDefault("explorer.checkpoint_every", 25)

	// -- State --
	v.SetDefault("state.path", "progress.json")
	v.SetDefault("state.max_backups", 5)
	v.SetDefault("state.compress_backups", true)
	v.SetDefault("state.fallback_to_backup", true)

	// -- Capture --
	v.SetDefault("capture.sink", SinkFile)
	v.SetDefault("capture.dir", "payloads")
	v.SetDefault("capture.badger_path", "payloads.badger")

	// -- Metrics --
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "127.0.0.1:9464")
}

// BindEnv wires QUIZWALK_* environment variables into v.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Sensitive values are only ever expected from the environment.
	_ = v.BindEnv("capture.database_url", EnvPrefix+"_DATABASE_URL")
}

// NewConfigFromViper unmarshals and validates the configuration held by v.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]error, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Errorf("%s fails %q", fieldPath(fe.Namespace()), fe.Tag()))
			}
			return errors.Join(msgs...)
		}
		return err
	}
	if c.MetricsCfg.Enabled && c.MetricsCfg.Listen == "" {
		return errors.New("metrics.listen is required when metrics are enabled")
	}
	if c.ExplorerCfg.StepTimeout > 0 && c.NetworkCfg.NavigationTimeout > c.ExplorerCfg.StepTimeout {
		return fmt.Errorf("network.navigation_timeout (%s) must not exceed explorer.step_timeout (%s)",
			c.NetworkCfg.NavigationTimeout, c.ExplorerCfg.StepTimeout)
	}
	return nil
}

// fieldPath turns a validator namespace like Config.ExplorerCfg.MaxStalls into
// the config key prefix explorer.MaxStalls.
func fieldPath(ns string) string {
	parts := strings.Split(ns, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	parts[0] = strings.ToLower(strings.TrimSuffix(parts[0], "Cfg"))
	return strings.Join(parts, ".")
}
