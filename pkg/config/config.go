package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App        AppConfig                 `mapstructure:"app" json:"app"`
	Logger     LoggerConfig              `mapstructure:"logger" json:"logger"`
	Browser    BrowserConfig             `mapstructure:"browser" json:"browser"`
	Runner     RunnerConfig              `mapstructure:"runner" json:"runner"`
	AI         AIConfig                  `mapstructure:"ai" json:"ai"`
	Providers  map[string]ProviderConfig `mapstructure:"providers" json:"providers"`
	Gateways   map[string]GatewayConfig  `mapstructure:"gateways" json:"gateways"`
	Memory     MemoryConfig              `mapstructure:"memory" json:"memory"`
	Governance GovernanceConfig          `mapstructure:"governance" json:"governance"`
}

type AppConfig struct {
	Name       string `mapstructure:"name" json:"name"`
	PromptsDir string `mapstructure:"prompts_dir" json:"prompts_dir"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level" json:"level"`
	Format     string `mapstructure:"format" json:"format"`
	LogFile    string `mapstructure:"log_file" json:"log_file"`
	LLMLogFile string `mapstructure:"llm_log_file" json:"llm_log_file"`
	MaxSize    int    `mapstructure:"max_size" json:"max_size"`
	MaxBackups int    `mapstructure:"max_backups" json:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" json:"max_age"`
	Compress   bool   `mapstructure:"compress" json:"compress"`
}

type BrowserConfig struct {
	Backend        string        `mapstructure:"backend" json:"backend"`
	Headless       bool          `mapstructure:"headless" json:"headless"`
	ViewportWidth  int           `mapstructure:"viewport_width" json:"viewport_width"`
	ViewportHeight int           `mapstructure:"viewport_height" json:"viewport_height"`
	Timeout        time.Duration `mapstructure:"timeout" json:"timeout"`
	ScreenshotDir  string        `mapstructure:"screenshot_dir" json:"screenshot_dir"`
	TraceDir       string        `mapstructure:"trace_dir" json:"trace_dir"`
}

type RunnerConfig struct {
	NavigationAttempts    int           `mapstructure:"navigation_attempts" json:"navigation_attempts"`
	NavigationBackoff     time.Duration `mapstructure:"navigation_backoff" json:"navigation_backoff"`
	StrictModeMarker      string        `mapstructure:"strict_mode_marker" json:"strict_mode_marker"`
	SkipInitialNavigation bool          `mapstructure:"skip_initial_navigation" json:"skip_initial_navigation"`
	SuiteConcurrency      int           `mapstructure:"suite_concurrency" json:"suite_concurrency"`
	PersistSnapshots      bool          `mapstructure:"persist_snapshots" json:"persist_snapshots"`
}

type AIConfig struct {
	// Provider names the entry in Providers to use; empty picks the first
	// enabled one.
	Provider          string  `mapstructure:"provider" json:"provider"`
	Temperature       float64 `mapstructure:"temperature" json:"temperature"`
	RequestsPerMinute int     `mapstructure:"requests_per_minute" json:"requests_per_minute"`
}

type GatewayConfig struct {
	Token   string `mapstructure:"token" json:"token"`
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
}

type ProviderConfig struct {
	APIKey  string `mapstructure:"api_key" json:"api_key"`
	Model   string `mapstructure:"model" json:"model"`
	BaseURL string `mapstructure:"base_url" json:"base_url,omitempty"`
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
}

type MemoryConfig struct {
	Type string `mapstructure:"type" json:"type"`
	Path string `mapstructure:"path" json:"path"`
}

type GovernanceConfig struct {
	DenyKinds    []string `mapstructure:"deny_kinds" json:"deny_kinds"`
	DenyPatterns []string `mapstructure:"deny_patterns" json:"deny_patterns"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "operator")
	v.SetDefault("app.prompts_dir", "./prompts")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.log_file", "logs/operator.log")
	v.SetDefault("logger.llm_log_file", "logs/llm.jsonl")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	v.SetDefault("browser.backend", "playwright")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.viewport_width", 1920)
	v.SetDefault("browser.viewport_height", 1080)
	v.SetDefault("browser.timeout", "5s")
	v.SetDefault("browser.screenshot_dir", "screenshots")
	v.SetDefault("browser.trace_dir", "traces")

	v.SetDefault("runner.navigation_attempts", 3)
	v.SetDefault("runner.navigation_backoff", "2s")
	v.SetDefault("runner.strict_mode_marker", "strict mode violation")
	v.SetDefault("runner.skip_initial_navigation", true)
	v.SetDefault("runner.suite_concurrency", 2)
	v.SetDefault("runner.persist_snapshots", true)

	v.SetDefault("ai.provider", "")
	v.SetDefault("ai.temperature", 0.0)
	v.SetDefault("ai.requests_per_minute", 60)

	v.SetDefault("memory.type", "sqlite")
	v.SetDefault("memory.path", "data/operator.db")

	v.SetDefault("governance.deny_kinds", []string{})
	v.SetDefault("governance.deny_patterns", []string{`(?i)^javascript:`, `(?i)^file://`})
}

// Load reads path (JSON or YAML, optional when empty or missing), overlays
// OPERATOR_* environment variables and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix("OPERATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}
	return NewConfigFromViper(v)
}

func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	for name, p := range cfg.Providers {
		if p.APIKey == "" {
			p.APIKey = os.Getenv("OPERATOR_" + strings.ToUpper(name) + "_API_KEY")
			cfg.Providers[name] = p
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for sane values.
func (c *Config) Validate() error {
	switch c.Browser.Backend {
	case "playwright", "chromedp":
	default:
		return fmt.Errorf("browser.backend must be playwright or chromedp, got %q", c.Browser.Backend)
	}
	if c.Browser.Timeout <= 0 {
		return fmt.Errorf("browser.timeout must be positive")
	}
	if c.Runner.NavigationBackoff < 0 {
		return fmt.Errorf("runner.navigation_backoff must not be negative")
	}
	if c.Runner.SuiteConcurrency <= 0 {
		return fmt.Errorf("runner.suite_concurrency must be a positive integer")
	}
	if c.AI.RequestsPerMinute < 0 {
		return fmt.Errorf("ai.requests_per_minute must not be negative")
	}
	if c.AI.Provider != "" {
		if _, ok := c.Providers[c.AI.Provider]; !ok {
			return fmt.Errorf("ai.provider %q has no providers entry", c.AI.Provider)
		}
	}
	return nil
}

// Profiles names the presets accepted by ApplyProfile.
var Profiles = []string{"default", "debug", "test", "production", "mobile"}

// ApplyProfile adjusts browser settings to a named preset.
func (c *Config) ApplyProfile(name string) error {
	switch name {
	case "", "default":
	case "debug":
		c.Browser.Headless = false
		c.Browser.ViewportWidth, c.Browser.ViewportHeight = 1280, 700
		c.Browser.ScreenshotDir, c.Browser.TraceDir = "debug_screenshots", "debug_traces"
		c.Logger.Level = "debug"
	case "test":
		c.Browser.Headless = true
		c.Browser.Timeout = 15 * time.Second
		c.Browser.ScreenshotDir, c.Browser.TraceDir = "test_screenshots", "test_traces"
	case "production":
		c.Browser.Headless = true
		c.Browser.Timeout = 30 * time.Second
		c.Browser.TraceDir = ""
		c.Logger.Format = "json"
	case "mobile":
		c.Browser.ViewportWidth, c.Browser.ViewportHeight = 375, 812
	default:
		return fmt.Errorf("unknown profile %q (want one of %s)", name, strings.Join(Profiles, ", "))
	}
	return nil
}

// GetDefaultProvider returns the configured provider, or the enabled
// provider with the lowest name.
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	if c.AI.Provider != "" {
		return c.AI.Provider, c.Providers[c.AI.Provider]
	}
	var name string
	for n, p := range c.Providers {
		if p.Enabled && (name == "" || n < name) {
			name = n
		}
	}
	if name == "" {
		return "", ProviderConfig{}
	}
	return name, c.Providers[name]
}

// GetGatewayConfig returns the named gateway if it is enabled and has a token.
func (c *Config) GetGatewayConfig(name string) (GatewayConfig, bool) {
	g, ok := c.Gateways[name]
	if ok && g.Enabled && g.Token != "" {
		return g, true
	}
	return GatewayConfig{}, false
}
