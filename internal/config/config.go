package config

import (
	"fmt"
	"path/filepath"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration. All heuristic constants
// of the engine (timeouts, budgets, confidence cutoffs) live here so they can
// be tuned without touching the engine.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Engine   EngineConfig   `mapstructure:"engine" yaml:"engine"`
	Resolver ResolverConfig `mapstructure:"resolver" yaml:"resolver"`
	Executor ExecutorConfig `mapstructure:"executor" yaml:"executor"`
	Repair   RepairConfig   `mapstructure:"repair" yaml:"repair"`
	Memory   MemoryConfig   `mapstructure:"memory" yaml:"memory"`
	LLM      LLMConfig      `mapstructure:"llm" yaml:"llm"`
	Profile  ProfileConfig  `mapstructure:"profile" yaml:"profile"`
}

// LoggerConfig controls the global zap logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
}

// BrowserConfig controls the chromedp allocator and page lifecycle.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	WindowWidth       int           `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight      int           `mapstructure:"window_height" yaml:"window_height"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
}

// EngineConfig bounds one session: re-scan passes, per-field and session
// deadlines, and how many independent sessions may run at once.
type EngineConfig struct {
	RescanBudget       int           `mapstructure:"rescan_budget" yaml:"rescan_budget"`
	FieldTimeout       time.Duration `mapstructure:"field_timeout" yaml:"field_timeout"`
	SessionTimeout     time.Duration `mapstructure:"session_timeout" yaml:"session_timeout"`
	SessionConcurrency int           `mapstructure:"session_concurrency" yaml:"session_concurrency"`
}

// ResolverConfig tunes the answer cascade.
type ResolverConfig struct {
	// AcceptThreshold is the confidence a strategy must reach to
	// short-circuit the cascade.
	AcceptThreshold float64 `mapstructure:"accept_threshold" yaml:"accept_threshold"`
	// AIConfidenceCap bounds any confidence the reasoning service reports,
	// keeping AI answers behind stronger signals in future resolutions.
	AIConfidenceCap float64 `mapstructure:"ai_confidence_cap" yaml:"ai_confidence_cap"`
}

// ExecutorConfig tunes the fill strategies.
type ExecutorConfig struct {
	// OptionWait bounds how long a combobox listbox may take to populate.
	OptionWait time.Duration `mapstructure:"option_wait" yaml:"option_wait"`
	// LookupWait replaces OptionWait for controls backed by an external data
	// lookup, such as location services.
	LookupWait   time.Duration `mapstructure:"lookup_wait" yaml:"lookup_wait"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	// ConfirmKey commits a combobox selection. It must never be a key that
	// can also submit the enclosing form.
	ConfirmKey string `mapstructure:"confirm_key" yaml:"confirm_key"`
}

// RepairConfig bounds the repair loop.
type RepairConfig struct {
	MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts"`
}

// MemoryConfig selects and configures the learning-store backend.
type MemoryConfig struct {
	// Backend is "sqlite" for a local file or "postgres" for a store shared
	// across machines.
	Backend     string `mapstructure:"backend" yaml:"backend"`
	SQLitePath  string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn" yaml:"postgres_dsn"`
}

// LLMConfig configures the external reasoning service.
type LLMConfig struct {
	Provider string        `mapstructure:"provider" yaml:"provider"`
	Model    string        `mapstructure:"model" yaml:"model"`
	APIKey   string        `mapstructure:"api_key" yaml:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// RequestsPerMinute rate-limits calls to bound cost and remote load.
	RequestsPerMinute int     `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	Temperature       float32 `mapstructure:"temperature" yaml:"temperature"`
}

// ProfileConfig locates the static personal-data profile.
type ProfileConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// NewDefaultConfig returns a Config populated with the tuned defaults. The
// values are heuristics, not invariants; override them in config.yaml.
func NewDefaultConfig() *Config {
	return &Config{
		Logger: LoggerConfig{
			Level:       "info",
			Format:      "console",
			ServiceName: "formpilot",
			MaxSize:     50,
			MaxBackups:  3,
			MaxAge:      14,
		},
		Browser: BrowserConfig{
			Headless:          true,
			WindowWidth:       1400,
			WindowHeight:      900,
			NavigationTimeout: 45 * time.Second,
			ActionTimeout:     10 * time.Second,
		},
		Engine: EngineConfig{
			RescanBudget:       3,
			FieldTimeout:       30 * time.Second,
			SessionTimeout:     10 * time.Minute,
			SessionConcurrency: 2,
		},
		Resolver: ResolverConfig{
			AcceptThreshold: 0.65,
			AIConfidenceCap: 0.6,
		},
		Executor: ExecutorConfig{
			OptionWait:   1500 * time.Millisecond,
			LookupWait:   5 * time.Second,
			PollInterval: 100 * time.Millisecond,
			ConfirmKey:   "Tab",
		},
		Repair: RepairConfig{
			MaxAttempts: 2,
		},
		Memory: MemoryConfig{
			Backend: "sqlite",
		},
		LLM: LLMConfig{
			Provider:          "gemini",
			Model:             "gemini-2.0-flash",
			Timeout:           60 * time.Second,
			RequestsPerMinute: 20,
			Temperature:       0.2,
		},
	}
}

// Load reads configuration from viper (config file plus FORMPILOT_* env
// vars) on top of the defaults and validates the result.
func Load(v *viper.Viper) (*Config, error) {
	cfg := NewDefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Engine.RescanBudget < 1 {
		return fmt.Errorf("engine.rescan_budget must be >= 1, got %d", c.Engine.RescanBudget)
	}
	if c.Repair.MaxAttempts < 0 {
		return fmt.Errorf("repair.max_attempts must be >= 0, got %d", c.Repair.MaxAttempts)
	}
	if c.Resolver.AcceptThreshold <= 0 || c.Resolver.AcceptThreshold > 1 {
		return fmt.Errorf("resolver.accept_threshold must be in (0, 1], got %f", c.Resolver.AcceptThreshold)
	}
	if c.Resolver.AIConfidenceCap < 0 || c.Resolver.AIConfidenceCap > 1 {
		return fmt.Errorf("resolver.ai_confidence_cap must be in [0, 1], got %f", c.Resolver.AIConfidenceCap)
	}
	switch c.Memory.Backend {
	case "sqlite", "postgres", "memory":
	default:
		return fmt.Errorf("memory.backend must be sqlite, postgres or memory, got %q", c.Memory.Backend)
	}
	if c.Memory.Backend == "postgres" && c.Memory.PostgresDSN == "" {
		return fmt.Errorf("memory.postgres_dsn is required for the postgres backend")
	}
	// Enter is how forms get submitted by accident; refuse it outright.
	if c.Executor.ConfirmKey == "Enter" {
		return fmt.Errorf("executor.confirm_key must not be a submission-triggering key")
	}
	return nil
}

// DefaultSQLitePath resolves the learned-store location under the user home
// directory when memory.sqlite_path is not set.
func DefaultSQLitePath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".formpilot", "learned.db"), nil
}
