// Package config loads runtime configuration for the backtester binary:
// the var directory used for job lock files and the state file, default backtest
// capital, job stall thresholds, log level, and the optional HTTP status
// server's bind address. Layering is env vars over an optional YAML file
// over built-in defaults, via spf13/viper.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/atlas-desktop/backtester/pkg/utils"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds every setting the CLI subcommands and daemons need. Zero
// value is never valid on its own — use Load, which fills in defaults.
type Config struct {
	// VarDir holds job lock files and is the default location for any
	// file-backed persistence adapter. Independent job classes each get
	// their own lock file inside it (see internal/dispatch).
	VarDir string `mapstructure:"var_dir"`

	// DefaultInitialCapital seeds run-backtest invocations that don't pass
	// --initial-capital explicitly. Monitors carry their own InitialCapital.
	DefaultInitialCapital decimal.Decimal `mapstructure:"default_initial_capital"`

	// PendingStaleAfter / RunningStaleAfter are loaded and validated
	// (2min / 30min by default) but not passed to internal/dispatch, whose
	// HealthCheck applies its own fixed 2-minute / 30-minute thresholds.
	PendingStaleAfter time.Duration `mapstructure:"pending_stale_after"`
	RunningStaleAfter time.Duration `mapstructure:"running_stale_after"`

	LogLevel string `mapstructure:"log_level"`

	HTTPHost    string `mapstructure:"http_host"`
	HTTPPort    int    `mapstructure:"http_port"`
	MetricsPort int    `mapstructure:"metrics_port"`

	// NotifyFromEmail / NotifyToEmail are read directly from the FROM_EMAIL
	// and TO_EMAIL environment variables (unprefixed, alongside SMTP_HOST,
	// SMTP_PORT, SMTP_USER, SMTP_PASS). The core engine has no notifier and
	// ignores their absence; when set, Load still rejects an obviously
	// malformed address rather than carrying it silently into a future
	// notifier.
	NotifyFromEmail string `mapstructure:"-"`
	NotifyToEmail   string `mapstructure:"-"`
}

// Load resolves configuration in the order: built-in defaults, then an
// optional YAML file at configPath (skipped silently if configPath is
// empty and no default config file is found), then environment
// variables prefixed BACKTESTER_ (e.g. BACKTESTER_VAR_DIR). Later
// sources win.
func Load(configPath string) (Config, error) {
	v := viper.New()

	v.SetDefault("var_dir", "./var")
	v.SetDefault("default_initial_capital", "10000")
	v.SetDefault("pending_stale_after", 2*time.Minute)
	v.SetDefault("running_stale_after", 30*time.Minute)
	v.SetDefault("log_level", "info")
	v.SetDefault("http_host", "127.0.0.1")
	v.SetDefault("http_port", 8090)
	v.SetDefault("metrics_port", 9090)

	v.SetEnvPrefix("backtester")
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: reading %s: %w", configPath, err)
		}
	} else {
		v.SetConfigName("backtester")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("config: reading default config: %w", err)
			}
		}
	}

	capitalStr := v.GetString("default_initial_capital")
	capital, err := decimal.NewFromString(capitalStr)
	if err != nil {
		return Config{}, fmt.Errorf("config: default_initial_capital %q is not a valid decimal: %w", capitalStr, err)
	}

	cfg := Config{
		VarDir:                v.GetString("var_dir"),
		DefaultInitialCapital: capital,
		PendingStaleAfter:     v.GetDuration("pending_stale_after"),
		RunningStaleAfter:     v.GetDuration("running_stale_after"),
		LogLevel:              v.GetString("log_level"),
		HTTPHost:              v.GetString("http_host"),
		HTTPPort:              v.GetInt("http_port"),
		MetricsPort:           v.GetInt("metrics_port"),
		NotifyFromEmail:       os.Getenv("FROM_EMAIL"),
		NotifyToEmail:         os.Getenv("TO_EMAIL"),
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.VarDir == "" {
		return fmt.Errorf("config: var_dir must not be empty")
	}
	if c.DefaultInitialCapital.Sign() <= 0 {
		return fmt.Errorf("config: default_initial_capital must be positive, got %s", c.DefaultInitialCapital)
	}
	if c.PendingStaleAfter <= 0 || c.RunningStaleAfter <= 0 {
		return fmt.Errorf("config: stall thresholds must be positive durations")
	}
	if c.NotifyFromEmail != "" && !utils.ValidateEmail(c.NotifyFromEmail) {
		return fmt.Errorf("config: FROM_EMAIL %q is not a valid address", c.NotifyFromEmail)
	}
	if c.NotifyToEmail != "" && !utils.ValidateEmail(c.NotifyToEmail) {
		return fmt.Errorf("config: TO_EMAIL %q is not a valid address", c.NotifyToEmail)
	}
	return nil
}
