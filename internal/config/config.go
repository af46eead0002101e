// Package config loads sweep configuration from defaults, an optional config
// file, the environment (SWEEP_ prefix, optional .env) and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"strategy-sweep-lab/internal/analysis"
	"strategy-sweep-lab/internal/domain"
	"strategy-sweep-lab/internal/paramspace"
)

// EnvPrefix prefixes every environment override, e.g. SWEEP_STORAGE_BACKEND.
const EnvPrefix = "SWEEP"

// Config holds all configuration for the command-line tools.
type Config struct {
	Level           string        `mapstructure:"level" validate:"required"`
	Symbols         []string      `mapstructure:"symbols" validate:"min=1"`
	SkipComplete    bool          `mapstructure:"skip_complete"`
	Force           bool          `mapstructure:"force"`
	RetryFailed     bool          `mapstructure:"retry_failed"`
	Yes             bool          `mapstructure:"yes"`
	CheckpointEvery int           `mapstructure:"checkpoint_every" validate:"gte=1"`
	MaxAttempts     int           `mapstructure:"max_attempts" validate:"gte=1"`
	RetryPause      time.Duration `mapstructure:"retry_pause" validate:"gte=0"`
	Workers         int           `mapstructure:"workers" validate:"gte=1"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	TimingsCSV      string        `mapstructure:"timings_csv"`

	Progress  ProgressConfig  `mapstructure:"progress"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Evaluator EvaluatorConfig `mapstructure:"evaluator"`
	Log       LogConfig       `mapstructure:"log"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Estimate  EstimateConfig  `mapstructure:"estimate"`
}

// ProgressConfig configures the progress line.
type ProgressConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Window   int           `mapstructure:"window" validate:"gte=1"`
	Fallback time.Duration `mapstructure:"fallback" validate:"gt=0"`
}

// StorageConfig selects the result table store.
type StorageConfig struct {
	Backend       string `mapstructure:"backend" validate:"oneof=xlsx postgres clickhouse memory"`
	Dir           string `mapstructure:"dir"`
	PostgresDSN   string `mapstructure:"postgres_dsn" validate:"required_if=Backend postgres"`
	ClickhouseDSN string `mapstructure:"clickhouse_dsn" validate:"required_if=Backend clickhouse"`
}

// EvaluatorConfig configures the evaluation collaborator.
type EvaluatorConfig struct {
	Kind        string         `mapstructure:"kind" validate:"oneof=ws stub"`
	URLs        []string       `mapstructure:"urls" validate:"required_if=Kind ws,dive,url"`
	ReadTimeout time.Duration  `mapstructure:"read_timeout" validate:"gt=0"`
	CallTimeout time.Duration  `mapstructure:"call_timeout" validate:"gt=0"`
	Baseline    BaselineConfig `mapstructure:"baseline"`
}

// BaselineConfig is the parameter set restored after each instrument.
type BaselineConfig struct {
	ATRMultiplier float64 `mapstructure:"atr_multiplier" validate:"gt=0"`
	RiskReward    float64 `mapstructure:"risk_reward" validate:"gt=0"`
	VolMultiplier float64 `mapstructure:"vol_multiplier" validate:"gt=0"`
}

// Combination returns the baseline as a parameter combination.
func (b BaselineConfig) Combination() domain.Combination {
	return domain.Combination{ATRMultiplier: b.ATRMultiplier, RiskReward: b.RiskReward, VolMultiplier: b.VolMultiplier}
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// AnalysisConfig holds analyzer filters, weights and output location.
type AnalysisConfig struct {
	Filters   analysis.Filters `mapstructure:"filters"`
	Weights   analysis.Weights `mapstructure:"weights"`
	OutputDir string           `mapstructure:"output_dir"`
}

// EstimateConfig holds the time estimator's assumptions.
type EstimateConfig struct {
	SecondsPerTest float64 `mapstructure:"seconds_per_test" validate:"gt=0"`
}

// ParsedLevel returns the canonical level. Valid after Load.
func (c *Config) ParsedLevel() paramspace.Level {
	return paramspace.Level(c.Level)
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"config":           "config",
	"level":            "level",
	"symbols":          "symbols",
	"skip-complete":    "skip_complete",
	"force":            "force",
	"retry-failed":     "retry_failed",
	"yes":              "yes",
	"checkpoint-every": "checkpoint_every",
	"max-attempts":     "max_attempts",
	"retry-pause":      "retry_pause",
	"workers":          "workers",
	"metrics-addr":     "metrics_addr",
	"timings-csv":      "timings_csv",
	"progress-window":  "progress.window",
	"storage":          "storage.backend",
	"storage-dir":      "storage.dir",
	"postgres-dsn":     "storage.postgres_dsn",
	"clickhouse-dsn":   "storage.clickhouse_dsn",
	"evaluator":        "evaluator.kind",
	"evaluator-url":    "evaluator.urls",
	"read-timeout":     "evaluator.read_timeout",
	"log-level":        "log.level",
	"log-pretty":       "log.pretty",
	"output-dir":       "analysis.output_dir",
	"seconds-per-test": "estimate.seconds_per_test",
}

// RegisterCommonFlags adds the flags shared by every tool.
func RegisterCommonFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Config file (yaml, toml or json)")
	fs.String("level", "", "Test level: COARSE, FINE or FULL")
	fs.StringSlice("symbols", nil, "Instruments or groups (majors, minors, exotics, all)")
	fs.String("storage", "", "Result store backend: xlsx, postgres, clickhouse, memory")
	fs.String("storage-dir", "", "Directory of workbook results")
	fs.String("postgres-dsn", "", "PostgreSQL connection string")
	fs.String("clickhouse-dsn", "", "ClickHouse connection string")
	fs.String("log-level", "", "Log level: debug, info, warn, error")
	fs.Bool("log-pretty", true, "Human-readable console logs")
}

// Load resolves the configuration. Flags that were not set on the command
// line do not override lower-precedence sources.
func Load(fs *pflag.FlagSet) (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for name, key := range flagKeys {
			f := fs.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() error {
	level, err := paramspace.ParseLevel(c.Level)
	if err != nil {
		return err
	}
	c.Level = string(level)

	symbols, err := ResolveSymbols(c.Symbols)
	if err != nil {
		return err
	}
	c.Symbols = symbols

	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	c.Evaluator.Kind = strings.ToLower(strings.TrimSpace(c.Evaluator.Kind))
	return nil
}

var validate = validator.New()

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, describe(fe))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Workers > 1 && c.Evaluator.Kind == "ws" && len(c.Evaluator.URLs) < c.Workers {
		return fmt.Errorf("invalid config: %d workers need %d evaluator urls, got %d",
			c.Workers, c.Workers, len(c.Evaluator.URLs))
	}
	return nil
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	if fe.Param() != "" {
		return fmt.Sprintf("%s failed %s=%s (got %v)", field, fe.Tag(), fe.Param(), fe.Value())
	}
	return fmt.Sprintf("%s failed %s (got %v)", field, fe.Tag(), fe.Value())
}

// setDefaults sets default values for configuration.
func setDefaults(v *viper.Viper) {
	v.SetDefault("config", "")

	// Sweep defaults
	v.SetDefault("level", string(paramspace.Fine))
	v.SetDefault("symbols", []string{})
	v.SetDefault("skip_complete", false)
	v.SetDefault("force", false)
	v.SetDefault("retry_failed", false)
	v.SetDefault("yes", false)
	v.SetDefault("checkpoint_every", 200)
	v.SetDefault("max_attempts", 3)
	v.SetDefault("retry_pause", "500ms")
	v.SetDefault("workers", 1)
	v.SetDefault("metrics_addr", "")
	v.SetDefault("timings_csv", "sweep_timings.csv")

	// Progress defaults
	v.SetDefault("progress.enabled", true)
	v.SetDefault("progress.window", 100)
	v.SetDefault("progress.fallback", "5s")

	// Storage defaults
	v.SetDefault("storage.backend", "xlsx")
	v.SetDefault("storage.dir", ".")
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("storage.clickhouse_dsn", "")

	// Evaluator defaults
	v.SetDefault("evaluator.kind", "ws")
	v.SetDefault("evaluator.urls", []string{"ws://127.0.0.1:9333/sweep"})
	v.SetDefault("evaluator.read_timeout", "10s")
	v.SetDefault("evaluator.call_timeout", "15s")
	base := domain.DefaultBaseline
	v.SetDefault("evaluator.baseline.atr_multiplier", base.ATRMultiplier)
	v.SetDefault("evaluator.baseline.risk_reward", base.RiskReward)
	v.SetDefault("evaluator.baseline.vol_multiplier", base.VolMultiplier)

	// Logging defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", true)

	// Analysis defaults
	f := analysis.DefaultFilters()
	v.SetDefault("analysis.filters.min_trades", f.MinTrades)
	v.SetDefault("analysis.filters.max_drawdown", f.MaxDrawdown)
	v.SetDefault("analysis.filters.min_profit_factor", f.MinProfitFactor)
	v.SetDefault("analysis.filters.min_win_rate", f.MinWinRate)
	w := analysis.DefaultWeights()
	v.SetDefault("analysis.weights.profit", w.Profit)
	v.SetDefault("analysis.weights.win_rate", w.WinRate)
	v.SetDefault("analysis.weights.profit_factor", w.ProfitFactor)
	v.SetDefault("analysis.weights.drawdown", w.Drawdown)
	v.SetDefault("analysis.output_dir", ".")

	// Estimate defaults
	v.SetDefault("estimate.seconds_per_test", 4.0)
}
