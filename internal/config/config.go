package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kgas-labs/kgas/internal/calibration"
	"github.com/kgas-labs/kgas/internal/quality"
	"github.com/kgas-labs/kgas/internal/uncertainty"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig        `yaml:"store" mapstructure:"store"`
	Anthropic   AnthropicConfig    `yaml:"anthropic" mapstructure:"anthropic"`
	Quality     quality.Config     `yaml:"quality" mapstructure:"quality"`
	Bayesian    BayesianConfig     `yaml:"bayesian" mapstructure:"bayesian"`
	Calibration calibration.Config `yaml:"calibration" mapstructure:"calibration"`
	Server      ServerConfig       `yaml:"server" mapstructure:"server"`
	Log         LogConfig          `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the lineage/artifact store backend.
type StoreConfig struct {
	// Driver is one of "sqlite", "postgres", or "memory".
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds Anthropic API settings for LLM-backed assessment.
type AnthropicConfig struct {
	Key            string  `yaml:"key" mapstructure:"key"`
	Model          string  `yaml:"model" mapstructure:"model"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	Burst          int     `yaml:"burst" mapstructure:"burst"`
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxConcurrent  int     `yaml:"max_concurrent" mapstructure:"max_concurrent"`

	// Retry and circuit breaker tuning for the API client.
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// BayesianConfig mirrors the engine tuning for the config surface.
type BayesianConfig struct {
	LogOddsScale    float64 `yaml:"log_odds_scale" mapstructure:"log_odds_scale"`
	MaxLogOddsShift float64 `yaml:"max_log_odds_shift" mapstructure:"max_log_odds_shift"`
}

// Engine converts the config section into the engine's own config type.
func (c BayesianConfig) Engine() uncertainty.BayesianConfig {
	return uncertainty.BayesianConfig{
		LogOddsScale:    c.LogOddsScale,
		MaxLogOddsShift: c.MaxLogOddsShift,
	}
}

// ServerConfig configures the read-only HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures the global zap logger.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from config.yaml (optional) and KGAS_* environment
// variables, applying defaults for everything unset.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("KGAS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "kgas.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.requests_per_sec", 2.0)
	v.SetDefault("anthropic.burst", 4)
	v.SetDefault("anthropic.timeout_secs", 60)
	v.SetDefault("anthropic.max_concurrent", 4)
	v.SetDefault("anthropic.max_attempts", 2)
	v.SetDefault("anthropic.failure_threshold", 5)
	v.SetDefault("anthropic.reset_timeout_secs", 30)
	v.SetDefault("quality.inherent_weight", 0.4)
	v.SetDefault("quality.provenance_weight", 0.3)
	v.SetDefault("quality.consistency_weight", 0.2)
	v.SetDefault("quality.completeness_weight", 0.1)
	v.SetDefault("quality.high_threshold", 0.8)
	v.SetDefault("quality.medium_threshold", 0.5)
	v.SetDefault("quality.overall_warn_threshold", 0.5)
	v.SetDefault("quality.component_warn_threshold", 0.6)
	v.SetDefault("quality.max_attributes", 20)
	v.SetDefault("quality.max_warnings", 5)
	v.SetDefault("quality.attribute_penalty", 0.1)
	v.SetDefault("quality.warning_penalty", 0.2)
	v.SetDefault("quality.duplicate_penalty", 0.15)
	v.SetDefault("quality.default_factor", 0.9)
	v.SetDefault("quality.partial_penalty", 0.8)
	v.SetDefault("quality.candidate_penalty", 0.9)
	v.SetDefault("quality.variance_penalty", 0.85)
	v.SetDefault("quality.variance_threshold", 0.2)
	v.SetDefault("bayesian.log_odds_scale", 2.0)
	v.SetDefault("bayesian.max_log_odds_shift", 3.0)
	v.SetDefault("calibration.max_iterations", 5)
	v.SetDefault("calibration.rate", 0.3)
	v.SetDefault("calibration.convergence_threshold", 0.15)
	v.SetDefault("calibration.floor", 0.05)
	v.SetDefault("calibration.ceiling", 0.95)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if cfg.Quality.OperationFactors == nil {
		cfg.Quality.OperationFactors = quality.DefaultConfig().OperationFactors
	}

	return &cfg, nil
}

// InitLogger builds the global zap logger from the log section.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
