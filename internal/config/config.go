package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/contract-intel/internal/monitoring"
	"github.com/sells-group/contract-intel/internal/pipeline"
	"github.com/sells-group/contract-intel/internal/score"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig           `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig       `yaml:"anthropic" mapstructure:"anthropic"`
	PDF        PDFConfig             `yaml:"pdf" mapstructure:"pdf"`
	Score      score.Weights         `yaml:"score" mapstructure:"score"`
	Batch      pipeline.BatchConfig  `yaml:"batch" mapstructure:"batch"`
	Server     ServerConfig          `yaml:"server" mapstructure:"server"`
	Monitoring monitoring.Thresholds `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig             `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings for model-assisted extraction.
// PatternFallback degrades an unavailable model service to pattern extraction
// instead of rejecting the contract.
type AnthropicConfig struct {
	Key             string `yaml:"key" mapstructure:"key"`
	Model           string `yaml:"model" mapstructure:"model"`
	TimeoutSecs     int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts     int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	PatternFallback bool   `yaml:"pattern_fallback" mapstructure:"pattern_fallback"`
}

// PDFConfig configures PDF text acquisition.
type PDFConfig struct {
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
}

// ServerConfig configures the review API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CONTRACT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Keys with no meaningful default still need one registered,
	// or AutomaticEnv never surfaces their env var through Unmarshal.
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "contracts.db")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.timeout_secs", 30)
	v.SetDefault("anthropic.max_attempts", 2)
	v.SetDefault("anthropic.pattern_fallback", false)
	v.SetDefault("pdf.pdftotext_path", "pdftotext")
	w := score.DefaultWeights()
	v.SetDefault("score.text_quality", w.TextQuality)
	v.SetDefault("score.multi_page", w.MultiPage)
	v.SetDefault("score.tables", w.Tables)
	v.SetDefault("score.completeness", w.Completeness)
	v.SetDefault("score.keyword_bonus", w.KeywordBonus)
	v.SetDefault("score.keyword_cap", w.KeywordCap)
	v.SetDefault("score.error_penalty", w.ErrorPenalty)
	v.SetDefault("batch.workers", 4)
	v.SetDefault("batch.rate_per_second", 0)
	v.SetDefault("server.port", 8080)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.clarification_rate_threshold", 0.5)
	v.SetDefault("monitoring.rejected_rate_threshold", 0.25)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

	return &cfg, nil
}

// Validate checks that the configuration is usable for the given mode.
// Modes: "ingest" (single and batch processing), "serve" (review API),
// "export" and "clarify" (store access only).
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			problems = append(problems, "store.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
	default:
		problems = append(problems, "store.driver must be sqlite or postgres")
	}

	switch mode {
	case "ingest":
		if c.Batch.Workers < 1 || c.Batch.Workers > 32 {
			problems = append(problems, "batch.workers must be between 1 and 32")
		}
		if c.Anthropic.Key != "" && c.Anthropic.Model == "" {
			problems = append(problems, "anthropic.model is required when anthropic.key is set")
		}
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be > 0")
		}
	case "export", "clarify":
		// Store checks above are sufficient.
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
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
