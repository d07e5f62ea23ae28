package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Places   PlacesConfig   `yaml:"places" mapstructure:"places"`
	LLM      LLMConfig      `yaml:"llm" mapstructure:"llm"`
	Evidence EvidenceConfig `yaml:"evidence" mapstructure:"evidence"`
	Scoring  ScoringConfig  `yaml:"scoring" mapstructure:"scoring"`
	Bulk     BulkConfig     `yaml:"bulk" mapstructure:"bulk"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// PlacesConfig holds place-search provider settings.
type PlacesConfig struct {
	Key              string  `yaml:"key" mapstructure:"key"`
	BaseURL          string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimitRPS     float64 `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	BiasRadiusMetres int     `yaml:"bias_radius_metres" mapstructure:"bias_radius_metres"`
}

// LLMConfig selects and configures the vision/summary model provider.
type LLMConfig struct {
	Provider       string  `yaml:"provider" mapstructure:"provider"` // "anthropic" or "openai"
	AnthropicKey   string  `yaml:"anthropic_key" mapstructure:"anthropic_key"`
	AnthropicModel string  `yaml:"anthropic_model" mapstructure:"anthropic_model"`
	OpenAIKey      string  `yaml:"openai_key" mapstructure:"openai_key"`
	OpenAIBaseURL  string  `yaml:"openai_base_url" mapstructure:"openai_base_url"`
	OpenAIModel    string  `yaml:"openai_model" mapstructure:"openai_model"`
	MaxTokens      int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature    float64 `yaml:"temperature" mapstructure:"temperature"`
}

// EvidenceConfig bounds evidence collection.
type EvidenceConfig struct {
	MaxImages     int `yaml:"max_images" mapstructure:"max_images"`
	MaxReviews    int `yaml:"max_reviews" mapstructure:"max_reviews"`
	PhotoMaxWidth int `yaml:"photo_max_width" mapstructure:"photo_max_width"`
}

// ScoringConfig holds the authenticity scorer weights and thresholds. The
// values mirror the historically calibrated constants; they are configurable
// for testability, not because better values are known.
type ScoringConfig struct {
	CategoryMatchMax    int `yaml:"category_match_max" mapstructure:"category_match_max"`
	CategoryMatchRetail int `yaml:"category_match_retail" mapstructure:"category_match_retail"`
	CategoryMatchBrands int `yaml:"category_match_brands" mapstructure:"category_match_brands"`

	BrandMax    int `yaml:"brand_max" mapstructure:"brand_max"`
	BrandMid    int `yaml:"brand_mid" mapstructure:"brand_mid"`
	BrandLow    int `yaml:"brand_low" mapstructure:"brand_low"`
	BrandFloor  int `yaml:"brand_floor" mapstructure:"brand_floor"`
	BrandManyAt int `yaml:"brand_many_at" mapstructure:"brand_many_at"`
	BrandSomeAt int `yaml:"brand_some_at" mapstructure:"brand_some_at"`
	BrandFewAt  int `yaml:"brand_few_at" mapstructure:"brand_few_at"`

	TypeMax           int `yaml:"type_max" mapstructure:"type_max"`
	TypeLowConfidence int `yaml:"type_low_confidence" mapstructure:"type_low_confidence"`

	ImageMax       int `yaml:"image_max" mapstructure:"image_max"`
	ImagePartial   int `yaml:"image_partial" mapstructure:"image_partial"`
	ImageFullAt    int `yaml:"image_full_at" mapstructure:"image_full_at"`
	ImagePartialAt int `yaml:"image_partial_at" mapstructure:"image_partial_at"`

	ConfidenceThreshold int `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`
}

// BulkConfig configures the bulk runner.
type BulkConfig struct {
	BatchSize       int           `yaml:"batch_size" mapstructure:"batch_size"`
	BatchDelay      time.Duration `yaml:"batch_delay" mapstructure:"batch_delay"`
	LocalSourceDir  string        `yaml:"local_source_dir" mapstructure:"local_source_dir"`
}

// StoreConfig configures the persistence backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// ServerConfig configures the HTTP API server.
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
	v.SetEnvPrefix("RETAIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("places.base_url", "https://maps.googleapis.com/maps/api/place")
	v.SetDefault("places.timeout_secs", 15)
	v.SetDefault("places.rate_limit_rps", 10)
	v.SetDefault("places.bias_radius_metres", 50)
	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.anthropic_model", "claude-haiku-4-5-20251001")
	v.SetDefault("llm.openai_base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("llm.openai_model", "meta-llama/llama-4-scout-17b-16e-instruct")
	v.SetDefault("llm.max_tokens", 1200)
	v.SetDefault("llm.temperature", 0.05)
	v.SetDefault("evidence.max_images", 4)
	v.SetDefault("evidence.max_reviews", 10)
	v.SetDefault("evidence.photo_max_width", 800)
	v.SetDefault("scoring.category_match_max", 30)
	v.SetDefault("scoring.category_match_retail", 18)
	v.SetDefault("scoring.category_match_brands", 12)
	v.SetDefault("scoring.brand_max", 30)
	v.SetDefault("scoring.brand_mid", 20)
	v.SetDefault("scoring.brand_low", 10)
	v.SetDefault("scoring.brand_floor", 5)
	v.SetDefault("scoring.brand_many_at", 8)
	v.SetDefault("scoring.brand_some_at", 4)
	v.SetDefault("scoring.brand_few_at", 2)
	v.SetDefault("scoring.type_max", 25)
	v.SetDefault("scoring.type_low_confidence", 12)
	v.SetDefault("scoring.image_max", 15)
	v.SetDefault("scoring.image_partial", 8)
	v.SetDefault("scoring.image_full_at", 3)
	v.SetDefault("scoring.image_partial_at", 1)
	v.SetDefault("scoring.confidence_threshold", 75)
	v.SetDefault("bulk.batch_size", 3)
	v.SetDefault("bulk.batch_delay", "2s")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "retail-verify.db")
	v.SetDefault("server.port", 8080)
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
