// Package config loads service settings from .env, an optional YAML file,
// environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DefaultDBPath          = "data/embeddings.db"
	DefaultAddr            = "127.0.0.1:8000"
	DefaultRefreshInterval = 5 * time.Minute
	DefaultDimension       = 512
	DefaultBatchSize       = 64
	DefaultEmbedHost       = "http://localhost:11434"
	DefaultEmbedModel      = "clip-vit-base-patch32"

	envPrefix = "IMAGE_SEARCH"
)

type Config struct {
	DBPath          string        `mapstructure:"db_path"`
	Directory       string        `mapstructure:"directory"` // empty disables background refresh
	Recursive       bool          `mapstructure:"recursive"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	RetryFailed     bool          `mapstructure:"retry_failed"`
	Addr            string        `mapstructure:"addr"`
	Log             LogConfig     `mapstructure:"log"`
	Embed           EmbedConfig   `mapstructure:"embed"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json
}

// EmbedConfig configures the embedding service.
type EmbedConfig struct {
	Provider         string  `mapstructure:"provider"` // http or openai
	Host             string  `mapstructure:"host"`
	Model            string  `mapstructure:"model"`
	APIKey           string  `mapstructure:"api_key"`
	Dimension        int     `mapstructure:"dimension"`
	BatchSize        int     `mapstructure:"batch_size"`
	BatchesPerSecond float64 `mapstructure:"batches_per_second"` // 0 = unlimited
}

// New returns a viper instance carrying defaults and environment bindings.
// Callers may bind flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("db_path", DefaultDBPath)
	v.SetDefault("directory", "")
	v.SetDefault("recursive", true)
	v.SetDefault("refresh_interval", DefaultRefreshInterval)
	v.SetDefault("retry_failed", false)
	v.SetDefault("addr", DefaultAddr)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("embed.provider", "http")
	v.SetDefault("embed.host", DefaultEmbedHost)
	v.SetDefault("embed.model", DefaultEmbedModel)
	v.SetDefault("embed.api_key", "")
	v.SetDefault("embed.dimension", DefaultDimension)
	v.SetDefault("embed.batch_size", DefaultBatchSize)
	v.SetDefault("embed.batches_per_second", 0)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Short names kept for .env files.
	_ = v.BindEnv("db_path", envPrefix+"_DB_PATH", "DB_PATH")
	_ = v.BindEnv("directory", envPrefix+"_DIRECTORY", "IMAGE_DIR")
	_ = v.BindEnv("embed.host", envPrefix+"_EMBED_HOST", "EMBED_HOST")
	_ = v.BindEnv("embed.model", envPrefix+"_EMBED_MODEL", "EMBED_MODEL")
	_ = v.BindEnv("embed.api_key", envPrefix+"_EMBED_API_KEY", "OPENAI_API_KEY")

	return v
}

// Load reads .env, then the config file (configFile, or image-search.yaml in
// the working directory when empty), and unmarshals the merged settings.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	_ = godotenv.Load()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("image-search")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch c.Embed.Provider {
	case "http", "openai":
	default:
		return fmt.Errorf("unknown embed.provider %q (valid: http, openai)", c.Embed.Provider)
	}
	if c.DBPath == "" {
		return errors.New("db_path is required")
	}
	if c.Embed.Dimension <= 0 {
		return fmt.Errorf("embed.dimension must be positive, got %d", c.Embed.Dimension)
	}
	if c.Embed.BatchSize <= 0 {
		return fmt.Errorf("embed.batch_size must be positive, got %d", c.Embed.BatchSize)
	}
	if c.Embed.BatchesPerSecond < 0 {
		return fmt.Errorf("embed.batches_per_second must not be negative, got %v", c.Embed.BatchesPerSecond)
	}
	if c.Directory != "" && c.RefreshInterval <= 0 {
		return fmt.Errorf("refresh_interval must be positive, got %s", c.RefreshInterval)
	}
	return nil
}
