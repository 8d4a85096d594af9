package config

import (
	"fmt"
	"os"
	"runtime"

	"github.com/jchantrell/soundrip/internal/cache"
	"github.com/spf13/viper"
)

type Config struct {
	OutputDir string `mapstructure:"output_dir"`
	Database  string `mapstructure:"database"`
	Catalog   bool   `mapstructure:"catalog"`
	Workers   int    `mapstructure:"workers"`
	Overwrite bool   `mapstructure:"overwrite"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// Load initializes and loads configuration from file
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("output_dir", "")
	v.SetDefault("database", cache.StateManager().GetCatalogPath())
	v.SetDefault("catalog", true)
	v.SetDefault("workers", runtime.NumCPU())
	v.SetDefault("overwrite", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	// Config file handling
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}

		v.AddConfigPath(home)
		v.AddConfigPath(".")
		v.SetConfigName("soundrip")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("soundrip")
	v.AutomaticEnv()

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the values that flags may have overridden after Load
func (c *Config) Validate() error {
	if err := validateLogLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid logging configuration: %w", err)
	}
	if err := validateLogFormat(c.LogFormat); err != nil {
		return fmt.Errorf("invalid logging configuration: %w", err)
	}
	if err := validateWorkers(c.Workers); err != nil {
		return fmt.Errorf("invalid worker configuration: %w", err)
	}
	if c.Catalog && c.Database == "" {
		return fmt.Errorf("invalid catalog configuration: database path cannot be empty")
	}
	return nil
}
