// internal/config/config.go - Configuration management
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"hydromask/internal/dataset"
)

// Config represents the complete application configuration
type Config struct {
	Dataset DatasetConfig `mapstructure:"dataset"`
	Query   QueryConfig   `mapstructure:"query"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// DatasetConfig describes the raster sources and the tile cache in front of
// them. Sources are listed in priority order: the first source whose extent
// covers a query point answers it.
type DatasetConfig struct {
	Sources      []string `mapstructure:"sources"`
	EPSG         int      `mapstructure:"epsg"`
	TileSize     int      `mapstructure:"tile_size"`
	MaxCacheSize int      `mapstructure:"max_cache_size"`
}

// QueryConfig contains query execution configuration
type QueryConfig struct {
	// Threads is the worker count for batch queries; 0 uses all available
	// parallelism, 1 runs sequentially.
	Threads int `mapstructure:"threads"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Verbose bool `mapstructure:"verbose"`
}

// Load loads configuration from flags, environment, and config file
func Load() (*Config, error) {
	setDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := Validate(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults configures default values for all configuration options
func setDefaults() {
	viper.SetDefault("dataset.epsg", dataset.DefaultEPSG)
	viper.SetDefault("dataset.tile_size", dataset.DefaultTileSize)
	viper.SetDefault("dataset.max_cache_size", dataset.DefaultMaxCacheSize)

	viper.SetDefault("query.threads", 0)

	viper.SetDefault("logging.verbose", false)
}

// ToOptions converts the dataset section into construction options
func (c *Config) ToOptions() dataset.Options {
	return dataset.Options{
		EPSG:         c.Dataset.EPSG,
		TileSize:     c.Dataset.TileSize,
		MaxCacheSize: c.Dataset.MaxCacheSize,
	}
}
