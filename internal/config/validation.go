// internal/config/validation.go - Configuration validation
package config

import (
	"fmt"
	"os"
)

// Validate validates the configuration structure and values
func Validate(config *Config) error {
	if err := validateDataset(&config.Dataset); err != nil {
		return fmt.Errorf("dataset configuration invalid: %w", err)
	}

	if err := validateQuery(&config.Query); err != nil {
		return fmt.Errorf("query configuration invalid: %w", err)
	}

	return nil
}

// validateDataset validates raster source and cache configuration
func validateDataset(config *DatasetConfig) error {
	if len(config.Sources) == 0 {
		return fmt.Errorf("at least one source is required")
	}

	for _, path := range config.Sources {
		if path == "" {
			return fmt.Errorf("source paths must not be empty")
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("source %s is not readable: %w", path, err)
		}
	}

	if config.EPSG <= 0 {
		return fmt.Errorf("epsg must be positive")
	}

	if config.TileSize <= 0 {
		return fmt.Errorf("tile_size must be positive")
	}

	if config.TileSize > 4096 {
		return fmt.Errorf("tile_size must not exceed 4096")
	}

	if config.MaxCacheSize <= 0 {
		return fmt.Errorf("max_cache_size must be positive")
	}

	return nil
}

// validateQuery validates query execution configuration
func validateQuery(config *QueryConfig) error {
	if config.Threads < 0 {
		return fmt.Errorf("threads must be non-negative")
	}

	if config.Threads > 1024 {
		return fmt.Errorf("threads must not exceed 1024")
	}

	return nil
}
