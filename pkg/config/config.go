// Package config provides configuration loading and management for volumetiles.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Tiling parameters
	Tiling struct {
		// TileSize is the edge length of the square tiles
		TileSize int `yaml:"tileSize"`

		// NumCores specifies how many slices are tiled concurrently
		NumCores int `yaml:"numCores"`

		// Normalize standardizes every tile feature to zero mean and unit variance
		Normalize bool `yaml:"normalize"`
	} `yaml:"tiling"`

	// Input parameters
	Input struct {
		// Dir is the directory holding the slice images
		Dir string `yaml:"dir"`
	} `yaml:"input"`

	// Output parameters
	Output struct {
		// Dir receives the exported dataset and any images
		Dir string `yaml:"dir"`

		// SaveTileImages writes every tile as an image
		SaveTileImages bool `yaml:"saveTileImages"`

		// SaveMosaics writes one tile mosaic per slice
		SaveMosaics bool `yaml:"saveMosaics"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`

	// Similarity parameters
	Similarity struct {
		// Neighbors is how many nearest tiles to report per slice; 0 disables the search
		Neighbors int `yaml:"neighbors"`
	} `yaml:"similarity"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Tiling.TileSize = 16
	cfg.Tiling.NumCores = runtime.NumCPU()
	cfg.Tiling.Normalize = false

	cfg.Output.Dir = "tiles_output"
	cfg.Output.SaveTileImages = false
	cfg.Output.SaveMosaics = false
	cfg.Output.Verbose = true

	cfg.Similarity.Neighbors = 0

	return cfg
}

// Validate checks the configuration for values the pipeline cannot use
func (c *Config) Validate() error {
	if c.Tiling.TileSize <= 0 {
		return fmt.Errorf("tiling.tileSize must be positive, got %d", c.Tiling.TileSize)
	}
	if c.Tiling.NumCores < 0 {
		return fmt.Errorf("tiling.numCores must not be negative, got %d", c.Tiling.NumCores)
	}
	if c.Input.Dir == "" {
		return fmt.Errorf("input.dir is required")
	}
	if c.Output.Dir == "" {
		return fmt.Errorf("output.dir is required")
	}
	if c.Similarity.Neighbors < 0 {
		return fmt.Errorf("similarity.neighbors must not be negative, got %d", c.Similarity.Neighbors)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
