// Package config loads CLI settings from a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Mode names accepted by the CLI.
const (
	ModeChunks = "chunks"
	ModeParts  = "parts"
)

// Config holds settings shared by the compress and decompress commands.
// Zero values mean "use the library default".
type Config struct {
	Mode    string `yaml:"mode"`
	Workers int    `yaml:"workers"`
	Verbose bool   `yaml:"verbose"`

	Compress   Compress   `yaml:"compress"`
	Decompress Decompress `yaml:"decompress"`
}

// Compress holds archive settings.
type Compress struct {
	Output         string   `yaml:"output"`
	ChunkSize      int      `yaml:"chunk_size"`
	MaxPartBytes   int      `yaml:"max_part_bytes"`
	MaxFileSize    uint64   `yaml:"max_file_size"`
	MaxDictSize    int      `yaml:"max_dict_size"`
	NoDictionary   bool     `yaml:"no_dictionary"`
	ExcludeDirs    []string `yaml:"exclude_dirs"`
	Exclude        []string `yaml:"exclude"`
	Include        []string `yaml:"include"`
	TextExtensions []string `yaml:"text_extensions"`
	Overwrite      bool     `yaml:"overwrite"`
}

// Decompress holds restore settings.
type Decompress struct {
	Output string `yaml:"output"`
	Force  bool   `yaml:"force"`
}

// Load reads the YAML file at path. An empty path returns a zero Config.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch c.Mode {
	case "", ModeChunks, ModeParts:
	default:
		return fmt.Errorf("mode must be %q or %q, got %q", ModeChunks, ModeParts, c.Mode)
	}
	if c.Workers < 0 {
		return errors.New("workers cannot be negative")
	}
	if c.Compress.ChunkSize < 0 {
		return errors.New("compress.chunk_size cannot be negative")
	}
	if c.Compress.MaxPartBytes < 0 {
		return errors.New("compress.max_part_bytes cannot be negative")
	}
	if c.Compress.MaxDictSize < 0 {
		return errors.New("compress.max_dict_size cannot be negative")
	}
	return nil
}
