// Package config provides configuration loading and structs for the memory
// store.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the store.
type Config struct {
	Debug   bool          `yaml:"debug"`
	Storage StorageConfig `yaml:"storage"`
	Search  SearchConfig  `yaml:"search"`
	Trust   TrustConfig   `yaml:"trust"`
}

// StorageConfig holds database and extension paths.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	// VecExtensionPath points at the sqlite-vec loadable extension.
	// Empty or unloadable selects the brute-force vector path.
	VecExtensionPath string `yaml:"vec_extension_path"`
}

// SearchConfig holds retrieval and fusion settings.
type SearchConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
	// TopKCandidates is how many candidates each retrieval path feeds
	// into fusion before the final limit is applied.
	TopKCandidates int     `yaml:"top_k_candidates"`
	VectorWeight   float64 `yaml:"vector_weight"`
	TextWeight     float64 `yaml:"text_weight"`
}

// TrustConfig holds trust scoring settings.
type TrustConfig struct {
	HalfLifeDays         float64 `yaml:"half_life_days"`
	ContradictionPenalty float64 `yaml:"contradiction_penalty"`
	DefaultTrust         float64 `yaml:"default_trust"`
	// TrustWeight is the default blend used by the CLI when trust
	// scoring is requested without an explicit weight.
	TrustWeight float64 `yaml:"trust_weight"`
}

// Load reads and parses the config file at path, expands paths, and
// applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	if cfg.Storage.VecExtensionPath != "" {
		cfg.Storage.VecExtensionPath = expandPath(cfg.Storage.VecExtensionPath, configDir)
	}
	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are
// relative to configDir; other relative paths are relative to the home
// directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
