/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package config

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ssargent/datapak/pkg/codec"
	"github.com/ssargent/datapak/pkg/enumerate"
	"github.com/ssargent/datapak/pkg/pack"
)

// Mode names the direction of a run.
type Mode string

const (
	ModeWrite   Mode = "write"
	ModeRecover Mode = "recover"
)

// Config represents the datapak configuration
type Config struct {
	Mode            Mode     `yaml:"mode,omitempty"`
	SourceRoot      string   `yaml:"source_root"`
	ListFile        string   `yaml:"list_file,omitempty"`
	DestinationRoot string   `yaml:"destination_root"`
	StorePath       string   `yaml:"store_path"`
	BatchSize       int      `yaml:"batch_size"`
	Overwrite       bool     `yaml:"overwrite"`
	DuplicatePolicy string   `yaml:"duplicate_policy"`
	Include         []string `yaml:"include,omitempty"`
	Exclude         []string `yaml:"exclude,omitempty"`
	Checksum        string   `yaml:"checksum_algorithm"`
	KeyScheme       string   `yaml:"key_scheme"`
	MaxEntryBytes   int64    `yaml:"max_entry_bytes"`
	Workers         int      `yaml:"workers"`
	Sync            bool     `yaml:"sync"`
	Strict          bool     `yaml:"strict"`
	ProgressEvery   int      `yaml:"progress_every"`
	MetricsFile     string   `yaml:"metrics_file,omitempty"`
	Datasets        []string `yaml:"datasets,omitempty"`
	DatasetInfo     string   `yaml:"dataset_info,omitempty"`
	Logging         Logging  `yaml:"logging"`
	Serve           Serve    `yaml:"serve"`
}

// Logging contains logging configuration
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Serve contains the read-only HTTP API configuration
type Serve struct {
	Addr   string `yaml:"addr"`
	APIKey string `yaml:"api_key,omitempty"`
}

// ConfigError reports an invalid configuration. It is raised before any
// store is touched.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "invalid config: " + e.Reason
	}
	return fmt.Sprintf("invalid config: %s: %s", e.Field, e.Reason)
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		StorePath:       "./data.pak",
		BatchSize:       pack.DefaultBatchSize,
		DuplicatePolicy: string(pack.DefaultPolicy),
		Checksum:        string(codec.DefaultAlgorithm),
		KeyScheme:       string(codec.PathKeys),
		MaxEntryBytes:   256 << 20,
		Sync:            true,
		ProgressEvery:   1000,
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
		Serve: Serve{
			Addr: ":9200",
		},
	}
}

// LoadConfig loads and validates the configuration at configPath. Relative
// paths inside it are resolved against the directory holding the file.
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}

	if !filepath.IsAbs(configPath) {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}
		configPath = absPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config, err := Parse(data)
	if err != nil {
		return nil, err
	}
	config.resolve(filepath.Dir(configPath))
	return config, nil
}

// Parse decodes YAML on top of DefaultConfig and validates the result.
// Unknown fields are rejected.
func Parse(data []byte) (*Config, error) {
	config := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return nil, &ConfigError{Reason: err.Error()}
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) resolve(base string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	c.SourceRoot = abs(c.SourceRoot)
	c.ListFile = abs(c.ListFile)
	c.DestinationRoot = abs(c.DestinationRoot)
	c.StorePath = abs(c.StorePath)
	c.MetricsFile = abs(c.MetricsFile)
	c.DatasetInfo = abs(c.DatasetInfo)
}

// Validate checks every field eagerly and returns the first problem as a
// *ConfigError.
func (c *Config) Validate() error {
	switch c.Mode {
	case "", ModeWrite, ModeRecover:
	default:
		return &ConfigError{Field: "mode", Reason: fmt.Sprintf("unknown mode %q (want write or recover)", c.Mode)}
	}
	if c.BatchSize <= 0 {
		return &ConfigError{Field: "batch_size", Reason: "must be positive"}
	}
	if c.MaxEntryBytes <= 0 {
		return &ConfigError{Field: "max_entry_bytes", Reason: "must be positive"}
	}
	if c.Workers < 0 {
		return &ConfigError{Field: "workers", Reason: "must not be negative"}
	}
	if c.ProgressEvery < 0 {
		return &ConfigError{Field: "progress_every", Reason: "must not be negative"}
	}
	policy, err := pack.ParsePolicy(c.DuplicatePolicy)
	if err != nil {
		return &ConfigError{Field: "duplicate_policy", Reason: err.Error()}
	}
	if c.Overwrite && policy == pack.PolicySkip {
		return &ConfigError{Field: "overwrite", Reason: fmt.Sprintf("conflicts with duplicate_policy %q", c.DuplicatePolicy)}
	}
	if _, err := codec.ParseAlgorithm(c.Checksum); err != nil {
		return &ConfigError{Field: "checksum_algorithm", Reason: err.Error()}
	}
	if _, err := codec.ParseKeyScheme(c.KeyScheme); err != nil {
		return &ConfigError{Field: "key_scheme", Reason: err.Error()}
	}
	for _, p := range c.Include {
		if err := enumerate.ValidatePattern(p); err != nil {
			return &ConfigError{Field: "include", Reason: err.Error()}
		}
	}
	for _, p := range c.Exclude {
		if err := enumerate.ValidatePattern(p); err != nil {
			return &ConfigError{Field: "exclude", Reason: err.Error()}
		}
	}
	if len(c.Datasets) > 0 && c.DatasetInfo == "" {
		return &ConfigError{Field: "datasets", Reason: "dataset_info is required when datasets are named"}
	}
	if _, err := c.Logging.level(); err != nil {
		return &ConfigError{Field: "logging.level", Reason: err.Error()}
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return &ConfigError{Field: "logging.format", Reason: fmt.Sprintf("unknown format %q (want text or json)", c.Logging.Format)}
	}
	return nil
}

// RequireWrite checks the fields a write run needs.
func (c *Config) RequireWrite() error {
	if c.Mode == ModeRecover {
		return &ConfigError{Field: "mode", Reason: "config is for recover, not write"}
	}
	if c.SourceRoot == "" {
		return &ConfigError{Field: "source_root", Reason: "required for write"}
	}
	if c.StorePath == "" {
		return &ConfigError{Field: "store_path", Reason: "required"}
	}
	return nil
}

// RequireRecover checks the fields a recover run needs.
func (c *Config) RequireRecover() error {
	if c.Mode == ModeWrite {
		return &ConfigError{Field: "mode", Reason: "config is for write, not recover"}
	}
	if c.DestinationRoot == "" {
		return &ConfigError{Field: "destination_root", Reason: "required for recover"}
	}
	if c.StorePath == "" {
		return &ConfigError{Field: "store_path", Reason: "required"}
	}
	return nil
}

// Policy returns the effective duplicate policy. Overwrite is shorthand for
// the overwrite policy.
func (c *Config) Policy() pack.Policy {
	if c.Overwrite {
		return pack.PolicyOverwrite
	}
	p, _ := pack.ParsePolicy(c.DuplicatePolicy)
	return p
}

// ChecksumAlgorithm returns the validated checksum algorithm.
func (c *Config) ChecksumAlgorithm() codec.Algorithm {
	a, _ := codec.ParseAlgorithm(c.Checksum)
	return a
}

// Scheme returns the validated key scheme.
func (c *Config) Scheme() codec.KeyScheme {
	s, _ := codec.ParseKeyScheme(c.KeyScheme)
	return s
}

// SaveConfig saves the configuration to the specified path with secure permissions
func SaveConfig(config *Config, configPath string) error {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600: the file may carry the API key
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GenerateSecureKey generates a cryptographically secure random key
func GenerateSecureKey(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate secure key: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// BootstrapConfig writes a default configuration for sourceRoot, with a
// generated API key for the serve command.
func BootstrapConfig(configPath, sourceRoot string) (*Config, error) {
	config := DefaultConfig()
	config.SourceRoot = sourceRoot
	config.DestinationRoot = "./recovered"

	apiKey, err := GenerateSecureKey(32) // 256 bits
	if err != nil {
		return nil, fmt.Errorf("failed to generate API key: %w", err)
	}
	config.Serve.APIKey = apiKey

	if err := SaveConfig(config, configPath); err != nil {
		return nil, fmt.Errorf("failed to save bootstrap config: %w", err)
	}

	return config, nil
}

// GetDefaultConfigPath returns the default configuration path for the current platform
func GetDefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./datapak.yaml"
	}

	// For Linux/macOS, use ~/.config/datapak/config.yaml
	configDir := filepath.Join(homeDir, ".config", "datapak")
	return filepath.Join(configDir, "config.yaml")
}

// ConfigExists checks if a configuration file exists
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return !os.IsNotExist(err)
}
