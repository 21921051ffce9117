package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/spiffcs/deprecator/internal/constants"
	"github.com/spiffcs/deprecator/internal/ghclient"
	"github.com/spiffcs/deprecator/internal/rules"
)

// Environment variables holding secrets. Secrets are never read from files.
const (
	EnvGitHubToken = "GITHUB_TOKEN"
	EnvNPMToken    = "NPM_TOKEN"
	EnvAppID       = "GITHUB_APP_ID"
	EnvAppKey      = "GITHUB_APP_KEY"
)

// Config represents the application configuration
type Config struct {
	// Rules maps rule names to their parameter. A rule without a parameter
	// is written with an empty value.
	Rules map[string]string `yaml:"rules,omitempty" json:"rules,omitempty"`

	DryRun      *bool `yaml:"dry_run,omitempty" json:"dry_run,omitempty"`
	Workers     *int  `yaml:"workers,omitempty" json:"workers,omitempty"`
	Concurrency *int  `yaml:"concurrency,omitempty" json:"concurrency,omitempty"`

	Registry         string            `yaml:"registry,omitempty" json:"registry,omitempty"`
	ScopedRegistries map[string]string `yaml:"scoped_registries,omitempty" json:"scoped_registries,omitempty"`

	Repository string   `yaml:"repository,omitempty" json:"repository,omitempty"`
	Endpoint   string   `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	Exclude    []string `yaml:"exclude,omitempty" json:"exclude,omitempty"`

	DefaultFormat string `yaml:"default_format,omitempty" json:"default_format,omitempty"`
}

// DefaultConfigDir returns the default config directory
func DefaultConfigDir() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return ".deprecator"
	}
	return filepath.Join(configDir, "deprecator")
}

// ConfigPath returns the path to the global config file
func ConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// LocalConfigPath returns the path to the local config file in the current directory
func LocalConfigPath() string {
	return ".deprecator.yaml"
}

// Load loads the global config and merges the local .deprecator.yaml on top
// of it. Local values take precedence.
func Load() (*Config, error) {
	return LoadFrom(ConfigPath(), LocalConfigPath())
}

// LoadFrom is Load with explicit paths. Missing files are skipped.
func LoadFrom(globalPath, localPath string) (*Config, error) {
	cfg := &Config{}

	global, err := readFile(globalPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load global config file: %w", err)
	}
	if global != nil {
		cfg = global
	}

	local, err := readFile(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load local config file: %w", err)
	}
	if local != nil {
		cfg = mergeConfig(cfg, local)
	}

	if cfg.DefaultFormat == "" {
		cfg.DefaultFormat = "text"
	}
	return cfg, nil
}

func readFile(path string) (*Config, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &cfg, nil
}

// mergeConfig merges local config on top of global config.
// Local values take precedence; unset local values preserve global values.
func mergeConfig(global, local *Config) *Config {
	result := *global

	if local.Rules != nil {
		result.Rules = local.Rules
	}
	if local.DryRun != nil {
		result.DryRun = local.DryRun
	}
	if local.Workers != nil {
		result.Workers = local.Workers
	}
	if local.Concurrency != nil {
		result.Concurrency = local.Concurrency
	}
	if local.Registry != "" {
		result.Registry = local.Registry
	}
	if len(local.ScopedRegistries) > 0 {
		merged := make(map[string]string, len(global.ScopedRegistries)+len(local.ScopedRegistries))
		for scope, url := range global.ScopedRegistries {
			merged[scope] = url
		}
		for scope, url := range local.ScopedRegistries {
			merged[scope] = url
		}
		result.ScopedRegistries = merged
	}
	if local.Repository != "" {
		result.Repository = local.Repository
	}
	if local.Endpoint != "" {
		result.Endpoint = local.Endpoint
	}
	if len(local.Exclude) > 0 {
		result.Exclude = local.Exclude
	}
	if local.DefaultFormat != "" {
		result.DefaultFormat = local.DefaultFormat
	}

	return &result
}

// RuleConfig converts the configured rules. It returns nil when no rules
// mapping was configured.
func (c *Config) RuleConfig() rules.Config {
	if c.Rules == nil {
		return nil
	}
	out := make(rules.Config, len(c.Rules))
	for name, param := range c.Rules {
		out[rules.Name(name)] = rules.Parameter(param)
	}
	return out
}

// IsDryRun reports whether dry run is enabled in config.
func (c *Config) IsDryRun() bool {
	return c.DryRun != nil && *c.DryRun
}

// GetWorkers returns the configured workers or the default.
func (c *Config) GetWorkers() int {
	if c.Workers != nil && *c.Workers > 0 {
		return *c.Workers
	}
	return constants.DefaultWorkers
}

// GetConcurrency returns the configured concurrency or the default.
func (c *Config) GetConcurrency() int {
	if c.Concurrency != nil && *c.Concurrency > 0 {
		return *c.Concurrency
	}
	return constants.DefaultConcurrency
}

// GetGitHubToken returns the GitHub token from the environment.
func (c *Config) GetGitHubToken() string {
	return os.Getenv(EnvGitHubToken)
}

// GetNPMToken returns the registry token from the environment.
func (c *Config) GetNPMToken() string {
	return os.Getenv(EnvNPMToken)
}

// GetAppCredentials returns the GitHub App ID and private key (PEM text or a
// path) from the environment.
func (c *Config) GetAppCredentials() (id, key string) {
	return os.Getenv(EnvAppID), os.Getenv(EnvAppKey)
}

// DefaultConfig returns a fully populated config with all default values.
func DefaultConfig() *Config {
	dryRun := false
	workers := constants.DefaultWorkers
	concurrency := constants.DefaultConcurrency

	return &Config{
		Rules: map[string]string{
			string(rules.MajorVersions): "6",
			string(rules.PatchVersions): "",
		},
		DryRun:           &dryRun,
		Workers:          &workers,
		Concurrency:      &concurrency,
		Registry:         constants.DefaultRegistry,
		ScopedRegistries: map[string]string{},
		Endpoint:         ghclient.DefaultEndpoint,
		Exclude:          []string{},
		DefaultFormat:    "text",
	}
}

// ToYAML returns the config as a YAML string
func (c *Config) ToYAML() (string, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	return string(data), nil
}

// ConfigPathInfo contains information about config file paths
type ConfigPathInfo struct {
	GlobalPath   string
	GlobalExists bool
	LocalPath    string
	LocalExists  bool
}

// GetConfigPaths returns path info for both global and local configs
func GetConfigPaths() ConfigPathInfo {
	globalPath := ConfigPath()
	localPath := LocalConfigPath()

	absLocalPath, err := filepath.Abs(localPath)
	if err != nil {
		absLocalPath = localPath
	}

	_, globalErr := os.Stat(globalPath)
	_, localErr := os.Stat(localPath)

	return ConfigPathInfo{
		GlobalPath:   globalPath,
		GlobalExists: globalErr == nil,
		LocalPath:    absLocalPath,
		LocalExists:  localErr == nil,
	}
}

// MinimalConfig returns a minimal config template with comments
func MinimalConfig() string {
	return `# deprecator configuration file
# See: deprecator config defaults  (for all available options)

# Rules deciding which versions to deprecate. Rules that take a number
# of months need a value; others are left empty.
rules:
  majorVersions: 6
  patchVersions:

# Simulate deprecations without running npm deprecate
dry_run: false

# Output format: text, json, or table
default_format: text

# Registries for scoped packages (optional)
# scoped_registries:
#   "@acme": https://npm.acme.example

# Extra manifest globs to skip (optional)
# exclude:
#   - examples/**
`
}

// SaveTo writes content to a specific path, creating directories as needed
func SaveTo(path string, content string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write file %s: %w", path, err)
	}

	return nil
}
