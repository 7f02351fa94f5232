package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/zjy-dev/covmerge/internal/coverage"
)

// DefaultConfigName is the base name of the configuration file looked up by LoadConfig.
const DefaultConfigName = "covmerge"

// EnvPrefix prefixes environment variable overrides, e.g. COVMERGE_LOG_LEVEL.
const EnvPrefix = "COVMERGE"

// Config is the top-level configuration.
type Config struct {
	Coverage     CoverageConfig      `mapstructure:"coverage"`
	Environments []EnvironmentConfig `mapstructure:"environments"`
	History      HistoryConfig       `mapstructure:"history"`
	Metrics      MetricsConfig       `mapstructure:"metrics"`
	Log          LogConfig           `mapstructure:"log"`

	// path is the file the configuration was read from.
	path string
}

// CoverageConfig controls filtering, merging and reporting. Baseline names a
// payload listing every source file; its records are merged with zero counts
// so files no environment loaded are still reported.
type CoverageConfig struct {
	Root            string              `mapstructure:"root"`
	ReportsDir      string              `mapstructure:"reports_dir"`
	PayloadDir      string              `mapstructure:"payload_dir"`
	Include         []string            `mapstructure:"include"`
	Exclude         []string            `mapstructure:"exclude"`
	SetupFiles      []string            `mapstructure:"setup_files"`
	VirtualPrefixes []string            `mapstructure:"virtual_prefixes"`
	Baseline        string              `mapstructure:"baseline"`
	Reporters       []string            `mapstructure:"reporters"`
	Thresholds      coverage.Thresholds `mapstructure:"thresholds"`
}

// EnvironmentConfig describes one environment the suite runs in.
type EnvironmentConfig struct {
	Name string `mapstructure:"name"`
	// Command runs the suite for this environment and writes its payload.
	Command string `mapstructure:"command"`
	Dir     string `mapstructure:"dir"`
	// Timeout in seconds; zero means no timeout.
	Timeout int `mapstructure:"timeout"`
}

// HistoryConfig configures the run history database.
type HistoryConfig struct {
	Database string `mapstructure:"database"`
}

// MetricsConfig configures the Prometheus textfile output.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `mapstructure:"level"`
	Dir   string `mapstructure:"dir"`
}

// Path returns the file the configuration was loaded from, if any.
func (c *Config) Path() string {
	return c.path
}

// EnvironmentNames returns the configured environment names in order.
func (c *Config) EnvironmentNames() []string {
	names := make([]string, 0, len(c.Environments))
	for _, env := range c.Environments {
		names = append(names, env.Name)
	}
	return names
}

// Filter builds the coverage filter described by the configuration.
func (c *Config) Filter() (*coverage.Filter, error) {
	root := c.Coverage.Root
	if root != "" {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve coverage root %s: %w", root, err)
		}
		root = filepath.ToSlash(abs)
	}
	prefixes := c.Coverage.VirtualPrefixes
	if len(prefixes) == 0 {
		prefixes = coverage.DefaultVirtualPrefixes
	}
	return coverage.NewFilter(root, c.Coverage.Include, c.Coverage.Exclude, c.Coverage.SetupFiles, prefixes)
}

// Validate reports configuration mistakes that viper cannot catch.
func (c *Config) Validate() error {
	seen := make(map[string]bool)
	for i, env := range c.Environments {
		if env.Name == "" {
			return fmt.Errorf("environments[%d]: name is required", i)
		}
		if seen[env.Name] {
			return fmt.Errorf("environments[%d]: duplicate environment %q", i, env.Name)
		}
		seen[env.Name] = true
		if env.Timeout < 0 {
			return fmt.Errorf("environment %s: timeout must not be negative", env.Name)
		}
	}
	for _, r := range c.Coverage.Reporters {
		switch r {
		case "json", "json-summary", "markdown", "text":
		default:
			return fmt.Errorf("unknown reporter %q", r)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("coverage.root", ".")
	v.SetDefault("coverage.reports_dir", "coverage")
	v.SetDefault("coverage.payload_dir", "coverage/.tmp")
	v.SetDefault("coverage.setup_files", []string{})
	v.SetDefault("coverage.baseline", "")
	v.SetDefault("coverage.reporters", []string{"json", "json-summary", "text"})
	v.SetDefault("coverage.thresholds.functions", 0)
	v.SetDefault("coverage.thresholds.branches", 0)
	v.SetDefault("coverage.thresholds.lines", 0)
	v.SetDefault("coverage.thresholds.statements", 0)
	v.SetDefault("coverage.thresholds.per_file", false)
	v.SetDefault("coverage.thresholds.auto_update", false)
	v.SetDefault("history.database", "")
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.dir", "")
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load reads a configuration file from the "configs" directory into a struct.
// The configName parameter should be the base name of the file without the extension (e.g., "covmerge").
// The result parameter should be a pointer to a struct that the configuration will be unmarshaled into.
func Load(configName string, result interface{}) error {
	v := newViper()
	v.SetConfigName(configName)
	v.AddConfigPath("configs")
	v.AddConfigPath("../configs")
	v.AddConfigPath("../../configs")

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := v.Unmarshal(result); err != nil {
		return fmt.Errorf("failed to unmarshal config data: %w", err)
	}

	if cfg, ok := result.(*Config); ok {
		cfg.path = v.ConfigFileUsed()
	}
	return nil
}

// LoadFile reads the configuration from an explicit path.
func LoadFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config data: %w", err)
	}
	cfg.path = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// LoadConfig loads configs/covmerge.yaml. When no file exists, defaults and
// environment overrides are returned.
func LoadConfig() (*Config, error) {
	var cfg Config
	err := Load(DefaultConfigName, &cfg)
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		if err := Defaults(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Defaults fills cfg with default values and environment overrides only.
func Defaults(cfg *Config) error {
	v := newViper()
	// AutomaticEnv only applies to keys viper knows about; defaults cover all of them.
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config data: %w", err)
	}
	return nil
}

// Resolve loads the explicit path when given and falls back to LoadConfig.
func Resolve(path string) (*Config, error) {
	if path == "" {
		return LoadConfig()
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return LoadFile(path)
}
